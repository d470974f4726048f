package app

import (
	"context"

	"notesflow/api/internal/cache"
	"notesflow/api/internal/events"
	"notesflow/api/internal/store"
)

// dataStore is the relational source of truth. The cache is never
// authoritative over it.
type dataStore interface {
	GetMembership(ctx context.Context, workspaceID, userID string) (*store.Membership, error)
	CreateMembership(ctx context.Context, workspaceID, userID, role string) error

	CreatePage(ctx context.Context, workspaceID string, parentPageID *string, title string, content []byte, icon, coverImage *string, position int, userID string) (store.Page, error)
	GetPageByID(ctx context.Context, pageID string) (store.Page, error)
	GetPageWithRole(ctx context.Context, pageID, userID string) (store.PageWithRole, error)
	GetWorkspacePages(ctx context.Context, workspaceID string) ([]store.Page, error)
	GetChildPages(ctx context.Context, parentPageID string) ([]store.Page, error)
	UpdatePage(ctx context.Context, pageID string, fields store.UpdatePageFields, userID string) (store.Page, error)
	MovePage(ctx context.Context, pageID string, parentPageID *string, position int, userID string) (store.Page, error)
	ArchivePage(ctx context.Context, pageID string, isArchived bool, userID string) (store.Page, error)
	DeletePage(ctx context.Context, pageID string) error
	GetMaxPosition(ctx context.Context, workspaceID string, parentPageID *string) (int, error)

	CreateWorkspace(ctx context.Context, name, slug, ownerID string) (store.Workspace, error)
	GetWorkspaceByID(ctx context.Context, workspaceID string) (store.Workspace, error)
	GetWorkspaceWithRole(ctx context.Context, workspaceID, userID string) (store.WorkspaceWithRole, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]store.WorkspaceWithRole, error)
	UpdateWorkspace(ctx context.Context, workspaceID, name, slug string) (store.Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	GetWorkspaceMemberIDs(ctx context.Context, workspaceID string) ([]string, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	SlugExistsExcluding(ctx context.Context, slug, workspaceID string) (bool, error)

	Ping(ctx context.Context) error
}

// notifier emits domain events after committed mutations. Implementations
// must be best-effort; failures never surface to the caller.
type notifier interface {
	PageCreated(page store.Page)
	PageUpdated(page store.Page)
	PageArchived(page store.Page)
	PageMoved(page store.Page, oldParentID *string)
	PageDeleted(pageID, workspaceID, deletedBy string)
	WorkspaceCreated(ws store.Workspace)
	WorkspaceUpdated(ws store.Workspace)
	WorkspaceDeleted(workspaceID string)
}

type Service struct {
	store  dataStore
	cache  *cache.Client
	events notifier
}

func New(dataStore *store.PostgresStore, cacheClient *cache.Client, eventNotifier *events.Notifier) *Service {
	return &Service{
		store:  dataStore,
		cache:  cacheClient,
		events: eventNotifier,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingCache(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// requireMembership resolves the caller's membership in the workspace and
// fails closed when none exists.
func (s *Service) requireMembership(ctx context.Context, workspaceID, userID string) (*store.Membership, error) {
	if workspaceID == "" {
		return nil, errValidation("workspace_id is required", nil)
	}
	if userID == "" {
		return nil, errValidation("user id is required", nil)
	}
	membership, err := s.store.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, errAccessDenied("Access denied to this workspace")
	}
	return membership, nil
}
