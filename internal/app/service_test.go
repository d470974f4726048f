package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"notesflow/api/internal/cache"
	"notesflow/api/internal/store"
)

type fakeStore struct {
	getMembershipFn         func(context.Context, string, string) (*store.Membership, error)
	createMembershipFn      func(context.Context, string, string, string) error
	createPageFn            func(context.Context, string, *string, string, []byte, *string, *string, int, string) (store.Page, error)
	getPageByIDFn           func(context.Context, string) (store.Page, error)
	getPageWithRoleFn       func(context.Context, string, string) (store.PageWithRole, error)
	getWorkspacePagesFn     func(context.Context, string) ([]store.Page, error)
	getChildPagesFn         func(context.Context, string) ([]store.Page, error)
	updatePageFn            func(context.Context, string, store.UpdatePageFields, string) (store.Page, error)
	movePageFn              func(context.Context, string, *string, int, string) (store.Page, error)
	archivePageFn           func(context.Context, string, bool, string) (store.Page, error)
	deletePageFn            func(context.Context, string) error
	getMaxPositionFn        func(context.Context, string, *string) (int, error)
	createWorkspaceFn       func(context.Context, string, string, string) (store.Workspace, error)
	getWorkspaceByIDFn      func(context.Context, string) (store.Workspace, error)
	getWorkspaceWithRoleFn  func(context.Context, string, string) (store.WorkspaceWithRole, error)
	listWorkspacesForUserFn func(context.Context, string) ([]store.WorkspaceWithRole, error)
	updateWorkspaceFn       func(context.Context, string, string, string) (store.Workspace, error)
	deleteWorkspaceFn       func(context.Context, string) error
	getWorkspaceMemberIDsFn func(context.Context, string) ([]string, error)
	slugExistsFn            func(context.Context, string) (bool, error)
	slugExistsExcludingFn   func(context.Context, string, string) (bool, error)
}

func (f *fakeStore) GetMembership(ctx context.Context, workspaceID, userID string) (*store.Membership, error) {
	if f.getMembershipFn != nil {
		return f.getMembershipFn(ctx, workspaceID, userID)
	}
	return nil, nil
}

func (f *fakeStore) CreateMembership(ctx context.Context, workspaceID, userID, role string) error {
	if f.createMembershipFn != nil {
		return f.createMembershipFn(ctx, workspaceID, userID, role)
	}
	return nil
}

func (f *fakeStore) CreatePage(ctx context.Context, workspaceID string, parentPageID *string, title string, content []byte, icon, coverImage *string, position int, userID string) (store.Page, error) {
	if f.createPageFn != nil {
		return f.createPageFn(ctx, workspaceID, parentPageID, title, content, icon, coverImage, position, userID)
	}
	return store.Page{}, nil
}

func (f *fakeStore) GetPageByID(ctx context.Context, pageID string) (store.Page, error) {
	if f.getPageByIDFn != nil {
		return f.getPageByIDFn(ctx, pageID)
	}
	return store.Page{}, sql.ErrNoRows
}

func (f *fakeStore) GetPageWithRole(ctx context.Context, pageID, userID string) (store.PageWithRole, error) {
	if f.getPageWithRoleFn != nil {
		return f.getPageWithRoleFn(ctx, pageID, userID)
	}
	return store.PageWithRole{}, sql.ErrNoRows
}

func (f *fakeStore) GetWorkspacePages(ctx context.Context, workspaceID string) ([]store.Page, error) {
	if f.getWorkspacePagesFn != nil {
		return f.getWorkspacePagesFn(ctx, workspaceID)
	}
	return nil, nil
}

func (f *fakeStore) GetChildPages(ctx context.Context, parentPageID string) ([]store.Page, error) {
	if f.getChildPagesFn != nil {
		return f.getChildPagesFn(ctx, parentPageID)
	}
	return nil, nil
}

func (f *fakeStore) UpdatePage(ctx context.Context, pageID string, fields store.UpdatePageFields, userID string) (store.Page, error) {
	if f.updatePageFn != nil {
		return f.updatePageFn(ctx, pageID, fields, userID)
	}
	return store.Page{}, nil
}

func (f *fakeStore) MovePage(ctx context.Context, pageID string, parentPageID *string, position int, userID string) (store.Page, error) {
	if f.movePageFn != nil {
		return f.movePageFn(ctx, pageID, parentPageID, position, userID)
	}
	return store.Page{}, nil
}

func (f *fakeStore) ArchivePage(ctx context.Context, pageID string, isArchived bool, userID string) (store.Page, error) {
	if f.archivePageFn != nil {
		return f.archivePageFn(ctx, pageID, isArchived, userID)
	}
	return store.Page{}, nil
}

func (f *fakeStore) DeletePage(ctx context.Context, pageID string) error {
	if f.deletePageFn != nil {
		return f.deletePageFn(ctx, pageID)
	}
	return nil
}

func (f *fakeStore) GetMaxPosition(ctx context.Context, workspaceID string, parentPageID *string) (int, error) {
	if f.getMaxPositionFn != nil {
		return f.getMaxPositionFn(ctx, workspaceID, parentPageID)
	}
	return -1, nil
}

func (f *fakeStore) CreateWorkspace(ctx context.Context, name, slug, ownerID string) (store.Workspace, error) {
	if f.createWorkspaceFn != nil {
		return f.createWorkspaceFn(ctx, name, slug, ownerID)
	}
	return store.Workspace{}, nil
}

func (f *fakeStore) GetWorkspaceByID(ctx context.Context, workspaceID string) (store.Workspace, error) {
	if f.getWorkspaceByIDFn != nil {
		return f.getWorkspaceByIDFn(ctx, workspaceID)
	}
	return store.Workspace{}, sql.ErrNoRows
}

func (f *fakeStore) GetWorkspaceWithRole(ctx context.Context, workspaceID, userID string) (store.WorkspaceWithRole, error) {
	if f.getWorkspaceWithRoleFn != nil {
		return f.getWorkspaceWithRoleFn(ctx, workspaceID, userID)
	}
	return store.WorkspaceWithRole{}, sql.ErrNoRows
}

func (f *fakeStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]store.WorkspaceWithRole, error) {
	if f.listWorkspacesForUserFn != nil {
		return f.listWorkspacesForUserFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateWorkspace(ctx context.Context, workspaceID, name, slug string) (store.Workspace, error) {
	if f.updateWorkspaceFn != nil {
		return f.updateWorkspaceFn(ctx, workspaceID, name, slug)
	}
	return store.Workspace{}, nil
}

func (f *fakeStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if f.deleteWorkspaceFn != nil {
		return f.deleteWorkspaceFn(ctx, workspaceID)
	}
	return nil
}

func (f *fakeStore) GetWorkspaceMemberIDs(ctx context.Context, workspaceID string) ([]string, error) {
	if f.getWorkspaceMemberIDsFn != nil {
		return f.getWorkspaceMemberIDsFn(ctx, workspaceID)
	}
	return nil, nil
}

func (f *fakeStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	if f.slugExistsFn != nil {
		return f.slugExistsFn(ctx, slug)
	}
	return false, nil
}

func (f *fakeStore) SlugExistsExcluding(ctx context.Context, slug, workspaceID string) (bool, error) {
	if f.slugExistsExcludingFn != nil {
		return f.slugExistsExcludingFn(ctx, slug, workspaceID)
	}
	return false, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type movedEvent struct {
	page        store.Page
	oldParentID *string
}

// recordingNotifier captures emitted subjects in order.
type recordingNotifier struct {
	subjects []string
	moved    []movedEvent
	deleted  []string
}

func (n *recordingNotifier) PageCreated(store.Page)  { n.subjects = append(n.subjects, "page.created") }
func (n *recordingNotifier) PageUpdated(store.Page)  { n.subjects = append(n.subjects, "page.updated") }
func (n *recordingNotifier) PageArchived(store.Page) { n.subjects = append(n.subjects, "page.archived") }
func (n *recordingNotifier) PageMoved(page store.Page, oldParentID *string) {
	n.subjects = append(n.subjects, "page.moved")
	n.moved = append(n.moved, movedEvent{page: page, oldParentID: oldParentID})
}
func (n *recordingNotifier) PageDeleted(pageID, workspaceID, deletedBy string) {
	n.subjects = append(n.subjects, "page.deleted")
	n.deleted = append(n.deleted, pageID)
}
func (n *recordingNotifier) WorkspaceCreated(store.Workspace) {
	n.subjects = append(n.subjects, "workspace.created")
}
func (n *recordingNotifier) WorkspaceUpdated(store.Workspace) {
	n.subjects = append(n.subjects, "workspace.updated")
}
func (n *recordingNotifier) WorkspaceDeleted(string) {
	n.subjects = append(n.subjects, "workspace.deleted")
}

func newTestService(t *testing.T, fs *fakeStore) (*Service, *miniredis.Miniredis, *recordingNotifier) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	notifier := &recordingNotifier{}
	svc := &Service{
		store:  fs,
		cache:  cache.NewWithClient(client, 10*time.Minute),
		events: notifier,
	}
	return svc, mr, notifier
}

func memberFn(role string) func(context.Context, string, string) (*store.Membership, error) {
	return func(_ context.Context, workspaceID, userID string) (*store.Membership, error) {
		return &store.Membership{WorkspaceID: workspaceID, UserID: userID, Role: role}, nil
	}
}

func strptr(s string) *string { return &s }

func intptr(i int) *int { return &i }
