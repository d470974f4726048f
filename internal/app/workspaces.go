package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"notesflow/api/internal/cache"
	"notesflow/api/internal/rbac"
	"notesflow/api/internal/store"
	"notesflow/api/internal/util"
)

const slugMaxAttempts = 5

// CreateWorkspace inserts the workspace under a unique slug and seeds the
// creator's owner membership.
func (s *Service) CreateWorkspace(ctx context.Context, name, userID string) (store.Workspace, error) {
	if strings.TrimSpace(name) == "" {
		return store.Workspace{}, errValidation("Workspace name is required", nil)
	}
	if userID == "" {
		return store.Workspace{}, errValidation("user id is required", nil)
	}

	slug, err := s.uniqueSlug(ctx, name, "")
	if err != nil {
		return store.Workspace{}, err
	}

	ws, err := s.store.CreateWorkspace(ctx, name, slug, userID)
	if err != nil {
		return store.Workspace{}, err
	}
	if err := s.store.CreateMembership(ctx, ws.ID, userID, string(rbac.RoleOwner)); err != nil {
		return store.Workspace{}, err
	}

	s.cache.Invalidate(ctx, cache.UserWorkspacesKey(userID))
	s.events.WorkspaceCreated(ws)
	return ws, nil
}

// GetWorkspaceByID resolves the workspace through the caller's membership;
// absence and non-membership are both NotFound so existence does not leak
// across tenants.
func (s *Service) GetWorkspaceByID(ctx context.Context, workspaceID, userID string) (store.WorkspaceWithRole, error) {
	if workspaceID == "" {
		return store.WorkspaceWithRole{}, errValidation("Workspace ID is required", nil)
	}

	item, err := s.store.GetWorkspaceWithRole(ctx, workspaceID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.WorkspaceWithRole{}, errNotFound("Workspace not found or access denied")
	}
	if err != nil {
		return store.WorkspaceWithRole{}, err
	}
	return item, nil
}

// ListWorkspacesForUser serves the caller's workspace list read-through from
// user:<id>:workspaces.
func (s *Service) ListWorkspacesForUser(ctx context.Context, userID string) ([]store.WorkspaceWithRole, Source, error) {
	if userID == "" {
		return nil, "", errValidation("user id is required", nil)
	}

	key := cache.UserWorkspacesKey(userID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var items []store.WorkspaceWithRole
		if jerr := json.Unmarshal(raw, &items); jerr == nil {
			return items, SourceCache, nil
		}
		log.Printf("discarding corrupt cache entry %s", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("cache read failed, falling back to store: %v", err)
	}

	items, err := s.store.ListWorkspacesForUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	s.cachePut(ctx, key, items)
	return items, SourceDB, nil
}

// UpdateWorkspace renames the workspace, regenerating the slug only when the
// name actually changed.
func (s *Service) UpdateWorkspace(ctx context.Context, workspaceID, name, userID string) (store.Workspace, error) {
	if strings.TrimSpace(name) == "" {
		return store.Workspace{}, errValidation("Workspace name is required", nil)
	}

	membership, err := s.requireMembership(ctx, workspaceID, userID)
	if err != nil {
		return store.Workspace{}, err
	}
	if !rbac.WorkspaceCan(membership.Role, rbac.WorkspaceEditSettings) {
		return store.Workspace{}, errAccessDenied("You do not have permission to update workspace settings")
	}

	current, err := s.store.GetWorkspaceByID(ctx, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Workspace{}, errNotFound("Workspace not found")
	}
	if err != nil {
		return store.Workspace{}, err
	}

	slug := current.Slug
	if current.Name != name {
		slug, err = s.uniqueSlug(ctx, name, workspaceID)
		if err != nil {
			return store.Workspace{}, err
		}
	}

	ws, err := s.store.UpdateWorkspace(ctx, workspaceID, name, slug)
	if err != nil {
		return store.Workspace{}, err
	}

	s.invalidateMemberWorkspaceLists(ctx, workspaceID)
	s.events.WorkspaceUpdated(ws)
	return ws, nil
}

// DeleteWorkspace is owner-only: stricter than the capability table, which
// an admin passes for everything except deletion and ownership transfer.
// Memberships and pages go with the workspace via foreign-key cascade.
func (s *Service) DeleteWorkspace(ctx context.Context, workspaceID, userID string) error {
	if workspaceID == "" {
		return errValidation("Workspace ID is required", nil)
	}

	ws, err := s.store.GetWorkspaceByID(ctx, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Workspace not found")
	}
	if err != nil {
		return err
	}
	if ws.OwnerID != userID {
		return errAccessDenied("Only the workspace owner can delete the workspace")
	}

	// Member ids are collected before the delete cascades the membership rows
	// away.
	memberIDs, err := s.store.GetWorkspaceMemberIDs(ctx, workspaceID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		return err
	}

	keys := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		keys = append(keys, cache.UserWorkspacesKey(id))
	}
	s.cache.Invalidate(ctx, keys...)

	s.events.WorkspaceDeleted(workspaceID)
	return nil
}

// uniqueSlug slugifies the name and suffixes -1..-N on collision. When the
// name slugifies to nothing, a timestamped fallback is used. excludeID
// ignores the workspace's own row during rename.
func (s *Service) uniqueSlug(ctx context.Context, name, excludeID string) (string, error) {
	baseSlug := util.Slugify(name)
	if baseSlug == "" {
		baseSlug = fmt.Sprintf("workspace-%d", time.Now().UnixNano())
	}

	slug := baseSlug
	for attempt := 1; attempt <= slugMaxAttempts; attempt++ {
		var exists bool
		var err error
		if excludeID == "" {
			exists, err = s.store.SlugExists(ctx, slug)
		} else {
			exists, err = s.store.SlugExistsExcluding(ctx, slug, excludeID)
		}
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		slug = fmt.Sprintf("%s-%d", baseSlug, attempt)
	}
	return slug, nil
}

func (s *Service) invalidateMemberWorkspaceLists(ctx context.Context, workspaceID string) {
	memberIDs, err := s.store.GetWorkspaceMemberIDs(ctx, workspaceID)
	if err != nil {
		log.Printf("cache invalidation skipped, could not list members of %s: %v", workspaceID, err)
		return
	}
	keys := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		keys = append(keys, cache.UserWorkspacesKey(id))
	}
	s.cache.Invalidate(ctx, keys...)
}
