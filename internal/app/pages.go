package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"notesflow/api/internal/cache"
	"notesflow/api/internal/rbac"
	"notesflow/api/internal/store"
)

// Source reports whether a read was served from the cache or the store.
type Source string

const (
	SourceCache Source = "cache"
	SourceDB    Source = "db"
)

type CreatePageInput struct {
	ParentPageID *string
	Title        string
	Content      json.RawMessage
	Icon         *string
	CoverImage   *string
}

type MovePageInput struct {
	ParentPageID *string
	Position     *int
}

// CreatePage inserts a page at the end of its sibling group. The position
// read and the insert are not serialized; two concurrent creates under the
// same parent can both observe the same max and land on equal positions.
// Listing stays stable because it orders by (position, created_at).
func (s *Service) CreatePage(ctx context.Context, workspaceID string, in CreatePageInput, userID string) (store.Page, error) {
	membership, err := s.requireMembership(ctx, workspaceID, userID)
	if err != nil {
		return store.Page{}, err
	}
	if !rbac.PageCan(membership.Role, rbac.PageEdit) {
		return store.Page{}, errAccessDenied("You do not have permission to create pages in this workspace")
	}

	if in.ParentPageID != nil {
		parent, err := s.store.GetPageByID(ctx, *in.ParentPageID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Page{}, errNotFound("Parent page not found")
		}
		if err != nil {
			return store.Page{}, err
		}
		if parent.WorkspaceID != workspaceID {
			return store.Page{}, errConflict("Parent page does not belong to this workspace")
		}
	}

	position, err := s.nextPosition(ctx, workspaceID, in.ParentPageID)
	if err != nil {
		return store.Page{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled"
	}
	content := in.Content
	if len(content) == 0 {
		content = json.RawMessage(`{"blocks": []}`)
	}

	page, err := s.store.CreatePage(ctx, workspaceID, in.ParentPageID, title, content, in.Icon, in.CoverImage, position, userID)
	if err != nil {
		return store.Page{}, err
	}

	keys := []string{cache.WorkspacePagesKey(workspaceID)}
	if in.ParentPageID != nil {
		keys = append(keys, cache.ChildPagesKey(*in.ParentPageID))
	}
	s.cache.Invalidate(ctx, keys...)

	s.events.PageCreated(page)
	return page, nil
}

// nextPosition returns 1 + max(sibling positions), or 0 for the first child.
func (s *Service) nextPosition(ctx context.Context, workspaceID string, parentPageID *string) (int, error) {
	maxPosition, err := s.store.GetMaxPosition(ctx, workspaceID, parentPageID)
	if err != nil {
		return 0, err
	}
	return maxPosition + 1, nil
}

// GetPageByID serves the page read-through from page:<id>. A page that
// resolves but sits in a different workspace than claimed is a Conflict,
// distinct from NotFound; a page missing entirely (or one the caller has no
// membership row for) is NotFound.
func (s *Service) GetPageByID(ctx context.Context, pageID, userID, workspaceID string) (store.Page, Source, error) {
	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return store.Page{}, "", err
	}

	key := cache.PageKey(pageID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var page store.Page
		if jerr := json.Unmarshal(raw, &page); jerr == nil {
			if page.WorkspaceID != workspaceID {
				return store.Page{}, "", errConflict("Page does not belong to this workspace")
			}
			return page, SourceCache, nil
		}
		log.Printf("discarding corrupt cache entry %s", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("cache read failed, falling back to store: %v", err)
	}

	item, err := s.store.GetPageWithRole(ctx, pageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Page{}, "", errNotFound("Page not found or access denied")
	}
	if err != nil {
		return store.Page{}, "", err
	}
	if item.WorkspaceID != workspaceID {
		return store.Page{}, "", errConflict("Page does not belong to this workspace")
	}

	s.cachePut(ctx, key, item.Page)
	return item.Page, SourceDB, nil
}

// GetWorkspacePages returns the workspace's non-archived pages as a nested
// tree, ordered by (position, created_at) at every level. The flat list is
// what gets cached; the tree is rebuilt per read. Children of parents absent
// from the list (archived ancestors) are dropped, not hoisted to the root.
func (s *Service) GetWorkspacePages(ctx context.Context, workspaceID, userID string) ([]store.PageTreeNode, Source, error) {
	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return nil, "", err
	}

	key := cache.WorkspacePagesKey(workspaceID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var pages []store.Page
		if jerr := json.Unmarshal(raw, &pages); jerr == nil {
			return buildPageTree(pages), SourceCache, nil
		}
		log.Printf("discarding corrupt cache entry %s", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("cache read failed, falling back to store: %v", err)
	}

	pages, err := s.store.GetWorkspacePages(ctx, workspaceID)
	if err != nil {
		return nil, "", err
	}

	s.cachePut(ctx, key, pages)
	return buildPageTree(pages), SourceDB, nil
}

// GetChildPages returns the non-archived direct children of a page, in
// sibling order.
func (s *Service) GetChildPages(ctx context.Context, parentPageID, userID, workspaceID string) ([]store.Page, Source, error) {
	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return nil, "", err
	}

	parent, err := s.store.GetPageWithRole(ctx, parentPageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errNotFound("Page not found or access denied")
	}
	if err != nil {
		return nil, "", err
	}
	if parent.WorkspaceID != workspaceID {
		return nil, "", errConflict("Page does not belong to this workspace")
	}

	key := cache.ChildPagesKey(parentPageID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var pages []store.Page
		if jerr := json.Unmarshal(raw, &pages); jerr == nil {
			return pages, SourceCache, nil
		}
		log.Printf("discarding corrupt cache entry %s", key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("cache read failed, falling back to store: %v", err)
	}

	children, err := s.store.GetChildPages(ctx, parentPageID)
	if err != nil {
		return nil, "", err
	}

	s.cachePut(ctx, key, children)
	return children, SourceDB, nil
}

// UpdatePage applies a partial field update and stamps last_edited_by and
// updated_at. Concurrent updates are last-writer-wins; no concurrency token
// is modeled.
func (s *Service) UpdatePage(ctx context.Context, pageID string, fields store.UpdatePageFields, userID, workspaceID string) (store.Page, error) {
	if fields.Empty() {
		return store.Page{}, errValidation("at least one field to update is required", nil)
	}

	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return store.Page{}, err
	}

	existing, err := s.store.GetPageWithRole(ctx, pageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Page{}, errNotFound("Page not found or access denied")
	}
	if err != nil {
		return store.Page{}, err
	}
	if existing.WorkspaceID != workspaceID {
		return store.Page{}, errConflict("Page does not belong to this workspace")
	}
	if !rbac.PageCan(existing.Role, rbac.PageEdit) {
		return store.Page{}, errAccessDenied("You do not have permission to edit pages")
	}

	page, err := s.store.UpdatePage(ctx, pageID, fields, userID)
	if err != nil {
		return store.Page{}, err
	}

	s.invalidatePageCascade(ctx, page)
	s.events.PageUpdated(page)
	return page, nil
}

// MovePage reparents the page and assigns its position, computing the next
// slot under the new parent when none is given. Siblings are never
// renumbered, so positions are not guaranteed contiguous after moves. The
// same-workspace check is the only cycle guard.
func (s *Service) MovePage(ctx context.Context, pageID string, in MovePageInput, userID, workspaceID string) (store.Page, error) {
	if in.Position != nil && *in.Position < 0 {
		return store.Page{}, errValidation("position must be a non-negative integer", nil)
	}

	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return store.Page{}, err
	}

	existing, err := s.store.GetPageWithRole(ctx, pageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Page{}, errNotFound("Page not found or access denied")
	}
	if err != nil {
		return store.Page{}, err
	}
	if existing.WorkspaceID != workspaceID {
		return store.Page{}, errConflict("Page does not belong to this workspace")
	}
	if !rbac.PageCan(existing.Role, rbac.PageMove) {
		return store.Page{}, errAccessDenied("You do not have permission to move pages")
	}

	oldParentID := existing.ParentPageID

	if in.ParentPageID != nil {
		newParent, err := s.store.GetPageByID(ctx, *in.ParentPageID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Page{}, errNotFound("New parent page not found")
		}
		if err != nil {
			return store.Page{}, err
		}
		if newParent.WorkspaceID != workspaceID {
			return store.Page{}, errConflict("Cannot move page to different workspace")
		}
	}

	position := 0
	if in.Position != nil {
		position = *in.Position
	} else {
		position, err = s.nextPosition(ctx, workspaceID, in.ParentPageID)
		if err != nil {
			return store.Page{}, err
		}
	}

	page, err := s.store.MovePage(ctx, pageID, in.ParentPageID, position, userID)
	if err != nil {
		return store.Page{}, err
	}

	// The moved page's own entry is invalidated too: leaving it cached would
	// serve the old parent id until the TTL expires.
	keys := []string{cache.PageKey(pageID), cache.WorkspacePagesKey(page.WorkspaceID)}
	if oldParentID != nil {
		keys = append(keys, cache.ChildPagesKey(*oldParentID))
	}
	if in.ParentPageID != nil {
		keys = append(keys, cache.ChildPagesKey(*in.ParentPageID))
	}
	s.cache.Invalidate(ctx, keys...)

	s.events.PageMoved(page, oldParentID)
	return page, nil
}

// ArchivePage flips the archived flag; position and parentage are untouched,
// so unarchiving restores the page to its old slot.
func (s *Service) ArchivePage(ctx context.Context, pageID string, isArchived bool, userID, workspaceID string) (store.Page, error) {
	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return store.Page{}, err
	}

	existing, err := s.store.GetPageWithRole(ctx, pageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Page{}, errNotFound("Page not found or access denied")
	}
	if err != nil {
		return store.Page{}, err
	}
	if existing.WorkspaceID != workspaceID {
		return store.Page{}, errConflict("Page does not belong to this workspace")
	}
	if !rbac.PageCan(existing.Role, rbac.PageArchive) {
		return store.Page{}, errAccessDenied("You do not have permission to archive pages")
	}

	page, err := s.store.ArchivePage(ctx, pageID, isArchived, userID)
	if err != nil {
		return store.Page{}, err
	}

	s.invalidatePageCascade(ctx, page)
	s.events.PageArchived(page)
	return page, nil
}

// DeletePage permanently removes the page; the store cascades to all
// descendants. Descendant cache entries are not invalidated here and age out
// via TTL.
func (s *Service) DeletePage(ctx context.Context, pageID, userID, workspaceID string) error {
	if _, err := s.requireMembership(ctx, workspaceID, userID); err != nil {
		return err
	}

	existing, err := s.store.GetPageWithRole(ctx, pageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Page not found or access denied")
	}
	if err != nil {
		return err
	}
	if existing.WorkspaceID != workspaceID {
		return errConflict("Page does not belong to this workspace")
	}
	if !rbac.PageCan(existing.Role, rbac.PageDelete) {
		return errAccessDenied("You do not have permission to delete pages")
	}

	if err := s.store.DeletePage(ctx, pageID); err != nil {
		return err
	}

	s.invalidatePageCascade(ctx, existing.Page)
	s.events.PageDeleted(pageID, workspaceID, userID)
	return nil
}

// invalidatePageCascade clears the page entry, the workspace list, and the
// parent's children list when the page has a parent.
func (s *Service) invalidatePageCascade(ctx context.Context, page store.Page) {
	keys := []string{cache.PageKey(page.ID), cache.WorkspacePagesKey(page.WorkspaceID)}
	if page.ParentPageID != nil {
		keys = append(keys, cache.ChildPagesKey(*page.ParentPageID))
	}
	s.cache.Invalidate(ctx, keys...)
}

// cachePut serializes and stores a value under the default TTL. Failures are
// logged; the caller already has the store result.
func (s *Service) cachePut(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache marshal failed for %s: %v", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		log.Printf("cache write failed for %s: %v", key, err)
	}
}

// buildPageTree groups a flat (position, created_at)-ordered page list into
// a nested tree. Pages whose parent is not in the list are unreachable from
// any root and therefore dropped.
func buildPageTree(pages []store.Page) []store.PageTreeNode {
	byID := make(map[string]store.Page, len(pages))
	for _, page := range pages {
		byID[page.ID] = page
	}

	childIDs := make(map[string][]string)
	rootIDs := make([]string, 0)
	for _, page := range pages {
		if page.ParentPageID == nil {
			rootIDs = append(rootIDs, page.ID)
			continue
		}
		if _, ok := byID[*page.ParentPageID]; !ok {
			continue
		}
		childIDs[*page.ParentPageID] = append(childIDs[*page.ParentPageID], page.ID)
	}

	var build func(id string) store.PageTreeNode
	build = func(id string) store.PageTreeNode {
		node := store.PageTreeNode{Page: byID[id], Children: make([]store.PageTreeNode, 0)}
		for _, childID := range childIDs[id] {
			node.Children = append(node.Children, build(childID))
		}
		return node
	}

	roots := make([]store.PageTreeNode, 0, len(rootIDs))
	for _, id := range rootIDs {
		roots = append(roots, build(id))
	}
	return roots
}
