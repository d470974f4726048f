package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// pageColumns is the full page row; list queries skip content to keep the
// workspace tree and children payloads light.
const pageColumns = `id, workspace_id, parent_page_id, title, content, icon, cover_image, is_archived, position, created_by, last_edited_by, created_at, updated_at`
const pageListColumns = `id, workspace_id, parent_page_id, title, icon, cover_image, is_archived, position, created_by, last_edited_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (Page, error) {
	var page Page
	err := row.Scan(
		&page.ID,
		&page.WorkspaceID,
		&page.ParentPageID,
		&page.Title,
		&page.Content,
		&page.Icon,
		&page.CoverImage,
		&page.IsArchived,
		&page.Position,
		&page.CreatedBy,
		&page.LastEditedBy,
		&page.CreatedAt,
		&page.UpdatedAt,
	)
	return page, err
}

func scanPageListItem(row rowScanner) (Page, error) {
	var page Page
	err := row.Scan(
		&page.ID,
		&page.WorkspaceID,
		&page.ParentPageID,
		&page.Title,
		&page.Icon,
		&page.CoverImage,
		&page.IsArchived,
		&page.Position,
		&page.CreatedBy,
		&page.LastEditedBy,
		&page.CreatedAt,
		&page.UpdatedAt,
	)
	return page, err
}

func (s *PostgresStore) GetMembership(ctx context.Context, workspaceID, userID string) (*Membership, error) {
	var membership Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, user_id, role, created_at
		FROM workspace_memberships
		WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID).Scan(&membership.WorkspaceID, &membership.UserID, &membership.Role, &membership.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &membership, nil
}

func (s *PostgresStore) CreateMembership(ctx context.Context, workspaceID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_memberships (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
	`, workspaceID, userID, role)
	if err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePage(ctx context.Context, workspaceID string, parentPageID *string, title string, content []byte, icon, coverImage *string, position int, userID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO pages (workspace_id, parent_page_id, title, content, icon, cover_image, position, created_by, last_edited_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+pageColumns,
		workspaceID, parentPageID, title, content, icon, coverImage, position, userID)
	page, err := scanPage(row)
	if err != nil {
		return Page{}, fmt.Errorf("create page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) GetPageByID(ctx context.Context, pageID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id=$1`, pageID)
	return scanPage(row)
}

func (s *PostgresStore) GetPageWithRole(ctx context.Context, pageID, userID string) (PageWithRole, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.workspace_id, p.parent_page_id, p.title, p.content, p.icon, p.cover_image,
		       p.is_archived, p.position, p.created_by, p.last_edited_by, p.created_at, p.updated_at,
		       m.role
		FROM pages p
		JOIN workspace_memberships m ON m.workspace_id = p.workspace_id
		WHERE p.id=$1 AND m.user_id=$2
	`, pageID, userID)

	var item PageWithRole
	err := row.Scan(
		&item.ID,
		&item.WorkspaceID,
		&item.ParentPageID,
		&item.Title,
		&item.Content,
		&item.Icon,
		&item.CoverImage,
		&item.IsArchived,
		&item.Position,
		&item.CreatedBy,
		&item.LastEditedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.Role,
	)
	if err != nil {
		return PageWithRole{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetWorkspacePages(ctx context.Context, workspaceID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageListColumns+`
		FROM pages
		WHERE workspace_id=$1 AND is_archived=FALSE
		ORDER BY position ASC, created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		page, err := scanPageListItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetChildPages(ctx context.Context, parentPageID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageListColumns+`
		FROM pages
		WHERE parent_page_id=$1 AND is_archived=FALSE
		ORDER BY position ASC, created_at ASC
	`, parentPageID)
	if err != nil {
		return nil, fmt.Errorf("list child pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		page, err := scanPageListItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, pageID string, fields UpdatePageFields, userID string) (Page, error) {
	set := make([]string, 0, 6)
	args := make([]any, 0, 6)
	next := 1

	if fields.Title != nil {
		set = append(set, fmt.Sprintf("title=$%d", next))
		args = append(args, *fields.Title)
		next++
	}
	if fields.Content != nil {
		set = append(set, fmt.Sprintf("content=$%d", next))
		args = append(args, []byte(fields.Content))
		next++
	}
	if fields.Icon != nil {
		set = append(set, fmt.Sprintf("icon=$%d", next))
		args = append(args, *fields.Icon)
		next++
	}
	if fields.CoverImage != nil {
		set = append(set, fmt.Sprintf("cover_image=$%d", next))
		args = append(args, *fields.CoverImage)
		next++
	}

	set = append(set, fmt.Sprintf("last_edited_by=$%d", next))
	args = append(args, userID)
	next++
	set = append(set, "updated_at=NOW()")

	args = append(args, pageID)
	query := fmt.Sprintf(`UPDATE pages SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(set, ", "), next, pageColumns)

	page, err := scanPage(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, err
	}
	if err != nil {
		return Page{}, fmt.Errorf("update page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) MovePage(ctx context.Context, pageID string, parentPageID *string, position int, userID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pages
		SET parent_page_id=$1, position=$2, last_edited_by=$3, updated_at=NOW()
		WHERE id=$4
		RETURNING `+pageColumns,
		parentPageID, position, userID, pageID)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, err
	}
	if err != nil {
		return Page{}, fmt.Errorf("move page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) ArchivePage(ctx context.Context, pageID string, isArchived bool, userID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE pages
		SET is_archived=$1, last_edited_by=$2, updated_at=NOW()
		WHERE id=$3
		RETURNING `+pageColumns,
		isArchived, userID, pageID)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, err
	}
	if err != nil {
		return Page{}, fmt.Errorf("archive page: %w", err)
	}
	return page, nil
}

// DeletePage removes the row; the parent_page_id foreign key cascades the
// delete to every descendant.
func (s *PostgresStore) DeletePage(ctx context.Context, pageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id=$1`, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// GetMaxPosition returns -1 when the sibling group is empty so the first
// child lands at position 0. A NULL parent is its own sibling group, hence
// IS NOT DISTINCT FROM.
func (s *PostgresStore) GetMaxPosition(ctx context.Context, workspaceID string, parentPageID *string) (int, error) {
	var maxPosition int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1)
		FROM pages
		WHERE workspace_id=$1 AND parent_page_id IS NOT DISTINCT FROM $2
	`, workspaceID, parentPageID).Scan(&maxPosition)
	if err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return maxPosition, nil
}

func (s *PostgresStore) CreateWorkspace(ctx context.Context, name, slug, ownerID string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, slug, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, slug, owner_id, created_at
	`, name, slug, ownerID).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.CreatedAt)
	if err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

func (s *PostgresStore) GetWorkspaceByID(ctx context.Context, workspaceID string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, owner_id, created_at FROM workspaces WHERE id=$1
	`, workspaceID).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

func (s *PostgresStore) GetWorkspaceWithRole(ctx context.Context, workspaceID, userID string) (WorkspaceWithRole, error) {
	var item WorkspaceWithRole
	err := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.name, w.slug, w.owner_id, w.created_at, m.role
		FROM workspaces w
		JOIN workspace_memberships m ON m.workspace_id = w.id
		WHERE w.id=$1 AND m.user_id=$2
	`, workspaceID, userID).Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.CreatedAt, &item.Role)
	if err != nil {
		return WorkspaceWithRole{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]WorkspaceWithRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, w.owner_id, w.created_at, m.role
		FROM workspaces w
		JOIN workspace_memberships m ON m.workspace_id = w.id
		WHERE m.user_id=$1
		ORDER BY w.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]WorkspaceWithRole, 0)
	for rows.Next() {
		var item WorkspaceWithRole
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.CreatedAt, &item.Role); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, workspaceID, name, slug string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		UPDATE workspaces SET name=$2, slug=$3 WHERE id=$1
		RETURNING id, name, slug, owner_id, created_at
	`, workspaceID, name, slug).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Workspace{}, err
	}
	if err != nil {
		return Workspace{}, fmt.Errorf("update workspace: %w", err)
	}
	return ws, nil
}

// DeleteWorkspace cascades to memberships and pages via foreign keys.
func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspaceMemberIDs(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM workspace_memberships WHERE workspace_id=$1
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug=$1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SlugExistsExcluding(ctx context.Context, slug, workspaceID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug=$1 AND id <> $2)
	`, slug, workspaceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}
