package store

import (
	"encoding/json"
	"time"
)

type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkspaceWithRole carries the requesting member's role alongside the
// workspace row.
type WorkspaceWithRole struct {
	Workspace
	Role string `json:"role"`
}

type Membership struct {
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type Page struct {
	ID           string          `json:"id"`
	WorkspaceID  string          `json:"workspace_id"`
	ParentPageID *string         `json:"parent_page_id"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content,omitempty"`
	Icon         *string         `json:"icon"`
	CoverImage   *string         `json:"cover_image"`
	IsArchived   bool            `json:"is_archived"`
	Position     int             `json:"position"`
	CreatedBy    string          `json:"created_by"`
	LastEditedBy string          `json:"last_edited_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PageWithRole joins a page with the requesting member's role so a single
// query covers both the tenant check and the capability check.
type PageWithRole struct {
	Page
	Role string `json:"role"`
}

// PageTreeNode is a page with its direct children nested under it.
type PageTreeNode struct {
	Page
	Children []PageTreeNode `json:"children"`
}

// UpdatePageFields holds the partial-update payload for a page. Nil fields
// are left unchanged.
type UpdatePageFields struct {
	Title      *string
	Content    json.RawMessage
	Icon       *string
	CoverImage *string
}

func (f UpdatePageFields) Empty() bool {
	return f.Title == nil && f.Content == nil && f.Icon == nil && f.CoverImage == nil
}
