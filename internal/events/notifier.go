// Package events publishes domain events after committed mutations.
// Delivery is at-most-once and best-effort: a publish failure is logged and
// never rolls back or re-reports the mutation that triggered it.
package events

import (
	"log"
	"time"

	"notesflow/api/internal/store"
)

// Publisher is the transport boundary. Publish is fire-and-forget; no
// delivery guarantee is returned to the caller.
type Publisher interface {
	Publish(subject string, payload any) error
}

type Notifier struct {
	publisher Publisher
}

func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

func (n *Notifier) publish(subject string, payload any) {
	if err := n.publisher.Publish(subject, payload); err != nil {
		log.Printf("event publish failed (subject=%s): %v", subject, err)
	}
}

func (n *Notifier) PageCreated(page store.Page) {
	n.publish("page.created", map[string]any{
		"pageId":       page.ID,
		"workspaceId":  page.WorkspaceID,
		"parentPageId": page.ParentPageID,
		"title":        page.Title,
		"createdBy":    page.CreatedBy,
		"createdAt":    page.CreatedAt,
	})
}

func (n *Notifier) PageUpdated(page store.Page) {
	n.publish("page.updated", map[string]any{
		"pageId":      page.ID,
		"workspaceId": page.WorkspaceID,
		"title":       page.Title,
		"updatedBy":   page.LastEditedBy,
		"updatedAt":   page.UpdatedAt,
	})
}

func (n *Notifier) PageArchived(page store.Page) {
	n.publish("page.archived", map[string]any{
		"pageId":      page.ID,
		"workspaceId": page.WorkspaceID,
		"isArchived":  page.IsArchived,
		"archivedBy":  page.LastEditedBy,
		"archivedAt":  page.UpdatedAt,
	})
}

// PageMoved carries both the old and the new parent id.
func (n *Notifier) PageMoved(page store.Page, oldParentID *string) {
	n.publish("page.moved", map[string]any{
		"pageId":      page.ID,
		"workspaceId": page.WorkspaceID,
		"oldParentId": oldParentID,
		"newParentId": page.ParentPageID,
		"movedBy":     page.LastEditedBy,
		"movedAt":     page.UpdatedAt,
	})
}

func (n *Notifier) PageDeleted(pageID, workspaceID, deletedBy string) {
	n.publish("page.deleted", map[string]any{
		"pageId":      pageID,
		"workspaceId": workspaceID,
		"deletedBy":   deletedBy,
		"deletedAt":   time.Now().UTC(),
	})
}

func (n *Notifier) WorkspaceCreated(ws store.Workspace) {
	n.publish("workspace.created", map[string]any{
		"workspaceId": ws.ID,
		"name":        ws.Name,
		"slug":        ws.Slug,
		"ownerId":     ws.OwnerID,
		"createdAt":   ws.CreatedAt,
	})
}

func (n *Notifier) WorkspaceUpdated(ws store.Workspace) {
	n.publish("workspace.updated", map[string]any{
		"workspaceId": ws.ID,
		"name":        ws.Name,
		"slug":        ws.Slug,
	})
}

func (n *Notifier) WorkspaceDeleted(workspaceID string) {
	n.publish("workspace.deleted", map[string]any{
		"workspaceId": workspaceID,
		"deletedAt":   time.Now().UTC(),
	})
}
