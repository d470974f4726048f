package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"notesflow/api/internal/store"
	"notesflow/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"cache":    map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		if err := s.service.PingCache(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Caller identity comes from the gateway via the x-user-id header; this
	// service does not issue or verify tokens itself.
	userID := strings.TrimSpace(r.Header.Get("x-user-id"))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing x-user-id header", nil)
		return
	}
	if !util.IsUUID(userID) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "x-user-id must be a UUID", nil)
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "workspaces" {
		s.handleWorkspaceRoutes(w, r, segments[2:], userID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

// handleWorkspaceRoutes dispatches everything under /api/workspaces. rest
// holds the path segments after the prefix.
func (s *HTTPServer) handleWorkspaceRoutes(w http.ResponseWriter, r *http.Request, rest []string, userID string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			s.handleListWorkspaces(w, r, userID)
		case http.MethodPost:
			s.handleCreateWorkspace(w, r, userID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case len(rest) == 1:
		workspaceID := rest[0]
		if !util.IsUUID(workspaceID) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "workspace id must be a UUID", nil)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleGetWorkspace(w, r, workspaceID, userID)
		case http.MethodPut:
			s.handleUpdateWorkspace(w, r, workspaceID, userID)
		case http.MethodDelete:
			s.handleDeleteWorkspace(w, r, workspaceID, userID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case rest[1] == "pages":
		workspaceID := rest[0]
		if !util.IsUUID(workspaceID) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "workspace id must be a UUID", nil)
			return
		}
		s.handlePageRoutes(w, r, workspaceID, rest[2:], userID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handlePageRoutes(w http.ResponseWriter, r *http.Request, workspaceID string, rest []string, userID string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetWorkspacePages(w, r, workspaceID, userID)
		case http.MethodPost:
			s.handleCreatePage(w, r, workspaceID, userID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	pageID := rest[0]
	if !util.IsUUID(pageID) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "page id must be a UUID", nil)
		return
	}

	switch {
	case len(rest) == 1:
		switch r.Method {
		case http.MethodGet:
			s.handleGetPage(w, r, workspaceID, pageID, userID)
		case http.MethodPut:
			s.handleUpdatePage(w, r, workspaceID, pageID, userID)
		case http.MethodDelete:
			s.handleDeletePage(w, r, workspaceID, pageID, userID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case len(rest) == 2 && rest[1] == "children" && r.Method == http.MethodGet:
		s.handleGetChildPages(w, r, workspaceID, pageID, userID)
		return

	case len(rest) == 2 && rest[1] == "move" && r.Method == http.MethodPut:
		s.handleMovePage(w, r, workspaceID, pageID, userID)
		return

	case len(rest) == 2 && rest[1] == "archive" && r.Method == http.MethodPut:
		s.handleArchivePage(w, r, workspaceID, pageID, userID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleListWorkspaces(w http.ResponseWriter, r *http.Request, userID string) {
	items, source, err := s.service.ListWorkspacesForUser(r.Context(), userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": items, "source": source})
}

func (s *HTTPServer) handleCreateWorkspace(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ws, err := s.service.CreateWorkspace(r.Context(), body.Name, userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"workspace": ws})
}

func (s *HTTPServer) handleGetWorkspace(w http.ResponseWriter, r *http.Request, workspaceID, userID string) {
	item, err := s.service.GetWorkspaceByID(r.Context(), workspaceID, userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspace": item})
}

func (s *HTTPServer) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request, workspaceID, userID string) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ws, err := s.service.UpdateWorkspace(r.Context(), workspaceID, body.Name, userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspace": ws})
}

func (s *HTTPServer) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request, workspaceID, userID string) {
	if err := s.service.DeleteWorkspace(r.Context(), workspaceID, userID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGetWorkspacePages(w http.ResponseWriter, r *http.Request, workspaceID, userID string) {
	tree, source, err := s.service.GetWorkspacePages(r.Context(), workspaceID, userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": tree, "source": source})
}

func (s *HTTPServer) handleCreatePage(w http.ResponseWriter, r *http.Request, workspaceID, userID string) {
	var body struct {
		ParentPageID *string         `json:"parent_page_id"`
		Title        string          `json:"title"`
		Content      json.RawMessage `json:"content"`
		Icon         *string         `json:"icon"`
		CoverImage   *string         `json:"cover_image"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ParentPageID != nil && !util.IsUUID(*body.ParentPageID) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "parent_page_id must be a UUID", nil)
		return
	}

	page, err := s.service.CreatePage(r.Context(), workspaceID, CreatePageInput{
		ParentPageID: body.ParentPageID,
		Title:        body.Title,
		Content:      body.Content,
		Icon:         body.Icon,
		CoverImage:   body.CoverImage,
	}, userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"page": page})
}

func (s *HTTPServer) handleGetPage(w http.ResponseWriter, r *http.Request, workspaceID, pageID, userID string) {
	page, source, err := s.service.GetPageByID(r.Context(), pageID, userID, workspaceID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "source": source})
}

func (s *HTTPServer) handleUpdatePage(w http.ResponseWriter, r *http.Request, workspaceID, pageID, userID string) {
	var body struct {
		Title      *string         `json:"title"`
		Content    json.RawMessage `json:"content"`
		Icon       *string         `json:"icon"`
		CoverImage *string         `json:"cover_image"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	page, err := s.service.UpdatePage(r.Context(), pageID, store.UpdatePageFields{
		Title:      body.Title,
		Content:    body.Content,
		Icon:       body.Icon,
		CoverImage: body.CoverImage,
	}, userID, workspaceID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page})
}

func (s *HTTPServer) handleDeletePage(w http.ResponseWriter, r *http.Request, workspaceID, pageID, userID string) {
	if err := s.service.DeletePage(r.Context(), pageID, userID, workspaceID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGetChildPages(w http.ResponseWriter, r *http.Request, workspaceID, pageID, userID string) {
	children, source, err := s.service.GetChildPages(r.Context(), pageID, userID, workspaceID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": children, "source": source})
}

func (s *HTTPServer) handleMovePage(w http.ResponseWriter, r *http.Request, workspaceID, pageID, userID string) {
	var body struct {
		ParentPageID *string `json:"parent_page_id"`
		Position     *int    `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ParentPageID != nil && !util.IsUUID(*body.ParentPageID) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "parent_page_id must be a UUID", nil)
		return
	}

	page, err := s.service.MovePage(r.Context(), pageID, MovePageInput{
		ParentPageID: body.ParentPageID,
		Position:     body.Position,
	}, userID, workspaceID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page})
}

func (s *HTTPServer) handleArchivePage(w http.ResponseWriter, r *http.Request, workspaceID, pageID, userID string) {
	var body struct {
		IsArchived *bool `json:"is_archived"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.IsArchived == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "is_archived is required", nil)
		return
	}

	page, err := s.service.ArchivePage(r.Context(), pageID, *body.IsArchived, userID, workspaceID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, x-user-id")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
