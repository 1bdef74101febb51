package api

import (
	"net/http"
	"strings"

	"github.io/infrasutra/mailroom/internal/pagination"
	"github.io/infrasutra/mailroom/internal/query"
	"github.io/infrasutra/mailroom/internal/store"
)

type bulkUpdateRequest struct {
	IDs        []int64         `json:"ids"`
	UpdateData store.BulkPatch `json:"updateData"`
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleCreate(w, r)
	default:
		s.respondMethodNotAllowed(w)
	}
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/emails/")
	if rest == "" {
		s.respondNotFoundRoute(w, r)
		return
	}

	if term, ok := strings.CutPrefix(rest, "search/"); ok {
		if r.Method != http.MethodGet {
			s.respondMethodNotAllowed(w)
			return
		}
		s.handleSearch(w, r, term)
		return
	}

	switch rest {
	case "bulk-update":
		if r.Method != http.MethodPut {
			s.respondMethodNotAllowed(w)
			return
		}
		s.handleBulkUpdate(w, r)
		return
	case "bulk-delete":
		if r.Method != http.MethodDelete {
			s.respondMethodNotAllowed(w)
			return
		}
		s.handleBulkDelete(w, r)
		return
	}

	if strings.Contains(rest, "/") {
		s.respondNotFoundRoute(w, r)
		return
	}
	id, ok := parseID(rest)
	if !ok {
		s.respondJSON(w, http.StatusBadRequest, errorBody("Invalid email ID", "Email ID must be a valid number"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, id)
	case http.MethodPut:
		s.handleUpdate(w, r, id)
	case http.MethodDelete:
		s.handleDelete(w, r, id)
	default:
		s.respondMethodNotAllowed(w)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.engine.List(r.Context(), pagination.FromQuery(q), query.ParseFilter(q.Get("filter")))
	if err != nil {
		s.respondError(w, r, err, "Failed to fetch emails")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       page.Records,
		"pagination": page.Pagination,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, term string) {
	page, err := s.engine.Search(r.Context(), term, pagination.FromQuery(r.URL.Query()))
	if err != nil {
		s.respondError(w, r, err, "Failed to search emails")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       page.Records,
		"pagination": page.Pagination,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, id int64) {
	message, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, "Failed to fetch email")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": message})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var fields store.Fields
	if !s.decodeJSON(w, r, &fields) {
		return
	}
	if err := fields.Validate(); err != nil {
		s.respondError(w, r, err, "Failed to create email")
		return
	}

	result, err := s.mailer.Send(r.Context(), fields)
	if err != nil {
		s.respondError(w, r, err, "Failed to create email")
		return
	}
	s.publish("created", result.Message)

	payload := map[string]any{
		"success":   true,
		"data":      result.Message,
		"emailSent": result.Sent,
		"message":   result.Notice,
	}
	if result.MessageID != "" {
		payload["messageId"] = result.MessageID
	}
	if result.Error != "" {
		payload["sendError"] = result.Error
	}
	s.respondJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	var patch store.Patch
	if !s.decodeJSON(w, r, &patch) {
		return
	}
	if err := patch.Validate(); err != nil {
		s.respondError(w, r, err, "Failed to update email")
		return
	}
	message, err := s.repo.Update(r.Context(), id, patch)
	if err != nil {
		s.respondError(w, r, err, "Failed to update email")
		return
	}
	s.publish("updated", message)
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": message})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id int64) {
	deleted, err := s.repo.Delete(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, "Failed to delete email")
		return
	}
	if !deleted {
		s.respondError(w, r, store.ErrNotFound, "Failed to delete email")
		return
	}
	s.publish("deleted", map[string]int64{"id": id})
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email deleted successfully"})
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.repo.BulkUpdate(r.Context(), req.IDs, req.UpdateData)
	if err != nil {
		s.respondError(w, r, err, "Failed to update emails")
		return
	}
	s.publish("bulk-updated", map[string]any{"ids": req.IDs, "updated": updated})
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	deleted, err := s.repo.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		s.respondError(w, r, err, "Failed to delete emails")
		return
	}
	s.publish("bulk-deleted", map[string]any{"ids": req.IDs, "deleted": deleted})
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}
