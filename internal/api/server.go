package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.io/infrasutra/mailroom/internal/config"
	"github.io/infrasutra/mailroom/internal/delivery"
	"github.io/infrasutra/mailroom/internal/query"
	"github.io/infrasutra/mailroom/internal/sse"
	"github.io/infrasutra/mailroom/internal/store"
)

const maxBodyBytes = 1 << 20

// Repository is the store surface the handlers use.
type Repository interface {
	query.Repository
	GetByID(ctx context.Context, id int64) (store.Message, error)
	Update(ctx context.Context, id int64, patch store.Patch) (store.Message, error)
	Delete(ctx context.Context, id int64) (bool, error)
	BulkUpdate(ctx context.Context, ids []int64, patch store.BulkPatch) (int, error)
	BulkDelete(ctx context.Context, ids []int64) (int, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Mailer persists and delivers new messages.
type Mailer interface {
	Send(ctx context.Context, fields store.Fields) (delivery.Result, error)
	SendTest(ctx context.Context) delivery.Result
	VerifyConnection(ctx context.Context) bool
	Configured() bool
}

type Server struct {
	cfg     config.Config
	repo    Repository
	engine  *query.Engine
	mailer  Mailer
	hub     *sse.Hub
	logger  *slog.Logger
	mux     *http.ServeMux
	started time.Time
	now     func() time.Time
}

func NewServer(cfg config.Config, repo Repository, mailer Mailer, hub *sse.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := &Server{
		cfg:     cfg,
		repo:    repo,
		engine:  query.NewEngine(repo),
		mailer:  mailer,
		hub:     hub,
		logger:  logger,
		started: time.Now(),
		now:     time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/emails", server.handleEmails)
	mux.HandleFunc("/api/emails/", server.handleEmail)
	mux.HandleFunc("/api/stats", server.handleStats)
	mux.HandleFunc("/api/test-email", server.handleTestEmail)
	mux.HandleFunc("/api/smtp-status", server.handleSMTPStatus)
	mux.HandleFunc("/api/stream", server.handleStream)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	path := r.URL.Path
	if path == "/health" {
		s.handleHealth(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/") {
		s.mux.ServeHTTP(w, r)
		return
	}
	s.respondNotFoundRoute(w, r)
}

func (s *Server) setCORS(w http.ResponseWriter) {
	if s.cfg.FrontendURL == "" {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", s.cfg.FrontendURL)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Add("Vary", "Origin")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	now := s.now()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339Nano),
		"uptime":    now.Sub(s.started).Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	stats, err := s.repo.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err, "Failed to fetch email stats")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": stats})
}

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}
	result := s.mailer.SendTest(r.Context())
	payload := map[string]any{
		"success": result.State != delivery.StateDeliveryFailed,
		"sent":    result.Sent,
		"message": result.Notice,
	}
	if result.MessageID != "" {
		payload["messageId"] = result.MessageID
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	s.respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSMTPStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"smtpConfigured": s.mailer.Configured(),
		"smtpConnected":  s.mailer.VerifyConnection(r.Context()),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

// publish announces a mutation to stream subscribers.
func (s *Server) publish(event string, data any) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(event, data); err != nil {
		s.logger.Warn("publish event", "event", event, "error", err)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		message := "Request body must be valid JSON"
		if errors.Is(err, io.EOF) {
			message = "Request body is required"
		}
		s.respondJSON(w, http.StatusBadRequest, errorBody("Validation error", message))
		return false
	}
	return true
}

// respondError maps store sentinels onto status codes. Anything else is a
// 500 and is logged with detail.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, store.ErrInvalidArgument):
		s.respondJSON(w, http.StatusBadRequest, errorBody("Validation error", store.Reason(err)))
	case errors.Is(err, store.ErrNotFound):
		s.respondJSON(w, http.StatusNotFound, errorBody("Email not found", "The requested email does not exist"))
	default:
		s.logger.Error(strings.ToLower(failure), "error", err, "method", r.Method, "path", r.URL.Path)
		s.respondJSON(w, http.StatusInternalServerError, errorBody("Internal server error", failure))
	}
}

func (s *Server) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusMethodNotAllowed, errorBody("Method not allowed", "The method is not supported for this route"))
}

func (s *Server) respondNotFoundRoute(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusNotFound, errorBody("Not found", fmt.Sprintf("Route %s:%s not found", r.Method, r.URL.Path)))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorBody(kind, message string) map[string]any {
	return map[string]any{"success": false, "error": kind, "message": message}
}

// parseID accepts only unsigned decimal ids.
func parseID(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
