// Package web exposes the assistant core over a small JSON API. It is a
// thin translation layer: request decoding, store calls, response encoding.
// All domain rules live in the database package.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hlopes/majordomo/internal/database"
)

// Server wraps the HTTP listener and its dependencies.
type Server struct {
	httpServer *http.Server
	store      database.Store
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewServer builds the API server bound to addr. The location is used for
// due-date bucket evaluation on list queries.
func NewServer(addr string, store database.Store, logger *slog.Logger, loc *time.Location) *Server {
	s := &Server{
		store:  store,
		logger: logger.With("component", "web"),
		loc:    loc,
		now:    time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks/search", s.handleSearchTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("GET /tasks/{id}/subtasks", s.handleSubtasks)
	mux.HandleFunc("POST /tasks/bulk/status", s.handleBulkStatus)
	mux.HandleFunc("POST /tasks/bulk/priority", s.handleBulkPriority)

	mux.HandleFunc("GET /reminders", s.handleListReminders)
	mux.HandleFunc("POST /reminders", s.handleCreateReminder)
	mux.HandleFunc("DELETE /reminders/{id}", s.handleCancelReminder)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the listener until Shutdown is called or the listener fails.
// http.ErrServerClosed is swallowed so a clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("Starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routing mux, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}

// writeError translates store errors into HTTP statuses. Validation and
// invariant violations are client errors; anything unknown is a 500 with
// the detail kept in the log rather than the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, database.ErrReminderSent):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, database.ErrValidation),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrInvalidPriority),
		errors.Is(err, database.ErrParentCycle):
		status = http.StatusBadRequest
		message = err.Error()
	default:
		s.logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}
