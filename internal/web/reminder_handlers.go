package web

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hlopes/majordomo/internal/database"
)

type reminderCreateRequest struct {
	Message      string     `json:"message"`
	ScheduledFor *time.Time `json:"scheduled_for"`
	TaskID       *int64     `json:"task_id"`
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.ScheduledFor == nil {
		s.badRequest(w, "scheduled_for is required")
		return
	}

	rem := &database.Reminder{
		Message:      req.Message,
		ScheduledFor: *req.ScheduledFor,
	}
	if req.TaskID != nil {
		rem.TaskID = sql.NullInt64{Int64: *req.TaskID, Valid: true}
	}

	if err := s.store.CreateReminder(r.Context(), rem); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toReminderResponse(*rem))
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	includeSent := r.URL.Query().Get("include_sent") == "true"

	reminders, err := s.store.ListReminders(r.Context(), includeSent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]reminderResponse, 0, len(reminders))
	for _, rem := range reminders {
		out = append(out, toReminderResponse(rem))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.CancelReminder(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
