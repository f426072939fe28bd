package web

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hlopes/majordomo/internal/database"
)

type taskCreateRequest struct {
	Title          string               `json:"title"`
	Status         database.TaskStatus  `json:"status"`
	Priority       int                  `json:"priority"`
	Topic          string               `json:"topic"`
	DueDate        *time.Time           `json:"due_date"`
	DueHasTime     *bool                `json:"due_has_time"`
	ReminderAt     *time.Time           `json:"reminder_at"`
	Context        database.TaskContext `json:"context"`
	ParentID       *int64               `json:"parent_id"`
	RecurrenceRule *string              `json:"recurrence_rule"`
}

type taskUpdateRequest struct {
	Title           *string              `json:"title"`
	Status          *database.TaskStatus `json:"status"`
	Priority        *int                 `json:"priority"`
	Topic           *string              `json:"topic"`
	DueDate         *time.Time           `json:"due_date"`
	DueHasTime      *bool                `json:"due_has_time"`
	ClearDueDate    bool                 `json:"clear_due_date"`
	ReminderAt      *time.Time           `json:"reminder_at"`
	ClearReminder   bool                 `json:"clear_reminder"`
	Context         database.TaskContext `json:"context"`
	ParentID        *int64               `json:"parent_id"`
	ClearParent     bool                 `json:"clear_parent"`
	RecurrenceRule  *string              `json:"recurrence_rule"`
	ClearRecurrence bool                 `json:"clear_recurrence"`
}

type bulkStatusRequest struct {
	IDs    []int64             `json:"ids"`
	Status database.TaskStatus `json:"status"`
}

type bulkPriorityRequest struct {
	IDs      []int64 `json:"ids"`
	Priority int     `json:"priority"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	task := &database.Task{
		Title:    req.Title,
		Status:   req.Status,
		Priority: req.Priority,
		Topic:    req.Topic,
		Context:  req.Context,
	}
	if req.DueDate != nil {
		task.DueDate = sql.NullTime{Time: *req.DueDate, Valid: true}
		task.DueHasTime = req.DueHasTime == nil || *req.DueHasTime
	}
	if req.ReminderAt != nil {
		task.ReminderAt = sql.NullTime{Time: *req.ReminderAt, Valid: true}
	}
	if req.ParentID != nil {
		task.ParentID = sql.NullInt64{Int64: *req.ParentID, Valid: true}
	}
	if req.RecurrenceRule != nil {
		task.RecurrenceRule = sql.NullString{String: *req.RecurrenceRule, Valid: true}
	}

	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTaskResponse(*task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	upd := database.TaskUpdate{
		Title:           req.Title,
		Status:          req.Status,
		Priority:        req.Priority,
		Topic:           req.Topic,
		DueDate:         req.DueDate,
		DueHasTime:      req.DueHasTime,
		ClearDueDate:    req.ClearDueDate,
		ReminderAt:      req.ReminderAt,
		ClearReminder:   req.ClearReminder,
		Context:         req.Context,
		ParentID:        req.ParentID,
		ClearParent:     req.ClearParent,
		RecurrenceRule:  req.RecurrenceRule,
		ClearRecurrence: req.ClearRecurrence,
	}

	task, err := s.store.UpdateTask(r.Context(), id, upd, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.TaskFilter{
		Topic:    q.Get("topic"),
		Due:      database.DueCategory(q.Get("due")),
		Now:      s.now(),
		Location: s.loc,
		RootOnly: q.Get("root_only") == "true",
	}
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, database.TaskStatus(part))
			}
		}
	}
	for _, raw := range q["priority"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			p, err := strconv.Atoi(part)
			if err != nil {
				s.badRequest(w, "invalid priority filter: "+part)
				return
			}
			filter.Priorities = append(filter.Priorities, p)
		}
	}

	tasks, err := s.store.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

func (s *Server) handleSearchTasks(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.badRequest(w, "missing 'q' parameter")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.badRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	tasks, err := s.store.SearchTasks(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

func (s *Server) handleSubtasks(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	tasks, err := s.store.Subtasks(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

func (s *Server) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		s.badRequest(w, "ids must not be empty")
		return
	}

	updated, err := s.store.BulkUpdateStatus(r.Context(), req.IDs, req.Status, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *Server) handleBulkPriority(w http.ResponseWriter, r *http.Request) {
	var req bulkPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		s.badRequest(w, "ids must not be empty")
		return
	}

	updated, err := s.store.BulkUpdatePriority(r.Context(), req.IDs, req.Priority, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// pathID parses the {id} path segment; on failure it writes the response
// itself and reports false.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}
