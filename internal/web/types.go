package web

import (
	"database/sql"
	"time"

	"github.com/hlopes/majordomo/internal/database"
)

// taskResponse is the wire form of a task. Optional columns are rendered as
// null rather than zero values.
type taskResponse struct {
	ID                 int64                `json:"id"`
	Title              string               `json:"title"`
	Status             database.TaskStatus  `json:"status"`
	Priority           int                  `json:"priority"`
	Topic              string               `json:"topic,omitempty"`
	DueDate            *time.Time           `json:"due_date"`
	DueHasTime         bool                 `json:"due_has_time"`
	ReminderAt         *time.Time           `json:"reminder_at"`
	Context            database.TaskContext `json:"context"`
	ParentID           *int64               `json:"parent_id"`
	RecurrenceRule     *string              `json:"recurrence_rule"`
	RecurrenceSourceID *int64               `json:"recurrence_source_id"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	CompletedAt        *time.Time           `json:"completed_at"`
}

func toTaskResponse(t database.Task) taskResponse {
	return taskResponse{
		ID:                 t.ID,
		Title:              t.Title,
		Status:             t.Status,
		Priority:           t.Priority,
		Topic:              t.Topic,
		DueDate:            nullTimePtr(t.DueDate),
		DueHasTime:         t.DueHasTime,
		ReminderAt:         nullTimePtr(t.ReminderAt),
		Context:            t.Context,
		ParentID:           nullInt64Ptr(t.ParentID),
		RecurrenceRule:     nullStringPtr(t.RecurrenceRule),
		RecurrenceSourceID: nullInt64Ptr(t.RecurrenceSourceID),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		CompletedAt:        nullTimePtr(t.CompletedAt),
	}
}

func toTaskResponses(tasks []database.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

type reminderResponse struct {
	ID           int64     `json:"id"`
	Message      string    `json:"message"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Sent         bool      `json:"sent"`
	TaskID       *int64    `json:"task_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func toReminderResponse(rem database.Reminder) reminderResponse {
	return reminderResponse{
		ID:           rem.ID,
		Message:      rem.Message,
		ScheduledFor: rem.ScheduledFor,
		Sent:         rem.Sent,
		TaskID:       nullInt64Ptr(rem.TaskID),
		CreatedAt:    rem.CreatedAt,
	}
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
