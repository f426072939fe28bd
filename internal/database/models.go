package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus enumerates the allowed task states.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is one of the allowed task states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s ends a task's lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Task priorities run 1 (low) to 4 (urgent).
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
	PriorityUrgent = 4
)

// TaskContext is an open key/value map attached to a task. Values are
// restricted to scalars (string, number, bool, timestamp); updates merge
// rather than replace. It is stored as a JSON text column.
type TaskContext map[string]any

// Merge applies updates onto c: new keys are added, existing keys
// overwritten. Nested maps and slices are rejected.
func (c TaskContext) Merge(updates TaskContext) error {
	for k, v := range updates {
		switch v.(type) {
		case nil, string, bool, float64, int, int64, time.Time:
		default:
			return fmt.Errorf("%w: context value for %q must be a scalar", ErrValidation, k)
		}
		c[k] = v
	}
	return nil
}

// Value implements driver.Valuer, serializing the context as JSON.
func (c TaskContext) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task context: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *TaskContext) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = TaskContext{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into TaskContext", src)
	}
	if len(data) == 0 {
		*c = TaskContext{}
		return nil
	}
	return json.Unmarshal(data, c)
}

// Task is a tracked unit of work. All timestamps are stored in UTC.
type Task struct {
	ID                 int64          `db:"id"`
	Title              string         `db:"title"`
	Status             TaskStatus     `db:"status"`
	Priority           int            `db:"priority"`
	Topic              string         `db:"topic"`
	DueDate            sql.NullTime   `db:"due_date"`
	DueHasTime         bool           `db:"due_has_time"`
	ReminderAt         sql.NullTime   `db:"reminder_at"`
	Context            TaskContext    `db:"context"`
	ParentID           sql.NullInt64  `db:"parent_id"`
	RecurrenceRule     sql.NullString `db:"recurrence_rule"`
	RecurrenceSourceID sql.NullInt64  `db:"recurrence_source_id"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
}

// Reminder is a one-shot message scheduled for delivery. Once Sent is set
// the row is immutable.
type Reminder struct {
	ID           int64         `db:"id"`
	Message      string        `db:"message"`
	ScheduledFor time.Time     `db:"scheduled_for"`
	Sent         bool          `db:"sent"`
	TaskID       sql.NullInt64 `db:"task_id"`
	CreatedAt    time.Time     `db:"created_at"`
}

// CalendarEvent is a locally cached copy of an event fetched from the
// external calendar collaborator.
type CalendarEvent struct {
	ID         int64     `db:"id"`
	ExternalID string    `db:"external_id"`
	Title      string    `db:"title"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	SyncedAt   time.Time `db:"synced_at"`
}

// MigrationRecord is a row in the data-migration ledger.
type MigrationRecord struct {
	ID          string    `db:"id"`
	Description string    `db:"description"`
	AppliedAt   time.Time `db:"applied_at"`
}
