package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Validation and invariant errors reported to callers. These are rejected
// synchronously with no state change.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("priority must be between 1 and 4")
	ErrParentCycle     = errors.New("parent_id would create a cycle")
	ErrReminderSent    = errors.New("reminder already sent")
)

// DueCategory selects tasks by due-date bucket, evaluated against the
// caller-supplied "now" in the configured timezone.
type DueCategory string

const (
	DueAny      DueCategory = ""
	DueToday    DueCategory = "today"
	DueOverdue  DueCategory = "overdue"
	DueThisWeek DueCategory = "this_week"
	DueNoDate   DueCategory = "no_date"
)

// TaskFilter composes the supported listTasks predicates.
type TaskFilter struct {
	Statuses   []TaskStatus
	Topic      string
	Priorities []int
	Due        DueCategory
	Now        time.Time
	Location   *time.Location
	RootOnly   bool
}

// TaskUpdate carries partial task mutations. Nil pointer fields are left
// untouched; Context entries merge into the existing map.
type TaskUpdate struct {
	Title           *string
	Status          *TaskStatus
	Priority        *int
	Topic           *string
	DueDate         *time.Time
	DueHasTime      *bool
	ClearDueDate    bool
	ReminderAt      *time.Time
	ClearReminder   bool
	Context         TaskContext
	ParentID        *int64
	ClearParent     bool
	RecurrenceRule  *string
	ClearRecurrence bool
}

// Store defines the data access layer. Every mutating operation executes
// inside one scoped transaction: begin, run, commit on success, roll back on
// any failure. Helper functions running within a scope never commit on their
// own.
type Store interface {
	Ping(ctx context.Context) error

	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	UpdateTask(ctx context.Context, id int64, upd TaskUpdate, now time.Time) (*Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	SearchTasks(ctx context.Context, query string, limit int) ([]Task, error)
	Subtasks(ctx context.Context, id int64) ([]Task, error)
	BulkUpdateStatus(ctx context.Context, ids []int64, status TaskStatus, now time.Time) (int64, error)
	BulkUpdatePriority(ctx context.Context, ids []int64, priority int, now time.Time) (int64, error)

	CreateReminder(ctx context.Context, reminder *Reminder) error
	ListReminders(ctx context.Context, includeSent bool) ([]Reminder, error)
	DueRemindersAsOf(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id int64) error
	CancelReminder(ctx context.Context, id int64) error

	// DeliverDueReminders selects due unsent reminders, invokes deliver for
	// each, and marks them sent, all within one transaction scope. A crash
	// before commit leaves the reminders pending for the next run.
	DeliverDueReminders(ctx context.Context, now time.Time, deliver func(Reminder)) ([]Reminder, error)

	ListOverdueTasks(ctx context.Context, now time.Time) ([]Task, error)
	ListTasksDueBetween(ctx context.Context, start, end time.Time) ([]Task, error)
	ListTasksCompletedBetween(ctx context.Context, start, end time.Time) ([]Task, error)
	CountBacklogTasks(ctx context.Context) (int, error)

	// SweepRecurring spawns missing next instances for completed recurring
	// tasks that have no live successor. It is the fallback for crashes
	// between a done transition and its synchronous spawn.
	SweepRecurring(ctx context.Context, now time.Time) ([]Task, error)

	SyncCalendarEvent(ctx context.Context, event *CalendarEvent) error
	ListCalendarEventsRange(ctx context.Context, start, end time.Time) ([]CalendarEvent, error)

	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store on sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx is the transaction scope owner: it begins a transaction, runs fn,
// and commits on success. Roll back happens on every other exit path,
// including panics unwinding through the deferred handler.
func (s *sqlxStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.Warn("Error rolling back transaction", "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// RunMaintenance performs periodic database housekeeping.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	s.logger.DebugContext(ctx, "Database maintenance completed")
	return nil
}
