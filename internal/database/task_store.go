package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hlopes/majordomo/internal/recurrence"
)

const taskColumns = `id, title, status, priority, topic, due_date, due_has_time,
	reminder_at, context, parent_id, recurrence_rule, recurrence_source_id,
	created_at, updated_at, completed_at`

// maxParentDepth bounds the ancestor walk when rejecting parent cycles.
const maxParentDepth = 100

// CreateTask validates and inserts a new task. Zero-value status and
// priority default to pending / medium.
func (s *sqlxStore) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrValidation)
	}
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if !task.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, task.Status)
	}
	if task.Priority == 0 {
		task.Priority = PriorityMedium
	}
	if task.Priority < PriorityLow || task.Priority > PriorityUrgent {
		return ErrInvalidPriority
	}
	if task.RecurrenceRule.Valid {
		if err := recurrence.Validate(task.RecurrenceRule.String); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if task.Context == nil {
		task.Context = TaskContext{}
	}
	if err := (TaskContext{}).Merge(task.Context); err != nil {
		return err
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	normalizeTaskTimes(task)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if task.ParentID.Valid {
			if _, err := getTaskTx(ctx, tx, task.ParentID.Int64); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: parent task %d does not exist", ErrValidation, task.ParentID.Int64)
				}
				return err
			}
		}
		return insertTaskTx(ctx, tx, task)
	})
}

// GetTask fetches a task by id.
func (s *sqlxStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	var task Task
	err := s.db.GetContext(ctx, &task, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return &task, nil
}

// UpdateTask applies a partial update inside one transaction scope. A
// transition to done stamps completed_at with the caller-supplied now and,
// for recurring tasks, materializes the next instance in the same scope so a
// crash cannot drop the occurrence.
func (s *sqlxStore) UpdateTask(ctx context.Context, id int64, upd TaskUpdate, now time.Time) (*Task, error) {
	now = now.UTC()
	var updated *Task

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		task, err := getTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}

		wasDone := task.Status == StatusDone

		if upd.Title != nil {
			if strings.TrimSpace(*upd.Title) == "" {
				return fmt.Errorf("%w: title must not be empty", ErrValidation)
			}
			task.Title = *upd.Title
		}
		if upd.Status != nil {
			if !upd.Status.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidStatus, *upd.Status)
			}
			task.Status = *upd.Status
		}
		if upd.Priority != nil {
			if *upd.Priority < PriorityLow || *upd.Priority > PriorityUrgent {
				return ErrInvalidPriority
			}
			task.Priority = *upd.Priority
		}
		if upd.Topic != nil {
			task.Topic = *upd.Topic
		}
		if upd.ClearDueDate {
			task.DueDate = sql.NullTime{}
			task.DueHasTime = false
		} else {
			if upd.DueDate != nil {
				task.DueDate = sql.NullTime{Time: upd.DueDate.UTC(), Valid: true}
				if upd.DueHasTime == nil {
					task.DueHasTime = true
				}
			}
			// DueHasTime on its own toggles the precision of an existing
			// due date; without any due date it has nothing to qualify.
			if upd.DueHasTime != nil && task.DueDate.Valid {
				task.DueHasTime = *upd.DueHasTime
			}
		}
		if upd.ClearReminder {
			task.ReminderAt = sql.NullTime{}
		} else if upd.ReminderAt != nil {
			task.ReminderAt = sql.NullTime{Time: upd.ReminderAt.UTC(), Valid: true}
		}
		if upd.Context != nil {
			if task.Context == nil {
				task.Context = TaskContext{}
			}
			if err := task.Context.Merge(upd.Context); err != nil {
				return err
			}
		}
		if upd.ClearParent {
			task.ParentID = sql.NullInt64{}
		} else if upd.ParentID != nil {
			if err := checkParentCycle(ctx, tx, id, *upd.ParentID); err != nil {
				return err
			}
			task.ParentID = sql.NullInt64{Int64: *upd.ParentID, Valid: true}
		}
		if upd.ClearRecurrence {
			task.RecurrenceRule = sql.NullString{}
		} else if upd.RecurrenceRule != nil {
			if err := recurrence.Validate(*upd.RecurrenceRule); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			task.RecurrenceRule = sql.NullString{String: *upd.RecurrenceRule, Valid: true}
		}

		// completed_at is set iff status = done.
		switch {
		case task.Status == StatusDone && !wasDone:
			task.CompletedAt = sql.NullTime{Time: now, Valid: true}
		case task.Status != StatusDone:
			task.CompletedAt = sql.NullTime{}
		}

		task.UpdatedAt = now

		query := `UPDATE tasks SET title = :title, status = :status,
			priority = :priority, topic = :topic, due_date = :due_date,
			due_has_time = :due_has_time, reminder_at = :reminder_at,
			context = :context, parent_id = :parent_id,
			recurrence_rule = :recurrence_rule,
			recurrence_source_id = :recurrence_source_id,
			updated_at = :updated_at, completed_at = :completed_at
			WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, task); err != nil {
			return fmt.Errorf("failed to update task %d: %w", id, err)
		}

		if task.Status == StatusDone && !wasDone && task.RecurrenceRule.Valid {
			if _, err := spawnNextInstanceTx(ctx, tx, task, now); err != nil {
				return err
			}
		}

		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task. Administrative operation; the scheduler itself
// never deletes tasks.
func (s *sqlxStore) DeleteTask(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete task %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// ListTasks returns tasks matching the filter, newest first.
func (s *sqlxStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []any

	if len(filter.Statuses) > 0 {
		for _, st := range filter.Statuses {
			if !st.Valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
			}
		}
		q, a, err := sqlx.In(" AND status IN (?)", filter.Statuses)
		if err != nil {
			return nil, fmt.Errorf("failed to build status filter: %w", err)
		}
		query += q
		args = append(args, a...)
	}
	if filter.Topic != "" {
		query += " AND topic = ?"
		args = append(args, filter.Topic)
	}
	if len(filter.Priorities) > 0 {
		q, a, err := sqlx.In(" AND priority IN (?)", filter.Priorities)
		if err != nil {
			return nil, fmt.Errorf("failed to build priority filter: %w", err)
		}
		query += q
		args = append(args, a...)
	}
	if filter.RootOnly {
		query += " AND parent_id IS NULL"
	}

	if filter.Due != DueAny {
		loc := filter.Location
		if loc == nil {
			loc = time.UTC
		}
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		now = now.In(loc)
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

		switch filter.Due {
		case DueToday:
			query += " AND due_date >= ? AND due_date < ?"
			args = append(args, dayStart.UTC(), dayStart.AddDate(0, 0, 1).UTC())
		case DueOverdue:
			query += " AND due_date IS NOT NULL AND due_date < ?"
			args = append(args, now.UTC())
		case DueThisWeek:
			query += " AND due_date >= ? AND due_date < ?"
			args = append(args, dayStart.UTC(), dayStart.AddDate(0, 0, 7).UTC())
		case DueNoDate:
			query += " AND due_date IS NULL"
		default:
			return nil, fmt.Errorf("%w: unknown due category %q", ErrValidation, filter.Due)
		}
	}

	query += " ORDER BY created_at DESC"

	var tasks []Task
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// SearchTasks performs a ranked substring match over title, topic, and
// context. Title hits rank above topic hits, topic above context; ties break
// by most recent update.
func (s *sqlxStore) SearchTasks(ctx context.Context, query string, limit int) ([]Task, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query must not be empty", ErrValidation)
	}
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + escapeLike(query) + "%"
	sqlQuery := `SELECT ` + taskColumns + ` FROM tasks
		WHERE title LIKE ? ESCAPE '\'
		   OR topic LIKE ? ESCAPE '\'
		   OR context LIKE ? ESCAPE '\'
		ORDER BY CASE
			WHEN title LIKE ? ESCAPE '\' THEN 0
			WHEN topic LIKE ? ESCAPE '\' THEN 1
			ELSE 2
		END, updated_at DESC
		LIMIT ?`

	var tasks []Task
	err := s.db.SelectContext(ctx, &tasks, sqlQuery,
		pattern, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}
	return tasks, nil
}

// Subtasks returns the direct children of a task, oldest first.
func (s *sqlxStore) Subtasks(ctx context.Context, id int64) ([]Task, error) {
	var tasks []Task
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT "+taskColumns+" FROM tasks WHERE parent_id = ? ORDER BY created_at", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks of %d: %w", id, err)
	}
	return tasks, nil
}

// BulkUpdateStatus sets the status for the given id-set in a single
// statement. Recurring tasks completed this way get their next instance from
// the recurrence sweep rather than a per-row spawn.
func (s *sqlxStore) BulkUpdateStatus(ctx context.Context, ids []int64, status TaskStatus, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !status.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	now = now.UTC()

	var completedAt any
	if status == StatusDone {
		completedAt = now
	}

	query, args, err := sqlx.In(
		"UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE id IN (?)",
		status, completedAt, now, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build bulk status update: %w", err)
	}

	var affected int64
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			return fmt.Errorf("bulk status update failed: %w", execErr)
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	return affected, err
}

// BulkUpdatePriority sets the priority for the given id-set in a single
// statement.
func (s *sqlxStore) BulkUpdatePriority(ctx context.Context, ids []int64, priority int, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if priority < PriorityLow || priority > PriorityUrgent {
		return 0, ErrInvalidPriority
	}

	query, args, err := sqlx.In(
		"UPDATE tasks SET priority = ?, updated_at = ? WHERE id IN (?)",
		priority, now.UTC(), ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build bulk priority update: %w", err)
	}

	var affected int64
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			return fmt.Errorf("bulk priority update failed: %w", execErr)
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	return affected, err
}

// ListOverdueTasks returns active tasks whose due date has passed.
func (s *sqlxStore) ListOverdueTasks(ctx context.Context, now time.Time) ([]Task, error) {
	var tasks []Task
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT "+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date < ?
		  AND status IN (?, ?)
		ORDER BY due_date`,
		now.UTC(), StatusPending, StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksDueBetween returns active tasks due in [start, end).
func (s *sqlxStore) ListTasksDueBetween(ctx context.Context, start, end time.Time) ([]Task, error) {
	var tasks []Task
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT "+taskColumns+` FROM tasks
		WHERE due_date >= ? AND due_date < ?
		  AND status IN (?, ?)
		ORDER BY due_date`,
		start.UTC(), end.UTC(), StatusPending, StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks due between: %w", err)
	}
	return tasks, nil
}

// ListTasksCompletedBetween returns tasks completed in [start, end).
func (s *sqlxStore) ListTasksCompletedBetween(ctx context.Context, start, end time.Time) ([]Task, error) {
	var tasks []Task
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT "+taskColumns+` FROM tasks
		WHERE completed_at IS NOT NULL AND completed_at >= ? AND completed_at < ?
		ORDER BY completed_at`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list completed tasks: %w", err)
	}
	return tasks, nil
}

// CountBacklogTasks counts pending tasks with no due date.
func (s *sqlxStore) CountBacklogTasks(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM tasks WHERE status = ? AND due_date IS NULL", StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count backlog tasks: %w", err)
	}
	return count, nil
}

// SweepRecurring finds completed recurring tasks whose next instance is
// missing and materializes it. The spawn precondition makes this idempotent
// alongside the synchronous spawn in UpdateTask.
func (s *sqlxStore) SweepRecurring(ctx context.Context, now time.Time) ([]Task, error) {
	var spawned []Task

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var candidates []Task
		err := tx.SelectContext(ctx, &candidates,
			"SELECT "+taskColumns+` FROM tasks
			WHERE status = ? AND recurrence_rule IS NOT NULL
			ORDER BY id`, StatusDone)
		if err != nil {
			return fmt.Errorf("failed to list completed recurring tasks: %w", err)
		}

		for i := range candidates {
			task := &candidates[i]
			next, err := spawnNextInstanceTx(ctx, tx, task, now.UTC())
			if err != nil {
				return err
			}
			if next != nil {
				spawned = append(spawned, *next)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spawned, nil
}

// spawnNextInstanceTx materializes the next occurrence of a completed
// recurring task within the caller's transaction. Recurrence chains are
// flattened: the new instance points at the chain root, never at an
// intermediate instance. Returns nil without error when an instance for the
// computed due date already exists (the idempotence precondition) or the
// series has ended.
func spawnNextInstanceTx(ctx context.Context, tx *sqlx.Tx, task *Task, now time.Time) (*Task, error) {
	if !task.RecurrenceRule.Valid {
		return nil, nil
	}

	sourceID := task.ID
	if task.RecurrenceSourceID.Valid {
		sourceID = task.RecurrenceSourceID.Int64
	}

	completedAt := now
	if task.CompletedAt.Valid {
		completedAt = task.CompletedAt.Time
	}

	dtstart := completedAt
	if task.DueDate.Valid {
		dtstart = task.DueDate.Time
	}

	nextDue, ok, err := recurrence.NextAfter(task.RecurrenceRule.String, dtstart, completedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !ok {
		return nil, nil
	}

	// Idempotence precondition: re-running the same completion event must
	// not create a second instance.
	var existing int
	err = tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM tasks
		WHERE recurrence_source_id = ? AND due_date = ? AND status != ?`,
		sourceID, nextDue, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing instance: %w", err)
	}
	if existing > 0 {
		return nil, nil
	}

	next := &Task{
		Title:              task.Title,
		Status:             StatusPending,
		Priority:           task.Priority,
		Topic:              task.Topic,
		DueDate:            sql.NullTime{Time: nextDue, Valid: true},
		DueHasTime:         task.DueHasTime,
		Context:            task.Context,
		ParentID:           task.ParentID,
		RecurrenceRule:     task.RecurrenceRule,
		RecurrenceSourceID: sql.NullInt64{Int64: sourceID, Valid: true},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if next.Context == nil {
		next.Context = TaskContext{}
	}
	if err := insertTaskTx(ctx, tx, next); err != nil {
		return nil, err
	}

	if err := propagateRemindersTx(ctx, tx, task, next, now); err != nil {
		return nil, err
	}

	return next, nil
}

// propagateRemindersTx copies a completed recurring task's pending reminders
// to the new instance, shifted by the same offset from the due date.
// Reminders that would land in the past are skipped.
func propagateRemindersTx(ctx context.Context, tx *sqlx.Tx, source, next *Task, now time.Time) error {
	if !source.DueDate.Valid || !next.DueDate.Valid {
		return nil
	}

	var reminders []Reminder
	err := tx.SelectContext(ctx, &reminders,
		"SELECT id, message, scheduled_for, sent, task_id, created_at FROM reminders WHERE task_id = ? AND sent = 0",
		source.ID)
	if err != nil {
		return fmt.Errorf("failed to load reminders of task %d: %w", source.ID, err)
	}

	for _, rem := range reminders {
		offset := rem.ScheduledFor.Sub(source.DueDate.Time)
		at := next.DueDate.Time.Add(offset)
		if !at.After(now) {
			continue
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO reminders (message, scheduled_for, sent, task_id, created_at) VALUES (?, ?, 0, ?, ?)",
			rem.Message, at, next.ID, now)
		if err != nil {
			return fmt.Errorf("failed to propagate reminder %d: %w", rem.ID, err)
		}
	}
	return nil
}

func insertTaskTx(ctx context.Context, tx *sqlx.Tx, task *Task) error {
	query := `INSERT INTO tasks (title, status, priority, topic, due_date,
		due_has_time, reminder_at, context, parent_id, recurrence_rule,
		recurrence_source_id, created_at, updated_at, completed_at)
		VALUES (:title, :status, :priority, :topic, :due_date, :due_has_time,
		:reminder_at, :context, :parent_id, :recurrence_rule,
		:recurrence_source_id, :created_at, :updated_at, :completed_at)`

	res, err := tx.NamedExecContext(ctx, query, task)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted task id: %w", err)
	}
	task.ID = id
	return nil
}

func getTaskTx(ctx context.Context, tx *sqlx.Tx, id int64) (*Task, error) {
	var task Task
	if err := tx.GetContext(ctx, &task, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return &task, nil
}

// checkParentCycle walks the prospective parent's ancestor chain and rejects
// the update when taskID appears in it (or parent equals the task itself).
func checkParentCycle(ctx context.Context, tx *sqlx.Tx, taskID, parentID int64) error {
	current := parentID
	for depth := 0; depth < maxParentDepth; depth++ {
		if current == taskID {
			return ErrParentCycle
		}
		var next sql.NullInt64
		err := tx.GetContext(ctx, &next, "SELECT parent_id FROM tasks WHERE id = ?", current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent task %d does not exist", ErrValidation, current)
			}
			return fmt.Errorf("failed to walk parent chain: %w", err)
		}
		if !next.Valid {
			return nil
		}
		current = next.Int64
	}
	return ErrParentCycle
}

func normalizeTaskTimes(task *Task) {
	if task.DueDate.Valid {
		task.DueDate.Time = task.DueDate.Time.UTC()
	}
	if task.ReminderAt.Valid {
		task.ReminderAt.Time = task.ReminderAt.Time.UTC()
	}
	if task.CompletedAt.Valid {
		task.CompletedAt.Time = task.CompletedAt.Time.UTC()
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
