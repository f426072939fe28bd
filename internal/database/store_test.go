package database

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (Store, *sqlx.DB) {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB")
	t.Cleanup(func() { CloseDB(db) })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(db, log), db
}

func strPtr(s string) *string            { return &s }
func statusPtr(s TaskStatus) *TaskStatus { return &s }
func boolPtr(b bool) *bool               { return &b }

func TestCreateTaskDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "water the plants"}
	require.NoError(t, store.CreateTask(ctx, task))

	assert.NotZero(t, task.ID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, PriorityMedium, task.Priority)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "water the plants", got.Title)
	assert.Equal(t, StatusPending, got.Status)
	assert.NotNil(t, got.Context)
	assert.False(t, got.CompletedAt.Valid)
}

func TestCreateTaskValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.CreateTask(ctx, &Task{Title: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	err = store.CreateTask(ctx, &Task{Title: "t", Status: "sleeping"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = store.CreateTask(ctx, &Task{Title: "t", Priority: 9})
	assert.ErrorIs(t, err, ErrInvalidPriority)

	err = store.CreateTask(ctx, &Task{
		Title:          "t",
		RecurrenceRule: sql.NullString{String: "FREQ=SOMETIMES", Valid: true},
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = store.CreateTask(ctx, &Task{
		Title:   "t",
		Context: TaskContext{"nested": map[string]any{"a": 1}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = store.CreateTask(ctx, &Task{
		Title:    "t",
		ParentID: sql.NullInt64{Int64: 9999, Valid: true},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateTaskScalarContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := &Task{
		Title:   "renew passport",
		Context: TaskContext{"office": "downtown", "copies": 2, "urgent": true},
	}
	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "downtown", got.Context["office"])
	assert.EqualValues(t, 2, got.Context["copies"])
	assert.Equal(t, true, got.Context["urgent"])
}

func TestGetTaskNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetTask(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTaskCompletedAt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "file taxes"}
	require.NoError(t, store.CreateTask(ctx, task))

	now := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	got, err := store.UpdateTask(ctx, task.ID, TaskUpdate{Status: statusPtr(StatusDone)}, now)
	require.NoError(t, err)
	require.True(t, got.CompletedAt.Valid)
	assert.Equal(t, now, got.CompletedAt.Time.UTC())

	// Reopening clears the completion timestamp.
	got, err = store.UpdateTask(ctx, task.ID, TaskUpdate{Status: statusPtr(StatusInProgress)}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, got.CompletedAt.Valid)

	// A done task updated without a status change keeps its original stamp.
	_, err = store.UpdateTask(ctx, task.ID, TaskUpdate{Status: statusPtr(StatusDone)}, now.Add(2*time.Hour))
	require.NoError(t, err)
	got, err = store.UpdateTask(ctx, task.ID, TaskUpdate{Title: strPtr("file taxes 2024")}, now.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, got.CompletedAt.Valid)
	assert.Equal(t, now.Add(2*time.Hour), got.CompletedAt.Time.UTC())
}

func TestUpdateTaskClearsFields(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	task := &Task{
		Title:      "review budget",
		DueDate:    sql.NullTime{Time: due, Valid: true},
		DueHasTime: true,
		ReminderAt: sql.NullTime{Time: due.Add(-time.Hour), Valid: true},
	}
	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.UpdateTask(ctx, task.ID, TaskUpdate{
		ClearDueDate:  true,
		ClearReminder: true,
	}, time.Now())
	require.NoError(t, err)
	assert.False(t, got.DueDate.Valid)
	assert.False(t, got.DueHasTime)
	assert.False(t, got.ReminderAt.Valid)
}

func TestUpdateTaskDueHasTimeAlone(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	task := &Task{
		Title:      "file expense report",
		DueDate:    sql.NullTime{Time: due, Valid: true},
		DueHasTime: true,
	}
	require.NoError(t, store.CreateTask(ctx, task))

	// Downgrading to a date-only deadline keeps the date itself.
	got, err := store.UpdateTask(ctx, task.ID, TaskUpdate{DueHasTime: boolPtr(false)}, time.Now())
	require.NoError(t, err)
	require.True(t, got.DueDate.Valid)
	assert.Equal(t, due, got.DueDate.Time.UTC())
	assert.False(t, got.DueHasTime)

	// And back again.
	got, err = store.UpdateTask(ctx, task.ID, TaskUpdate{DueHasTime: boolPtr(true)}, time.Now())
	require.NoError(t, err)
	assert.True(t, got.DueHasTime)

	// Without a due date there is nothing to qualify.
	dateless := &Task{Title: "someday maybe"}
	require.NoError(t, store.CreateTask(ctx, dateless))
	got, err = store.UpdateTask(ctx, dateless.ID, TaskUpdate{DueHasTime: boolPtr(true)}, time.Now())
	require.NoError(t, err)
	assert.False(t, got.DueDate.Valid)
	assert.False(t, got.DueHasTime)
}

func TestUpdateTaskContextMerge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "call dentist", Context: TaskContext{"phone": "555-0101", "attempts": 1}}
	require.NoError(t, store.CreateTask(ctx, task))

	got, err := store.UpdateTask(ctx, task.ID, TaskUpdate{
		Context: TaskContext{"attempts": 2, "notes": "ask about invoice"},
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "555-0101", got.Context["phone"])
	assert.EqualValues(t, 2, got.Context["attempts"])
	assert.Equal(t, "ask about invoice", got.Context["notes"])

	// Non-scalar values are rejected without touching the row.
	_, err = store.UpdateTask(ctx, task.ID, TaskUpdate{
		Context: TaskContext{"bad": []string{"a"}},
	}, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	fresh, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "ask about invoice", fresh.Context["notes"])
}

func TestUpdateTaskParentCycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := &Task{Title: "a"}
	require.NoError(t, store.CreateTask(ctx, a))
	b := &Task{Title: "b", ParentID: sql.NullInt64{Int64: a.ID, Valid: true}}
	require.NoError(t, store.CreateTask(ctx, b))
	c := &Task{Title: "c", ParentID: sql.NullInt64{Int64: b.ID, Valid: true}}
	require.NoError(t, store.CreateTask(ctx, c))

	// Self-parenting and ancestor cycles are both rejected.
	_, err := store.UpdateTask(ctx, a.ID, TaskUpdate{ParentID: &a.ID}, time.Now())
	assert.ErrorIs(t, err, ErrParentCycle)

	_, err = store.UpdateTask(ctx, a.ID, TaskUpdate{ParentID: &c.ID}, time.Now())
	assert.ErrorIs(t, err, ErrParentCycle)

	// Reparenting to an unrelated task is fine.
	d := &Task{Title: "d"}
	require.NoError(t, store.CreateTask(ctx, d))
	got, err := store.UpdateTask(ctx, c.ID, TaskUpdate{ParentID: &d.ID}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ParentID.Int64)
}

func TestSubtasks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	parent := &Task{Title: "plan trip"}
	require.NoError(t, store.CreateTask(ctx, parent))
	for _, title := range []string{"book flights", "book hotel"} {
		child := &Task{Title: title, ParentID: sql.NullInt64{Int64: parent.ID, Valid: true}}
		require.NoError(t, store.CreateTask(ctx, child))
	}

	subs, err := store.Subtasks(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "book flights", subs[0].Title)
	assert.Equal(t, "book hotel", subs[1].Title)
}

func TestDeleteTask(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "temp"}
	require.NoError(t, store.CreateTask(ctx, task))
	require.NoError(t, store.DeleteTask(ctx, task.ID))

	_, err := store.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteTask(ctx, task.ID), ErrNotFound)
}

func TestListTasksDueCategories(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	loc := time.UTC
	now := time.Date(2025, 7, 15, 14, 0, 0, 0, loc) // Tuesday afternoon

	mk := func(title string, due time.Time) {
		task := &Task{Title: title}
		if !due.IsZero() {
			task.DueDate = sql.NullTime{Time: due, Valid: true}
			task.DueHasTime = true
		}
		require.NoError(t, store.CreateTask(ctx, task))
	}
	mk("due this morning", now.Add(-4*time.Hour))
	mk("due tonight", now.Add(5*time.Hour))
	mk("due yesterday", now.AddDate(0, 0, -1))
	mk("due friday", now.AddDate(0, 0, 3))
	mk("due next month", now.AddDate(0, 1, 0))
	mk("no date", time.Time{})

	titles := func(due DueCategory) []string {
		tasks, err := store.ListTasks(ctx, TaskFilter{Due: due, Now: now, Location: loc})
		require.NoError(t, err)
		out := make([]string, 0, len(tasks))
		for _, task := range tasks {
			out = append(out, task.Title)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"due this morning", "due tonight"}, titles(DueToday))
	assert.ElementsMatch(t, []string{"due this morning", "due yesterday"}, titles(DueOverdue))
	assert.ElementsMatch(t, []string{"due this morning", "due tonight", "due friday"}, titles(DueThisWeek))
	assert.ElementsMatch(t, []string{"no date"}, titles(DueNoDate))

	_, err := store.ListTasks(ctx, TaskFilter{Due: DueCategory("someday"), Now: now, Location: loc})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListTasksStatusAndTopic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	mk := func(title, topic string, status TaskStatus, priority int) {
		require.NoError(t, store.CreateTask(ctx, &Task{
			Title: title, Topic: topic, Status: status, Priority: priority,
		}))
	}
	mk("a", "home", StatusPending, PriorityLow)
	mk("b", "home", StatusDone, PriorityHigh)
	mk("c", "work", StatusPending, PriorityHigh)

	tasks, err := store.ListTasks(ctx, TaskFilter{Statuses: []TaskStatus{StatusPending}})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = store.ListTasks(ctx, TaskFilter{Topic: "home", Statuses: []TaskStatus{StatusPending}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].Title)

	tasks, err = store.ListTasks(ctx, TaskFilter{Priorities: []int{PriorityHigh}})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = store.ListTasks(ctx, TaskFilter{Statuses: []TaskStatus{"napping"}})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSearchTasksRanking(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTask(ctx, &Task{
		Title: "unrelated", Context: TaskContext{"note": "groceries list pending"},
	}))
	require.NoError(t, store.CreateTask(ctx, &Task{Title: "errands", Topic: "groceries"}))
	require.NoError(t, store.CreateTask(ctx, &Task{Title: "buy groceries"}))

	tasks, err := store.SearchTasks(ctx, "groceries", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "buy groceries", tasks[0].Title)
	assert.Equal(t, "errands", tasks[1].Title)
	assert.Equal(t, "unrelated", tasks[2].Title)

	// LIKE metacharacters in the query are literals, not wildcards.
	tasks, err = store.SearchTasks(ctx, "100%", 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = store.SearchTasks(ctx, "  ", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBulkUpdateStatus(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, title := range []string{"x", "y", "z"} {
		task := &Task{Title: title}
		require.NoError(t, store.CreateTask(ctx, task))
		ids = append(ids, task.ID)
	}

	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	affected, err := store.BulkUpdateStatus(ctx, ids[:2], StatusDone, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	for _, id := range ids[:2] {
		got, err := store.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusDone, got.Status)
		require.True(t, got.CompletedAt.Valid)
		assert.Equal(t, now, got.CompletedAt.Time.UTC())
	}

	untouched, err := store.GetTask(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, StatusPending, untouched.Status)

	affected, err = store.BulkUpdateStatus(ctx, nil, StatusDone, now)
	require.NoError(t, err)
	assert.Zero(t, affected)

	_, err = store.BulkUpdateStatus(ctx, ids, "napping", now)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestBulkUpdatePriority(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "x"}
	require.NoError(t, store.CreateTask(ctx, task))

	affected, err := store.BulkUpdatePriority(ctx, []int64{task.ID}, PriorityUrgent, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, got.Priority)

	_, err = store.BulkUpdatePriority(ctx, []int64{task.ID}, 0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestAgendaQueries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)

	overdue := &Task{Title: "overdue", DueDate: sql.NullTime{Time: now.AddDate(0, 0, -2), Valid: true}}
	require.NoError(t, store.CreateTask(ctx, overdue))

	today := &Task{Title: "today", DueDate: sql.NullTime{Time: now.Add(6 * time.Hour), Valid: true}}
	require.NoError(t, store.CreateTask(ctx, today))

	doneOverdue := &Task{Title: "done overdue", DueDate: sql.NullTime{Time: now.AddDate(0, 0, -1), Valid: true}}
	require.NoError(t, store.CreateTask(ctx, doneOverdue))
	_, err := store.UpdateTask(ctx, doneOverdue.ID, TaskUpdate{Status: statusPtr(StatusDone)}, now.Add(-time.Hour))
	require.NoError(t, err)

	backlog := &Task{Title: "backlog"}
	require.NoError(t, store.CreateTask(ctx, backlog))

	got, err := store.ListOverdueTasks(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "overdue", got[0].Title)

	got, err = store.ListTasksDueBetween(ctx, now, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "today", got[0].Title)

	got, err = store.ListTasksCompletedBetween(ctx, now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "done overdue", got[0].Title)

	count, err := store.CountBacklogTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
