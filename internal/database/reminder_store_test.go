package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReminderValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.CreateReminder(ctx, &Reminder{Message: "  ", ScheduledFor: time.Now()})
	assert.ErrorIs(t, err, ErrValidation)

	err = store.CreateReminder(ctx, &Reminder{Message: "no time"})
	assert.ErrorIs(t, err, ErrValidation)

	err = store.CreateReminder(ctx, &Reminder{
		Message:      "orphan",
		ScheduledFor: time.Now(),
		TaskID:       sql.NullInt64{Int64: 9999, Valid: true},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDueRemindersAsOf(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mk := func(message string, at time.Time) *Reminder {
		rem := &Reminder{Message: message, ScheduledFor: at}
		require.NoError(t, store.CreateReminder(ctx, rem))
		return rem
	}
	mk("second", now.Add(-time.Hour))
	mk("first", now.Add(-2*time.Hour))
	mk("exactly now", now)
	mk("future", now.Add(time.Hour))
	sent := mk("already sent", now.Add(-3*time.Hour))
	require.NoError(t, store.MarkReminderSent(ctx, sent.ID))

	due, err := store.DueRemindersAsOf(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "first", due[0].Message)
	assert.Equal(t, "second", due[1].Message)
	assert.Equal(t, "exactly now", due[2].Message)
}

func TestMarkReminderSent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rem := &Reminder{Message: "once", ScheduledFor: time.Now()}
	require.NoError(t, store.CreateReminder(ctx, rem))

	require.NoError(t, store.MarkReminderSent(ctx, rem.ID))
	assert.ErrorIs(t, store.MarkReminderSent(ctx, rem.ID), ErrReminderSent)
	assert.ErrorIs(t, store.MarkReminderSent(ctx, 9999), ErrNotFound)
}

func TestCancelReminder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rem := &Reminder{Message: "cancel me", ScheduledFor: time.Now().Add(time.Hour)}
	require.NoError(t, store.CreateReminder(ctx, rem))
	require.NoError(t, store.CancelReminder(ctx, rem.ID))

	reminders, err := store.ListReminders(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, reminders)

	assert.ErrorIs(t, store.CancelReminder(ctx, rem.ID), ErrNotFound)

	// Sent reminders are immutable history.
	sent := &Reminder{Message: "done", ScheduledFor: time.Now()}
	require.NoError(t, store.CreateReminder(ctx, sent))
	require.NoError(t, store.MarkReminderSent(ctx, sent.ID))
	assert.ErrorIs(t, store.CancelReminder(ctx, sent.ID), ErrReminderSent)
}

func TestDeliverDueReminders(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, message := range []string{"one", "two"} {
		require.NoError(t, store.CreateReminder(ctx, &Reminder{
			Message:      message,
			ScheduledFor: now.Add(-time.Minute),
		}))
	}
	require.NoError(t, store.CreateReminder(ctx, &Reminder{
		Message:      "later",
		ScheduledFor: now.Add(time.Hour),
	}))

	var seen []string
	delivered, err := store.DeliverDueReminders(ctx, now, func(rem Reminder) {
		seen = append(seen, rem.Message)
	})
	require.NoError(t, err)
	assert.Len(t, delivered, 2)
	assert.ElementsMatch(t, []string{"one", "two"}, seen)

	// A second cycle finds nothing: delivery marked them sent.
	delivered, err = store.DeliverDueReminders(ctx, now, func(rem Reminder) {
		t.Errorf("unexpected redelivery of %q", rem.Message)
	})
	require.NoError(t, err)
	assert.Empty(t, delivered)

	remaining, err := store.ListReminders(ctx, false)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "later", remaining[0].Message)
}
