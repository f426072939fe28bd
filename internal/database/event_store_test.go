package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncCalendarEventUpsert(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	event := &CalendarEvent{
		ExternalID: "ext-1",
		Title:      "standup",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
	}
	require.NoError(t, store.SyncCalendarEvent(ctx, event))

	// Re-syncing the same external id updates in place.
	event.Title = "standup (moved)"
	event.StartTime = start.Add(time.Hour)
	event.EndTime = start.Add(90 * time.Minute)
	require.NoError(t, store.SyncCalendarEvent(ctx, event))

	events, err := store.ListCalendarEventsRange(ctx, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "standup (moved)", events[0].Title)
	assert.Equal(t, start.Add(time.Hour), events[0].StartTime.UTC())

	err = store.SyncCalendarEvent(ctx, &CalendarEvent{ExternalID: " "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListCalendarEventsRange(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	for title, offset := range map[string]time.Duration{
		"early":    9 * time.Hour,
		"late":     17 * time.Hour,
		"tomorrow": 26 * time.Hour,
	} {
		start := day.Add(offset)
		require.NoError(t, store.SyncCalendarEvent(ctx, &CalendarEvent{
			ExternalID: title,
			Title:      title,
			StartTime:  start,
			EndTime:    start.Add(time.Hour),
		}))
	}

	events, err := store.ListCalendarEventsRange(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "early", events[0].Title)
	assert.Equal(t, "late", events[1].Title)
}
