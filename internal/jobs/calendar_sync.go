package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hlopes/majordomo/internal/database"
	"github.com/hlopes/majordomo/internal/scheduler"
)

// calendarSyncHorizon bounds how far ahead the sync job looks.
const calendarSyncHorizon = 7 * 24 * time.Hour

// NewCalendarSyncJob returns the job that refreshes the local calendar event
// cache from the external calendar collaborator. With the Unconfigured
// service it sees no events and returns immediately.
func NewCalendarSyncJob(deps Deps) scheduler.JobFunc {
	log := deps.Logger.With("job", "calendar_sync")

	return func(ctx context.Context) error {
		now := deps.now()
		events, err := deps.Calendar.FetchEvents(ctx, now, now.Add(calendarSyncHorizon))
		if err != nil {
			return fmt.Errorf("failed to fetch calendar events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, ev := range events {
			cached := &database.CalendarEvent{
				ExternalID: ev.ExternalID,
				Title:      ev.Title,
				StartTime:  ev.StartTime,
				EndTime:    ev.EndTime,
				SyncedAt:   now,
			}
			if err := deps.Store.SyncCalendarEvent(ctx, cached); err != nil {
				return fmt.Errorf("failed to cache calendar event %q: %w", ev.ExternalID, err)
			}
		}

		log.InfoContext(ctx, "Synced calendar events", "count", len(events))
		return nil
	}
}
