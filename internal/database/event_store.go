package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SyncCalendarEvent upserts a locally cached calendar event keyed by its
// external id.
func (s *sqlxStore) SyncCalendarEvent(ctx context.Context, event *CalendarEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrValidation)
	}
	if strings.TrimSpace(event.ExternalID) == "" {
		return fmt.Errorf("%w: external_id must not be empty", ErrValidation)
	}

	event.StartTime = event.StartTime.UTC()
	event.EndTime = event.EndTime.UTC()
	event.SyncedAt = time.Now().UTC()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO calendar_events (external_id, title, start_time, end_time, synced_at)
			VALUES (:external_id, :title, :start_time, :end_time, :synced_at)
			ON CONFLICT(external_id) DO UPDATE SET
				title = excluded.title,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				synced_at = excluded.synced_at`,
			event)
		if err != nil {
			return fmt.Errorf("failed to sync calendar event %q: %w", event.ExternalID, err)
		}
		return nil
	})
}

// ListCalendarEventsRange returns cached events starting in [start, end).
func (s *sqlxStore) ListCalendarEventsRange(ctx context.Context, start, end time.Time) ([]CalendarEvent, error) {
	var events []CalendarEvent
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, external_id, title, start_time, end_time, synced_at
		FROM calendar_events
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}
	return events, nil
}
