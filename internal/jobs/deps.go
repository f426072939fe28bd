// Package jobs implements the scheduled job bodies that inspect state and
// emit notifications: reminder delivery, daily summaries, the recurrence
// sweep, calendar sync, and store maintenance.
package jobs

import (
	"log/slog"
	"time"

	"github.com/hlopes/majordomo/internal/calendar"
	"github.com/hlopes/majordomo/internal/database"
	"github.com/hlopes/majordomo/internal/notify"
)

// Deps contains everything a job body needs. Now is injectable for tests
// and defaults to time.Now.
type Deps struct {
	Logger     *slog.Logger
	Store      database.Store
	Dispatcher *notify.Dispatcher
	Calendar   calendar.Service
	Location   *time.Location
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) location() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}
