package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hlopes/majordomo/internal/database"
	"github.com/hlopes/majordomo/internal/notify"
	"github.com/hlopes/majordomo/internal/scheduler"
)

// NewEODReviewJob returns the end-of-day review job: what got done today,
// what is still in progress, and what comes due tomorrow.
func NewEODReviewJob(deps Deps) scheduler.JobFunc {
	log := deps.Logger.With("job", "eod_review")

	return func(ctx context.Context) error {
		loc := deps.location()
		now := deps.now().In(loc)
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		tomorrowStart := dayStart.AddDate(0, 0, 1)
		tomorrowEnd := dayStart.AddDate(0, 0, 2)

		completed, err := deps.Store.ListTasksCompletedBetween(ctx, dayStart, tomorrowStart)
		if err != nil {
			return fmt.Errorf("eod review: %w", err)
		}
		dueTomorrow, err := deps.Store.ListTasksDueBetween(ctx, tomorrowStart, tomorrowEnd)
		if err != nil {
			return fmt.Errorf("eod review: %w", err)
		}
		inProgress, err := deps.Store.ListTasks(ctx, database.TaskFilter{
			Statuses: []database.TaskStatus{database.StatusInProgress},
		})
		if err != nil {
			return fmt.Errorf("eod review: %w", err)
		}

		var b strings.Builder
		b.WriteString("End of day review\n")

		if len(completed) > 0 {
			fmt.Fprintf(&b, "\n<b>Completed today</b> (%d)\n", len(completed))
			for _, t := range completed {
				fmt.Fprintf(&b, "  ✓ %s\n", t.Title)
			}
		} else {
			b.WriteString("\nNothing completed today.\n")
		}

		if len(inProgress) > 0 {
			fmt.Fprintf(&b, "\n<b>Still in progress</b> (%d)\n", len(inProgress))
			for _, t := range inProgress {
				fmt.Fprintf(&b, "  #%d %s\n", t.ID, t.Title)
			}
		}

		if len(dueTomorrow) > 0 {
			fmt.Fprintf(&b, "\n<b>Due tomorrow</b> (%d)\n", len(dueTomorrow))
			for _, t := range dueTomorrow {
				fmt.Fprintf(&b, "  #%d %s\n", t.ID, t.Title)
			}
		}

		deps.Dispatcher.Notify(ctx, b.String(), notify.FormatHTML)

		log.InfoContext(ctx, "EOD review sent",
			"completed", len(completed), "in_progress", len(inProgress),
			"due_tomorrow", len(dueTomorrow))
		return nil
	}
}
