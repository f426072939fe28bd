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

// NewMorningSummaryJob returns the daily agenda job: overdue tasks, tasks
// due today, reminders scheduled for the day, calendar events, and the
// backlog count, composed into one notification.
func NewMorningSummaryJob(deps Deps) scheduler.JobFunc {
	log := deps.Logger.With("job", "morning_summary")

	return func(ctx context.Context) error {
		loc := deps.location()
		now := deps.now().In(loc)
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		dayEnd := dayStart.AddDate(0, 0, 1)

		overdue, err := deps.Store.ListOverdueTasks(ctx, dayStart)
		if err != nil {
			return fmt.Errorf("morning summary: %w", err)
		}
		dueToday, err := deps.Store.ListTasksDueBetween(ctx, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("morning summary: %w", err)
		}
		backlog, err := deps.Store.CountBacklogTasks(ctx)
		if err != nil {
			return fmt.Errorf("morning summary: %w", err)
		}

		reminders, err := deps.Store.DueRemindersAsOf(ctx, dayEnd)
		if err != nil {
			return fmt.Errorf("morning summary: %w", err)
		}
		var todayReminders []database.Reminder
		for _, r := range reminders {
			if !r.ScheduledFor.Before(dayStart.UTC()) {
				todayReminders = append(todayReminders, r)
			}
		}

		events, err := deps.Store.ListCalendarEventsRange(ctx, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("morning summary: %w", err)
		}

		msg := composeAgenda(now, overdue, dueToday, todayReminders, events, backlog, loc)
		deps.Dispatcher.Notify(ctx, msg, notify.FormatHTML)

		log.InfoContext(ctx, "Morning summary sent",
			"overdue", len(overdue), "due_today", len(dueToday),
			"reminders", len(todayReminders), "events", len(events))
		return nil
	}
}

func composeAgenda(now time.Time, overdue, dueToday []database.Task, reminders []database.Reminder, events []database.CalendarEvent, backlog int, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Good morning! Agenda for %s\n", now.Format("Mon, Jan 2"))

	if len(overdue) > 0 {
		b.WriteString("\n<b>Overdue</b>\n")
		for _, t := range overdue {
			days := int(now.Sub(t.DueDate.Time) / (24 * time.Hour))
			fmt.Fprintf(&b, "  #%d %s (%dd overdue)\n", t.ID, t.Title, days)
		}
	}

	if len(dueToday) > 0 {
		b.WriteString("\n<b>Due today</b>\n")
		for _, t := range dueToday {
			if t.DueHasTime {
				fmt.Fprintf(&b, "  #%d %s at %s\n", t.ID, t.Title, t.DueDate.Time.In(loc).Format("15:04"))
			} else {
				fmt.Fprintf(&b, "  #%d %s\n", t.ID, t.Title)
			}
		}
	}

	if len(events) > 0 {
		b.WriteString("\n<b>Calendar</b>\n")
		for _, e := range events {
			fmt.Fprintf(&b, "  %s %s\n", e.StartTime.In(loc).Format("15:04"), e.Title)
		}
	}

	if len(reminders) > 0 {
		b.WriteString("\n<b>Reminders</b>\n")
		for _, r := range reminders {
			fmt.Fprintf(&b, "  %s %s\n", r.ScheduledFor.In(loc).Format("15:04"), r.Message)
		}
	}

	if len(overdue) == 0 && len(dueToday) == 0 && len(events) == 0 && len(reminders) == 0 {
		b.WriteString("\nNothing scheduled for today.\n")
	}

	if backlog > 0 {
		fmt.Fprintf(&b, "\nBacklog: %d task(s) without a date\n", backlog)
	}

	return b.String()
}
