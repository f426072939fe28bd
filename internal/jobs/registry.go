package jobs

import (
	"github.com/hlopes/majordomo/internal/scheduler"
)

// RegisterAllJobs builds the full set of scheduled jobs keyed by name. The
// keys match the scheduler configuration section so cadence overrides can be
// looked up per job.
func RegisterAllJobs(deps Deps) map[string]scheduler.JobFunc {
	jobs := map[string]scheduler.JobFunc{
		"reminder_delivery": NewReminderDeliveryJob(deps),
		"recurrence_sweep":  NewRecurrenceSweepJob(deps),
		"morning_summary":   NewMorningSummaryJob(deps),
		"eod_review":        NewEODReviewJob(deps),
		"calendar_sync":     NewCalendarSyncJob(deps),
		"maintenance":       NewMaintenanceJob(deps),
	}

	deps.Logger.Info("Initialized scheduled jobs", "count", len(jobs))
	return jobs
}
