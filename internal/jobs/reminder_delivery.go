package jobs

import (
	"context"
	"fmt"

	"github.com/hlopes/majordomo/internal/database"
	"github.com/hlopes/majordomo/internal/notify"
	"github.com/hlopes/majordomo/internal/scheduler"
)

// NewReminderDeliveryJob returns the job that delivers due reminders. The
// due read, the delivery attempt, and the sent transition share one
// transaction scope: a crash before commit leaves the reminder pending and
// the next run retries, so a reminder can repeat but never silently vanish.
func NewReminderDeliveryJob(deps Deps) scheduler.JobFunc {
	log := deps.Logger.With("job", "reminder_delivery")

	return func(ctx context.Context) error {
		now := deps.now()

		delivered, err := deps.Store.DeliverDueReminders(ctx, now, func(rem database.Reminder) {
			deps.Dispatcher.Notify(ctx, fmt.Sprintf("⏰ %s", rem.Message), notify.FormatPlain)
		})
		if err != nil {
			return fmt.Errorf("reminder delivery failed: %w", err)
		}

		if len(delivered) > 0 {
			log.InfoContext(ctx, "Delivered reminders", "count", len(delivered))
		}
		return nil
	}
}
