package jobs

import (
	"context"
	"fmt"

	"github.com/hlopes/majordomo/internal/scheduler"
)

// NewRecurrenceSweepJob returns the fallback job that materializes missing
// next instances of completed recurring tasks. The normal path spawns
// synchronously when a task is marked done; the sweep covers a crash between
// the done transition and that spawn. Both share the same idempotence
// precondition, so running the sweep is always safe.
func NewRecurrenceSweepJob(deps Deps) scheduler.JobFunc {
	log := deps.Logger.With("job", "recurrence_sweep")

	return func(ctx context.Context) error {
		spawned, err := deps.Store.SweepRecurring(ctx, deps.now())
		if err != nil {
			return fmt.Errorf("recurrence sweep failed: %w", err)
		}
		if len(spawned) > 0 {
			log.InfoContext(ctx, "Spawned recurring task instances", "count", len(spawned))
		}
		return nil
	}
}
