package jobs

import (
	"context"
	"fmt"

	"github.com/hlopes/majordomo/internal/scheduler"
)

// NewMaintenanceJob returns the nightly database housekeeping job.
func NewMaintenanceJob(deps Deps) scheduler.JobFunc {
	log := deps.Logger.With("job", "maintenance")

	return func(ctx context.Context) error {
		if err := deps.Store.RunMaintenance(ctx); err != nil {
			return fmt.Errorf("database maintenance failed: %w", err)
		}
		log.InfoContext(ctx, "Database maintenance completed")
		return nil
	}
}
