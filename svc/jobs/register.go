package jobs

import (
	"errors"

	"github.com/dmitrymomot/subledger/pkg/scheduler"
)

// Set bundles the jobs handed to Register. Nil members are skipped.
type Set struct {
	Notifications *NotificationSweep
	Cleanup       *CleanupSweep
	Health        *HealthMonitor
	Backup        *BackupTask
}

// Register adds every job of set to r with the intervals, backoffs and
// iteration timeout from cfg. The backup job waits one interval before its
// first run so restarts do not produce extra backups.
func Register(r *scheduler.Runner, cfg Config, set Set) error {
	timeout := scheduler.WithTimeout(cfg.IterationTimeout)
	var errs []error

	if set.Notifications != nil {
		errs = append(errs, r.Register(set.Notifications,
			scheduler.EveryInterval(cfg.NotificationInterval),
			scheduler.WithBackoff(scheduler.FixedBackoff(cfg.NotificationBackoff)),
			timeout,
		))
	}
	if set.Cleanup != nil {
		errs = append(errs, r.Register(set.Cleanup,
			scheduler.EveryInterval(cfg.CleanupInterval),
			scheduler.WithBackoff(scheduler.FixedBackoff(cfg.CleanupBackoff)),
			timeout,
		))
	}
	if set.Health != nil {
		errs = append(errs, r.Register(set.Health,
			scheduler.EveryInterval(cfg.HealthInterval),
			scheduler.WithBackoff(scheduler.FixedBackoff(cfg.HealthBackoff)),
			timeout,
		))
	}
	if set.Backup != nil {
		errs = append(errs, r.Register(set.Backup,
			scheduler.EveryInterval(cfg.BackupInterval),
			scheduler.WithBackoff(scheduler.FixedBackoff(cfg.BackupBackoff)),
			scheduler.WithInitialDelay(cfg.BackupInterval),
			timeout,
		))
	}
	return errors.Join(errs...)
}
