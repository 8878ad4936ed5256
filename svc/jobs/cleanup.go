package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/backup"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/provisioning"
)

// CleanupReport summarizes one cleanup sweep.
type CleanupReport struct {
	Purged            int
	ProvisionFailures int
	Logs              int
	Backups           int
}

// CleanupSweep removes inactive subscriptions past retention together with
// their panel accounts, old logs and old backups.
type CleanupSweep struct {
	store    ledger.Store
	prov     provisioning.Provisioner
	exporter *backup.Exporter
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// NewCleanupSweep creates the sweep. A nil exporter skips backup pruning.
// Panics if store or prov is nil.
func NewCleanupSweep(store ledger.Store, prov provisioning.Provisioner, exporter *backup.Exporter, cfg Config, opts ...Option) *CleanupSweep {
	if store == nil || prov == nil {
		panic("jobs: cleanup sweep requires a store and a provisioner")
	}
	o := collectOptions(opts)
	return &CleanupSweep{
		store:    store,
		prov:     prov,
		exporter: exporter,
		cfg:      cfg,
		now:      o.now,
		logger:   o.logger.With(logger.Job(CleanupJob)),
	}
}

func (c *CleanupSweep) Name() string { return CleanupJob }

func (c *CleanupSweep) Run(ctx context.Context) error {
	_, err := c.Sweep(ctx)
	return err
}

// Sweep runs one pass. Each row is re-checked and deleted in its own unit
// of work before its panel account is removed, so a row renewed since
// listing is left alone. A failed panel deletion is logged and counted.
func (c *CleanupSweep) Sweep(ctx context.Context) (*CleanupReport, error) {
	now := c.now()
	report := &CleanupReport{}

	cutoff := now.Add(-c.cfg.Retention)
	var purgeable []ledger.UserService
	err := c.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		purgeable, err = tx.ListPurgeable(ctx, cutoff)
		return err
	})
	if err != nil {
		return report, errors.Join(ErrSweepFailed, err)
	}

	var errs []error
	for _, listed := range purgeable {
		var us *ledger.UserService
		err := c.store.Tx(ctx, func(tx ledger.Tx) error {
			var err error
			us, err = tx.PurgeUserService(ctx, listed.ID, cutoff)
			return err
		})
		switch {
		case errors.Is(err, ledger.ErrInvalidState), errors.Is(err, ledger.ErrUserServiceNotFound):
			c.logger.InfoContext(ctx, "user service changed since listing, skipped",
				logger.UserServiceID(listed.ID),
				logger.ChatID(listed.UserID))
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}
		report.Purged++

		if us.Handle == "" {
			continue
		}
		if err := c.deleteAccount(ctx, provisioning.Handle(us.Handle)); err != nil {
			report.ProvisionFailures++
			c.logger.ErrorContext(ctx, "failed to delete panel account",
				logger.UserServiceID(us.ID),
				logger.ChatID(us.UserID),
				logger.Handle(us.Handle),
				logger.Error(err),
			)
		}
	}
	servicesPurged.Add(float64(report.Purged))

	err = c.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		report.Logs, err = tx.PurgeLogsBefore(ctx, now.Add(-c.cfg.LogRetention))
		return err
	})
	if err != nil {
		errs = append(errs, err)
	}

	if c.exporter != nil {
		n, err := c.exporter.Prune(ctx, now.Add(-c.cfg.BackupRetention), c.cfg.BackupKeep)
		report.Backups = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.InfoContext(ctx, "cleanup sweep finished",
		slog.Int("purged", report.Purged),
		slog.Int("provision_failures", report.ProvisionFailures),
		slog.Int("logs", report.Logs),
		slog.Int("backups", report.Backups),
	)
	if len(errs) > 0 {
		return report, errors.Join(ErrSweepFailed, errors.Join(errs...))
	}
	return report, nil
}

func (c *CleanupSweep) deleteAccount(ctx context.Context, h provisioning.Handle) error {
	if c.cfg.ProvisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ProvisionTimeout)
		defer cancel()
	}
	return c.prov.DeleteAccount(ctx, h)
}
