package jobs

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/backup"
	"github.com/dmitrymomot/subledger/svc/ledger"
)

// BackupTask exports a full backup on every run. A failed export is
// already recorded by the exporter; the error is returned so the runner
// backs off.
type BackupTask struct {
	exporter *backup.Exporter
	logger   *slog.Logger
}

// NewBackupTask creates the task. Panics if exporter is nil.
func NewBackupTask(exporter *backup.Exporter, opts ...Option) *BackupTask {
	if exporter == nil {
		panic("jobs: backup task requires an exporter")
	}
	o := collectOptions(opts)
	return &BackupTask{exporter: exporter, logger: o.logger.With(logger.Job(BackupJob))}
}

func (b *BackupTask) Name() string { return BackupJob }

func (b *BackupTask) Run(ctx context.Context) error {
	row, err := b.exporter.Create(ctx, ledger.BackupFull)
	if err != nil {
		b.logger.ErrorContext(ctx, "scheduled backup failed", logger.Error(err))
		return err
	}
	b.logger.InfoContext(ctx, "scheduled backup created",
		slog.String("filename", row.Filename),
		slog.Int64("size", row.Size),
	)
	return nil
}
