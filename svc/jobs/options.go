package jobs

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/subledger/svc/notify"
)

// Job names as registered with the scheduler.
const (
	NotificationJob = "notification_sweep"
	CleanupJob      = "cleanup_sweep"
	HealthJob       = "health_monitor"
	BackupJob       = "backup"
)

type options struct {
	logger    *slog.Logger
	now       func() time.Time
	formatter *notify.Formatter
}

// Option configures a job.
type Option func(*options)

// WithLogger sets the job logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFormatter sets the formatter for user and operator texts.
func WithFormatter(f *notify.Formatter) Option {
	return func(o *options) {
		if f != nil {
			o.formatter = f
		}
	}
}

func collectOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		now:       time.Now,
		formatter: notify.NewFormatter("en", ""),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
