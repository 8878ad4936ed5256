package scheduler

import (
	"log/slog"
	"time"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// JobOption configures a registered job.
type JobOption func(*entry)

// WithBackoff sets the delay strategy after a failed iteration.
// The default waits one minute.
func WithBackoff(b Backoff) JobOption {
	return func(e *entry) {
		if b != nil {
			e.backoff = b
		}
	}
}

// WithInitialDelay postpones the first iteration. By default a job runs as
// soon as the runner starts.
func WithInitialDelay(d time.Duration) JobOption {
	return func(e *entry) {
		if d > 0 {
			e.initialDelay = d
		}
	}
}

// WithTimeout bounds a single iteration.
func WithTimeout(d time.Duration) JobOption {
	return func(e *entry) {
		if d > 0 {
			e.timeout = d
		}
	}
}
