package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/subledger/pkg/logger"
)

type entry struct {
	job          Job
	schedule     Schedule
	backoff      Backoff
	initialDelay time.Duration
	timeout      time.Duration
}

// Runner drives registered jobs. Every job has its own goroutine and runs
// to completion: the next iteration is planned only after the previous one
// finished, from its schedule on success or its backoff on failure.
//
// Iterations run on a context detached from the runner context, so
// cancelling Run never interrupts a job halfway through its records. The
// loops notice cancellation between iterations.
type Runner struct {
	mu      sync.Mutex
	entries []*entry
	names   map[string]struct{}
	started bool
	logger  *slog.Logger
}

// NewRunner creates an empty runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		names:  make(map[string]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds job with its schedule. Jobs must be registered before Run.
func (r *Runner) Register(job Job, schedule Schedule, opts ...JobOption) error {
	if job == nil || job.Name() == "" {
		return ErrJobNameRequired
	}
	if schedule == nil {
		return ErrScheduleRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrRunnerStarted
	}
	if _, exists := r.names[job.Name()]; exists {
		return ErrJobAlreadyExists
	}

	e := &entry{job: job, schedule: schedule, backoff: FixedBackoff(time.Minute)}
	for _, opt := range opts {
		opt(e)
	}

	r.entries = append(r.entries, e)
	r.names[job.Name()] = struct{}{}

	r.logger.Info("registered job",
		logger.Job(job.Name()),
		slog.String("schedule", schedule.String()),
	)
	return nil
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.job.Name())
	}
	return names
}

// Run blocks until ctx is cancelled and every job loop has returned.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if len(r.entries) == 0 {
		r.mu.Unlock()
		return ErrNoJobs
	}
	if r.started {
		r.mu.Unlock()
		return ErrRunnerStarted
	}
	r.started = true
	entries := append([]*entry(nil), r.entries...)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			r.loop(gctx, e)
			return nil
		})
	}

	err := g.Wait()
	r.logger.Info("scheduler stopped")
	return err
}

// RunOnce executes the named job a single time outside its loop.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	r.mu.Lock()
	var target *entry
	for _, e := range r.entries {
		if e.job.Name() == name {
			target = e
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return ErrJobNotFound
	}
	return r.execute(ctx, target)
}

func (r *Runner) loop(ctx context.Context, e *entry) {
	name := e.job.Name()
	if !sleep(ctx, e.initialDelay) {
		return
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := r.execute(ctx, e)
		finished := time.Now()

		var wait time.Duration
		if err != nil {
			failures++
			wait = e.backoff.NextInterval(failures)
			r.logger.ErrorContext(ctx, "job iteration failed",
				logger.Job(name),
				logger.RetryCount(failures),
				slog.Duration("retry_in", wait),
				logger.Error(err),
			)
		} else {
			failures = 0
			wait = e.schedule.Next(finished).Sub(finished)
		}
		jobConsecutiveFailures.WithLabelValues(name).Set(float64(failures))

		if !sleep(ctx, wait) {
			return
		}
	}
}

// execute runs one iteration, converting a panic into an error.
func (r *Runner) execute(ctx context.Context, e *entry) (err error) {
	name := e.job.Name()
	start := time.Now()

	runCtx := context.WithoutCancel(ctx)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, p)
		}

		result := "success"
		if err != nil {
			result = "failure"
		}
		jobRuns.WithLabelValues(name, result).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		r.logger.DebugContext(ctx, "job iteration finished",
			logger.Job(name),
			slog.String("result", result),
			logger.Duration(time.Since(start)),
		)
	}()

	return e.job.Run(runCtx)
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
