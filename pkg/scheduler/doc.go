// Package scheduler runs recurring background jobs for subledger.
//
// A Runner owns a set of Jobs, each paired with a Schedule and a Backoff.
// Every job loops in its own goroutine: run, then wait until the schedule's
// next time on success or the backoff interval on failure. A failing or
// panicking job never affects other jobs, and one iteration never overlaps
// the next.
//
//	r := scheduler.NewRunner(scheduler.WithLogger(log))
//	_ = r.Register(sweep, scheduler.EveryInterval(time.Hour),
//		scheduler.WithBackoff(scheduler.FixedBackoff(5*time.Minute)))
//	if err := r.Run(ctx); err != nil {
//		return err
//	}
//
// Iteration counts and durations are exported as Prometheus metrics under
// the subledger_job_* names.
package scheduler
