package scheduler

import "context"

// Job is one recurring unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// JobFunc adapts a function to the Job interface.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}
