package scheduler

import "errors"

var (
	ErrNoJobs           = errors.New("no jobs registered")
	ErrJobAlreadyExists = errors.New("job already registered")
	ErrJobNameRequired  = errors.New("job name is required")
	ErrScheduleRequired = errors.New("job schedule is required")
	ErrRunnerStarted    = errors.New("runner already started")
	ErrJobPanicked      = errors.New("job panicked")
	ErrJobNotFound      = errors.New("job not found")
)
