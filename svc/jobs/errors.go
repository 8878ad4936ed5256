package jobs

import "errors"

var (
	ErrHealthCheckFailed = errors.New("health check failed")
	ErrSweepFailed       = errors.New("sweep failed")
	ErrAlertFailed       = errors.New("operator alert failed")
)
