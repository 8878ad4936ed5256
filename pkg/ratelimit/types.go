package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter admits or rejects events per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
	AllowN(ctx context.Context, key string, n int) (*Result, error)
	Status(ctx context.Context, key string) (*Result, error)
	Reset(ctx context.Context, key string) error
}

// WindowStore keeps per-key event timestamps for sliding window limiting.
type WindowStore interface {
	// RecordIfAllowed records n events at ts when the count of events newer
	// than ts-window plus n stays within limit. It returns whether the events
	// were recorded and the resulting in-window count.
	RecordIfAllowed(ctx context.Context, key string, ts time.Time, window time.Duration, limit, n int) (bool, int64, error)

	// CountInWindow returns the number of events newer than ts-window.
	CountInWindow(ctx context.Context, key string, ts time.Time, window time.Duration) (int64, error)

	Delete(ctx context.Context, key string) error
}
