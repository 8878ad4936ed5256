package ratelimit

import (
	"context"
	"time"
)

// SlidingWindow admits at most limit events per key within any span of
// window length ending at the current instant.
type SlidingWindow struct {
	store  WindowStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// SlidingWindowOption configures a SlidingWindow.
type SlidingWindowOption func(*SlidingWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SlidingWindowOption {
	return func(sw *SlidingWindow) {
		if now != nil {
			sw.now = now
		}
	}
}

// NewSlidingWindow creates a new sliding window rate limiter.
func NewSlidingWindow(store WindowStore, limit int, window time.Duration, opts ...SlidingWindowOption) (*SlidingWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidInterval
	}

	sw := &SlidingWindow{store: store, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(sw)
	}
	return sw, nil
}

// Allow checks if a single event is allowed for the given key.
func (sw *SlidingWindow) Allow(ctx context.Context, key string) (*Result, error) {
	return sw.AllowN(ctx, key, 1)
}

// AllowN checks if n events are allowed for the given key and records them if so.
func (sw *SlidingWindow) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	if n <= 0 {
		n = 1
	}

	now := sw.now()
	allowed, count, err := sw.store.RecordIfAllowed(ctx, key, now, sw.window, sw.limit, n)
	if err != nil {
		return nil, err
	}

	return &Result{
		Allowed:   allowed,
		Limit:     sw.limit,
		Remaining: max(0, sw.limit-int(count)),
		ResetAt:   now.Add(sw.window),
	}, nil
}

// Status returns the current state without recording an event.
func (sw *SlidingWindow) Status(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := sw.now()
	count, err := sw.store.CountInWindow(ctx, key, now, sw.window)
	if err != nil {
		return nil, err
	}

	remaining := sw.limit - int(count)
	return &Result{
		Allowed:   remaining > 0,
		Limit:     sw.limit,
		Remaining: max(0, remaining),
		ResetAt:   now.Add(sw.window),
	}, nil
}

// Reset forgets every recorded event for key.
func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return sw.store.Delete(ctx, key)
}
