package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/subledger/pkg/logger"
)

// Guard is the process-wide admission state: a per-identifier sliding
// window, a bounded pool of outbound connection slots and a failed
// attempt lockout. Create one at startup and share it.
type Guard struct {
	store   *MemoryStore
	limiter *SlidingWindow
	pool    *ConnectionPool
	lockout *Lockout
	logger  *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*guardOptions)

type guardOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithGuardClock replaces time.Now for admission and lockout.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(o *guardOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithGuardLogger sets the logger used for rejections.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(o *guardOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewGuard builds a Guard from cfg.
func NewGuard(cfg Config, opts ...GuardOption) (*Guard, error) {
	o := &guardOptions{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.ConnectionPoolSize <= 0 {
		return nil, ErrInvalidLimit
	}

	store := NewMemoryStore(WithCleanupInterval(cfg.CleanupInterval), WithStoreClock(o.now))
	limiter, err := NewSlidingWindow(store, cfg.MaxConcurrentRequests, cfg.AdmissionWindow, WithClock(o.now))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	lockout, err := NewLockout(cfg.MaxLoginAttempts, cfg.BlockTime)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	lockout.now = o.now

	return &Guard{
		store:   store,
		limiter: limiter,
		pool:    NewConnectionPool(cfg.ConnectionPoolSize),
		lockout: lockout,
		logger:  o.logger,
	}, nil
}

// Admit records a request from id and reports whether it is within the
// admission rate. Rejected requests are not recorded.
func (g *Guard) Admit(ctx context.Context, id int64) bool {
	res, err := g.limiter.Allow(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		// Memory store never fails; treat a failure as admission.
		return true
	}
	if !res.Allowed {
		g.logger.DebugContext(ctx, "request rejected by admission guard",
			logger.Component("guard"),
			logger.ChatID(id),
		)
	}
	return res.Allowed
}

// AcquireConnection takes an outbound connection slot for id.
func (g *Guard) AcquireConnection(id string) bool {
	return g.pool.Acquire(id)
}

// ReleaseConnection frees the slot held by id.
func (g *Guard) ReleaseConnection(id string) {
	g.pool.Release(id)
}

// Limiter exposes the admission limiter for HTTP middleware.
func (g *Guard) Limiter() Limiter {
	return g.limiter
}

// Pool exposes the connection slot pool.
func (g *Guard) Pool() *ConnectionPool {
	return g.pool
}

// Lockout exposes the failed attempt tracker.
func (g *Guard) Lockout() *Lockout {
	return g.lockout
}

// Close stops background cleanup.
func (g *Guard) Close() error {
	return g.store.Close()
}
