package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/subledger/pkg/logger"
)

// Tiered is a read-through cache over an ordered list of tiers, fastest
// first. A hit in a lower tier is copied into every tier above it with the
// remaining lifetime. Tier failures are logged and treated as misses: the
// cache is never the source of truth.
type Tiered struct {
	tiers         []Tier
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	group     singleflight.Group
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Tiered cache.
type Option func(*Tiered)

// WithDefaultTTL sets the lifetime used when Set receives ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(t *Tiered) {
		if ttl > 0 {
			t.defaultTTL = ttl
		}
	}
}

// WithSweepInterval enables the background sweeper. Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(t *Tiered) {
		t.sweepInterval = d
	}
}

// WithClock replaces time.Now when computing remaining lifetimes.
func WithClock(now func() time.Time) Option {
	return func(t *Tiered) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger used for tier failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tiered) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTiered builds a cache over tiers. It starts a sweeper goroutine when a
// sweep interval is configured; call Close to stop it.
func NewTiered(tiers []Tier, opts ...Option) (*Tiered, error) {
	clean := make([]Tier, 0, len(tiers))
	for _, tier := range tiers {
		if tier != nil {
			clean = append(clean, tier)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoTiers
	}

	t := &Tiered{
		tiers:      clean,
		defaultTTL: 5 * time.Minute,
		now:        time.Now,
		logger:     slog.Default(),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.sweepInterval > 0 {
		t.wg.Add(1)
		go t.sweepLoop()
	}
	return t, nil
}

// Get returns the value stored under key.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	for i, tier := range t.tiers {
		value, expireAt, ok, err := tier.Get(ctx, key)
		if err != nil {
			t.logger.WarnContext(ctx, "cache tier read failed",
				logger.Component("cache"),
				slog.Int("tier", i),
				slog.String("key", key),
				logger.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		if remaining := expireAt.Sub(t.now()); i > 0 && remaining > 0 {
			for j := range i {
				if err := t.tiers[j].Set(ctx, key, value, remaining); err != nil {
					t.logger.WarnContext(ctx, "cache promotion failed",
						logger.Component("cache"),
						slog.Int("tier", j),
						logger.Error(err),
					)
				}
			}
		}
		return value, true
	}
	return nil, false
}

// Set writes value to every tier.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}
	if ttl <= 0 {
		ttl = t.defaultTTL
	}

	var errs []error
	for _, tier := range t.tiers {
		if err := tier.Set(ctx, key, value, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes key from every tier.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep removes expired entries from every tier.
func (t *Tiered) Sweep(ctx context.Context) int {
	total := 0
	for i, tier := range t.tiers {
		n, err := tier.Sweep(ctx)
		if err != nil {
			t.logger.WarnContext(ctx, "cache sweep failed",
				logger.Component("cache"),
				slog.Int("tier", i),
				logger.Error(err),
			)
		}
		total += n
	}
	return total
}

func (t *Tiered) sweepLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if n := t.Sweep(context.Background()); n > 0 {
				t.logger.Debug("cache sweep", logger.Component("cache"), slog.Int("removed", n))
			}
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (t *Tiered) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
	})
	t.wg.Wait()
	return nil
}

// Fetch returns the cached JSON value under key or calls load, caches its
// result for ttl and returns it. Concurrent misses for the same key share a
// single load call. Values that fail to decode are reloaded.
func Fetch[T any](ctx context.Context, c *Tiered, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		_ = c.Delete(ctx, key)
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return zero, err
		}
		if data, err := json.Marshal(v); err == nil {
			if err := c.Set(ctx, key, data, ttl); err != nil {
				c.logger.WarnContext(ctx, "cache write failed",
					logger.Component("cache"),
					slog.String("key", key),
					logger.Error(err),
				)
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
