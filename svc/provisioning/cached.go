package provisioning

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subledger/pkg/cache"
	"github.com/dmitrymomot/subledger/pkg/logger"
)

const inboundsCacheKey = "provisioning:inbounds"

// CachedInbounds serves GetInbounds from the cache. Changing an inbound
// invalidates the cached list. All other calls pass through.
type CachedInbounds struct {
	Provisioner
	cache  *cache.Tiered
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedInbounds wraps next. A zero ttl uses the cache default.
func NewCachedInbounds(next Provisioner, c *cache.Tiered, ttl time.Duration, l *slog.Logger) *CachedInbounds {
	if l == nil {
		l = slog.Default()
	}
	return &CachedInbounds{Provisioner: next, cache: c, ttl: ttl, logger: l}
}

func (c *CachedInbounds) GetInbounds(ctx context.Context) ([]Inbound, error) {
	return cache.Fetch(ctx, c.cache, inboundsCacheKey, c.ttl, c.Provisioner.GetInbounds)
}

func (c *CachedInbounds) SetInboundEnabled(ctx context.Context, id int, enabled bool) error {
	if err := c.Provisioner.SetInboundEnabled(ctx, id, enabled); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, inboundsCacheKey); err != nil {
		c.logger.WarnContext(ctx, "failed to invalidate inbounds cache", logger.Error(err))
	}
	return nil
}

func (c *CachedInbounds) CheckSession(ctx context.Context) error {
	return CheckSession(ctx, c.Provisioner)
}
