package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/pkg/cache"
	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
)

const listingCacheKey = "catalog:services"

// DefaultListingTTL is how long the active listing stays cached.
const DefaultListingTTL = 10 * time.Minute

// ServiceInput is an admin-supplied service definition.
type ServiceInput struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	DataLimit    int64           `json:"data_limit"`
	InboundID    int             `json:"inbound_id"`
	IsActive     bool            `json:"is_active"`
}

// Validate reports ErrInvalidService for an empty name, a negative price, a
// non-positive duration or a negative quota.
func (in ServiceInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return errors.Join(ledger.ErrInvalidService, errors.New("name is required"))
	case in.Price.IsNegative():
		return errors.Join(ledger.ErrInvalidService, errors.New("price must not be negative"))
	case in.DurationDays <= 0:
		return errors.Join(ledger.ErrInvalidService, errors.New("duration must be positive"))
	case in.DataLimit < 0:
		return errors.Join(ledger.ErrInvalidService, errors.New("data limit must not be negative"))
	}
	return nil
}

// Catalog manages service templates. The active listing is read through
// the tiered cache and invalidated on every write; the store stays
// authoritative.
type Catalog struct {
	store  ledger.Store
	cache  *cache.Tiered
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache enables listing caching.
func WithCache(c *cache.Tiered, ttl time.Duration) Option {
	return func(cat *Catalog) {
		cat.cache = c
		if ttl > 0 {
			cat.ttl = ttl
		}
	}
}

// WithLogger sets the catalog logger.
func WithLogger(l *slog.Logger) Option {
	return func(cat *Catalog) {
		if l != nil {
			cat.logger = l
		}
	}
}

// New creates a catalog backed by store. Panics if store is nil.
func New(store ledger.Store, opts ...Option) *Catalog {
	if store == nil {
		panic("catalog: ledger store is required")
	}
	c := &Catalog{store: store, ttl: DefaultListingTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("catalog"))
	return c
}

// ListServices returns the active services ordered by price.
func (c *Catalog) ListServices(ctx context.Context) ([]ledger.Service, error) {
	if c.cache == nil {
		return c.loadActive(ctx)
	}
	return cache.Fetch(ctx, c.cache, listingCacheKey, c.ttl, c.loadActive)
}

func (c *Catalog) loadActive(ctx context.Context) ([]ledger.Service, error) {
	var out []ledger.Service
	err := c.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListServices(ctx, true)
		return err
	})
	return out, err
}

// AllServices returns every service including inactive ones, uncached.
func (c *Catalog) AllServices(ctx context.Context) ([]ledger.Service, error) {
	var out []ledger.Service
	err := c.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListServices(ctx, false)
		return err
	})
	return out, err
}

// GetService returns a service by id regardless of its active flag.
func (c *Catalog) GetService(ctx context.Context, id uuid.UUID) (*ledger.Service, error) {
	var svc *ledger.Service
	err := c.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		svc, err = tx.GetService(ctx, id)
		return err
	})
	return svc, err
}

// CreateService stores a new template.
func (c *Catalog) CreateService(ctx context.Context, in ServiceInput) (*ledger.Service, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	svc := &ledger.Service{
		Name:         strings.TrimSpace(in.Name),
		Price:        in.Price,
		DurationDays: in.DurationDays,
		DataLimit:    in.DataLimit,
		InboundID:    in.InboundID,
		IsActive:     in.IsActive,
	}
	if err := c.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.CreateService(ctx, svc)
	}); err != nil {
		return nil, err
	}

	c.invalidate(ctx)
	c.logger.InfoContext(ctx, "service created", logger.ServiceID(svc.ID), slog.String("name", svc.Name))
	return svc, nil
}

// UpdateService replaces the definition of an existing template. Issued
// user services keep the quota and expiry they were sold with.
func (c *Catalog) UpdateService(ctx context.Context, id uuid.UUID, in ServiceInput) (*ledger.Service, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var svc *ledger.Service
	err := c.store.Tx(ctx, func(tx ledger.Tx) error {
		cur, err := tx.GetService(ctx, id)
		if err != nil {
			return err
		}
		cur.Name = strings.TrimSpace(in.Name)
		cur.Price = in.Price
		cur.DurationDays = in.DurationDays
		cur.DataLimit = in.DataLimit
		cur.InboundID = in.InboundID
		cur.IsActive = in.IsActive
		if err := tx.UpdateService(ctx, cur); err != nil {
			return err
		}
		svc = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx)
	c.logger.InfoContext(ctx, "service updated", logger.ServiceID(id))
	return svc, nil
}

func (c *Catalog) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, listingCacheKey); err != nil {
		c.logger.WarnContext(ctx, "failed to invalidate listing cache", logger.Error(err))
	}
}
