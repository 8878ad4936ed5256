package cache

import (
	"context"
	"time"
)

// Tier is a single level of the cache. Values are opaque bytes.
// Get reports the absolute expiry of a hit so that upper tiers can be
// populated with the remaining lifetime.
type Tier interface {
	Get(ctx context.Context, key string) (value []byte, expireAt time.Time, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// nearestExpiry returns the key whose expiry comes first.
func nearestExpiry[E any](entries map[string]E, expiry func(E) time.Time) (string, bool) {
	var (
		victim string
		at     time.Time
		found  bool
	)
	for k, e := range entries {
		exp := expiry(e)
		if !found || exp.Before(at) {
			victim, at, found = k, exp, true
		}
	}
	return victim, found
}
