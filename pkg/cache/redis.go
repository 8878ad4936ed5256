package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier shares cached values between processes. Expiry is delegated to
// Redis, so Sweep is a no-op.
type RedisTier struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewRedisTier wraps client. Keys are stored as prefix+key.
func NewRedisTier(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *RedisTier {
	if client == nil {
		panic("cache: redis client is required")
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &RedisTier{client: client, prefix: prefix, defaultTTL: defaultTTL, now: time.Now}
}

func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, r.prefix+key)
	ttlCmd := pipe.PTTL(ctx, r.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, errors.Join(ErrRedisTier, err)
	}

	value, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, errors.Join(ErrRedisTier, err)
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		// Key without expiry or expired between the two commands.
		ttl = r.defaultTTL
	}
	return value, r.now().Add(ttl), true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return errors.Join(ErrRedisTier, err)
	}
	return nil
}

func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Join(ErrRedisTier, err)
	}
	return nil
}

func (r *RedisTier) Sweep(context.Context) (int, error) {
	return 0, nil
}
