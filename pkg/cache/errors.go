package cache

import "errors"

var (
	ErrKeyRequired  = errors.New("cache key is required")
	ErrNoTiers      = errors.New("at least one cache tier is required")
	ErrCorruptEntry = errors.New("corrupt cache entry")
	ErrDiskTier     = errors.New("disk cache tier failure")
	ErrRedisTier    = errors.New("redis cache tier failure")
)
