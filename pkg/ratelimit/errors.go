package ratelimit

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrKeyRequired       = errors.New("key is required")
	ErrStoreRequired     = errors.New("store is required")
	ErrLockedOut         = errors.New("too many failed attempts")
)
