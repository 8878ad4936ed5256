package ratelimit

import (
	"sync"
	"time"
)

type attempts struct {
	failures     int
	blockedUntil time.Time
}

// Lockout blocks a key for a fixed time after too many consecutive failures.
type Lockout struct {
	mu          sync.Mutex
	maxAttempts int
	blockTime   time.Duration
	now         func() time.Time
	keys        map[string]*attempts
}

// NewLockout creates a Lockout that blocks a key for blockTime once it has
// failed maxAttempts times in a row.
func NewLockout(maxAttempts int, blockTime time.Duration) (*Lockout, error) {
	if maxAttempts <= 0 {
		return nil, ErrInvalidLimit
	}
	if blockTime <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Lockout{
		maxAttempts: maxAttempts,
		blockTime:   blockTime,
		now:         time.Now,
		keys:        make(map[string]*attempts),
	}, nil
}

// Check returns ErrLockedOut while key is blocked.
func (l *Lockout) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.keys[key]
	if !ok {
		return nil
	}
	if a.blockedUntil.IsZero() {
		return nil
	}
	if l.now().Before(a.blockedUntil) {
		return ErrLockedOut
	}
	delete(l.keys, key)
	return nil
}

// Fail records a failed attempt. It returns ErrLockedOut when this failure
// starts a block.
func (l *Lockout) Fail(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.keys[key]
	if !ok {
		a = &attempts{}
		l.keys[key] = a
	}
	a.failures++
	if a.failures >= l.maxAttempts {
		a.failures = 0
		a.blockedUntil = l.now().Add(l.blockTime)
		return ErrLockedOut
	}
	return nil
}

// Succeed clears the failure history of key.
func (l *Lockout) Succeed(key string) {
	l.mu.Lock()
	delete(l.keys, key)
	l.mu.Unlock()
}
