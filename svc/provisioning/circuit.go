package provisioning

import (
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calls to the panel after consecutive transport
// failures and lets a probe through once the recovery timeout has passed.
// Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	state       CircuitState
	failures    int
	lastFailure time.Time
}

// CircuitOption configures a CircuitBreaker.
type CircuitOption func(*CircuitBreaker)

// WithCircuitClock replaces time.Now.
func WithCircuitClock(now func() time.Time) CircuitOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to 5 failures and 30 seconds.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, opts ...CircuitOption) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	cb := &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether a call may proceed. An open breaker past its
// recovery timeout turns half-open and allows the call.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.mu.Unlock()
}

// RecordFailure counts a failure; a failed half-open probe reopens at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
	}
}

// State returns the current state, including a pending half-open transition.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailure) > cb.recoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}
