package scheduler

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retrying a failed job. attempt starts at
// 1 for the first consecutive failure.
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// FixedBackoff waits the same duration after every failure.
type FixedBackoff time.Duration

func (f FixedBackoff) NextInterval(int) time.Duration {
	return time.Duration(f)
}

// ExponentialBackoff grows the delay by Multiplier per consecutive failure,
// with optional jitter, capped at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = time.Hour
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}
	return time.Duration(interval)
}
