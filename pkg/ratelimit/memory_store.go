package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local WindowStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	cleanupInterval time.Duration
	initialCapacity int
	now             func() time.Time
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type window struct {
	timestamps []time.Time
	span       time.Duration
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often idle keys are dropped.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithInitialCapacity sets the initial capacity of per-key timestamp slices.
func WithInitialCapacity(capacity int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if capacity > 0 {
			s.initialCapacity = capacity
		}
	}
}

// WithStoreClock replaces time.Now for the cleanup pass.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store and starts its cleanup goroutine.
// Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*window),
		cleanupInterval: time.Minute,
		initialCapacity: 16,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func (s *MemoryStore) RecordIfAllowed(_ context.Context, key string, ts time.Time, span time.Duration, limit, n int) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{timestamps: make([]time.Time, 0, s.initialCapacity)}
		s.windows[key] = w
	}
	w.span = max(w.span, span)
	w.timestamps = prune(w.timestamps, ts.Add(-span))

	if len(w.timestamps)+n > limit {
		return false, int64(len(w.timestamps)), nil
	}
	for range n {
		w.timestamps = append(w.timestamps, ts)
	}
	return true, int64(len(w.timestamps)), nil
}

func (s *MemoryStore) CountInWindow(_ context.Context, key string, ts time.Time, span time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return 0, nil
	}
	w.timestamps = prune(w.timestamps, ts.Add(-span))
	return int64(len(w.timestamps)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops keys without events inside their window.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		w.timestamps = prune(w.timestamps, now.Add(-w.span))
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
