package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

// MemoryTier keeps entries in a map. When the entry count exceeds the
// configured maximum the entry closest to expiry is evicted.
type MemoryTier struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

// MemoryOption configures a MemoryTier.
type MemoryOption func(*MemoryTier)

// WithMemoryMaxEntries bounds the number of live entries.
func WithMemoryMaxEntries(n int) MemoryOption {
	return func(m *MemoryTier) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithMemoryDefaultTTL sets the lifetime used when Set receives ttl <= 0.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryTier) {
		if ttl > 0 {
			m.defaultTTL = ttl
		}
	}
}

// WithMemoryClock replaces time.Now.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryTier) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryTier creates an in-process tier with 1000 entries and a 5 minute
// default lifetime unless overridden.
func NewMemoryTier(opts ...MemoryOption) *MemoryTier {
	m := &MemoryTier{
		entries:    make(map[string]memoryEntry),
		maxEntries: 1000,
		defaultTTL: 5 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryTier) Get(_ context.Context, key string) ([]byte, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	if !m.now().Before(e.expireAt) {
		delete(m.entries, key)
		return nil, time.Time{}, false, nil
	}
	return e.value, e.expireAt, true, nil
}

func (m *MemoryTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expireAt: m.now().Add(ttl)}
	for len(m.entries) > m.maxEntries {
		victim, ok := nearestExpiry(m.entries, func(e memoryEntry) time.Time { return e.expireAt })
		if !ok {
			break
		}
		delete(m.entries, victim)
	}
	return nil
}

func (m *MemoryTier) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryTier) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expireAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
