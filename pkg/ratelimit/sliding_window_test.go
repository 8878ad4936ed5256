package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/ratelimit"
)

func TestNewSlidingWindow(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	tests := []struct {
		name   string
		store  ratelimit.WindowStore
		limit  int
		window time.Duration
		err    error
	}{
		{"valid", store, 10, time.Second, nil},
		{"nil store", nil, 10, time.Second, ratelimit.ErrStoreRequired},
		{"zero limit", store, 0, time.Second, ratelimit.ErrInvalidLimit},
		{"negative window", store, 1, -time.Second, ratelimit.ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimit.NewSlidingWindow(tt.store, tt.limit, tt.window)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSlidingWindow_Allow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects above limit and recovers after window", func(t *testing.T) {
		clock := newFakeClock()
		store := ratelimit.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		sw, err := ratelimit.NewSlidingWindow(store, 3, time.Second, ratelimit.WithClock(clock.Now))
		require.NoError(t, err)

		for i := range 3 {
			res, err := sw.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i)
			assert.Equal(t, 2-i, res.Remaining)
		}

		res, err := sw.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)

		// Other keys are independent.
		res, err = sw.Allow(ctx, "u2")
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		clock.Advance(time.Second)
		res, err = sw.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("window slides instead of resetting", func(t *testing.T) {
		clock := newFakeClock()
		store := ratelimit.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		sw, err := ratelimit.NewSlidingWindow(store, 2, time.Second, ratelimit.WithClock(clock.Now))
		require.NoError(t, err)

		_, _ = sw.Allow(ctx, "k")
		clock.Advance(600 * time.Millisecond)
		_, _ = sw.Allow(ctx, "k")
		clock.Advance(600 * time.Millisecond)

		// The first event left the window, the second has not.
		res, err := sw.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		res, err = sw.Allow(ctx, "k")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	})

	t.Run("status and reset", func(t *testing.T) {
		store := ratelimit.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		sw, err := ratelimit.NewSlidingWindow(store, 2, time.Minute)
		require.NoError(t, err)

		_, _ = sw.AllowN(ctx, "k", 2)
		st, err := sw.Status(ctx, "k")
		require.NoError(t, err)
		assert.False(t, st.Allowed)

		require.NoError(t, sw.Reset(ctx, "k"))
		st, err = sw.Status(ctx, "k")
		require.NoError(t, err)
		assert.True(t, st.Allowed)
		assert.Equal(t, 2, st.Remaining)
	})

	t.Run("key required", func(t *testing.T) {
		store := ratelimit.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		sw, err := ratelimit.NewSlidingWindow(store, 1, time.Second)
		require.NoError(t, err)

		_, err = sw.Allow(ctx, "")
		assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
	})

	t.Run("concurrent callers never exceed limit", func(t *testing.T) {
		store := ratelimit.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		sw, err := ratelimit.NewSlidingWindow(store, 10, time.Hour)
		require.NoError(t, err)

		var allowed atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if res, err := sw.Allow(ctx, "hot"); err == nil && res.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(10), allowed.Load())
	})
}
