package provisioning_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/cache"
	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/pkg/ratelimit"
	"github.com/dmitrymomot/subledger/svc/provisioning"
)

type countingInbounds struct {
	*provisioning.MemoryProvisioner
	calls atomic.Int32
}

func (c *countingInbounds) GetInbounds(ctx context.Context) ([]provisioning.Inbound, error) {
	c.calls.Add(1)
	return c.MemoryProvisioner.GetInbounds(ctx)
}

func TestCachedInbounds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, err := cache.NewTiered([]cache.Tier{cache.NewMemoryTier()}, cache.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	next := &countingInbounds{MemoryProvisioner: provisioning.NewMemoryProvisioner(
		provisioning.Inbound{ID: 1, Tag: "a", Enabled: true},
	)}
	p := provisioning.NewCachedInbounds(next, c, time.Minute, logger.Discard())

	for range 3 {
		inbounds, err := p.GetInbounds(ctx)
		require.NoError(t, err)
		require.Len(t, inbounds, 1)
		assert.True(t, inbounds[0].Enabled)
	}
	assert.Equal(t, int32(1), next.calls.Load())

	require.NoError(t, p.SetInboundEnabled(ctx, 1, false))
	inbounds, err := p.GetInbounds(ctx)
	require.NoError(t, err)
	assert.False(t, inbounds[0].Enabled, "write invalidates the cached list")
	assert.Equal(t, int32(2), next.calls.Load())

	assert.NoError(t, provisioning.CheckSession(ctx, p))
	next.FailSession(errors.New("expired"))
	assert.Error(t, provisioning.CheckSession(ctx, p))
}

func TestGuarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pool := ratelimit.NewConnectionPool(1)
	mem := provisioning.NewMemoryProvisioner()
	g := provisioning.NewGuarded(mem, pool)

	h, err := g.CreateAccount(ctx, provisioning.Profile{Username: "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, pool.InUse(), "slot released after the call")

	require.True(t, pool.Acquire("someone-else"))
	_, err = g.CreateAccount(ctx, provisioning.Profile{Username: "b"})
	assert.ErrorIs(t, err, provisioning.ErrPanelBusy)
	assert.ErrorIs(t, g.DeleteAccount(ctx, h), provisioning.ErrPanelBusy)
	assert.ErrorIs(t, g.CheckSession(ctx), provisioning.ErrPanelBusy)

	pool.Release("someone-else")
	require.NoError(t, g.DeleteAccount(ctx, h))
	assert.False(t, mem.Has(h))
}

func TestMemoryProvisioner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create delay honors context", func(t *testing.T) {
		t.Parallel()
		m := provisioning.NewMemoryProvisioner()
		m.SetCreateDelay(time.Hour)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := m.CreateAccount(cctx, provisioning.Profile{Username: "slow"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, m.Accounts())
	})

	t.Run("failure hooks", func(t *testing.T) {
		t.Parallel()
		m := provisioning.NewMemoryProvisioner()
		boom := errors.New("boom")

		m.FailCreate(boom)
		_, err := m.CreateAccount(ctx, provisioning.Profile{Username: "x"})
		require.ErrorIs(t, err, boom)
		m.FailCreate(nil)

		h, err := m.CreateAccount(ctx, provisioning.Profile{Username: "x"})
		require.NoError(t, err)
		_, err = m.CreateAccount(ctx, provisioning.Profile{Username: "x"})
		require.ErrorIs(t, err, provisioning.ErrAccountExists)

		m.FailDelete(boom)
		require.ErrorIs(t, m.DeleteAccount(ctx, h), boom)
		assert.True(t, m.Has(h))

		creates, deletes := m.Calls()
		assert.Equal(t, 3, creates)
		assert.Equal(t, 1, deletes)
	})

	t.Run("unknown inbound", func(t *testing.T) {
		t.Parallel()
		m := provisioning.NewMemoryProvisioner()
		assert.ErrorIs(t, m.SetInboundEnabled(ctx, 9, true), provisioning.ErrInboundNotFound)
	})
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := provisioning.NewCircuitBreaker(2, time.Minute, provisioning.WithCircuitClock(func() time.Time { return now }))

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, provisioning.CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, provisioning.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, provisioning.CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.False(t, cb.Allow(), "failed probe reopens")

	now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, provisioning.CircuitClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
