package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/subscription"
)

type flakyNotifier struct {
	recordingNotifier
	down map[int64]bool
}

func (f *flakyNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	if f.down[chatID] {
		return errors.New("bot blocked by user")
	}
	return f.recordingNotifier.SendMessage(ctx, chatID, text)
}

func TestBroadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("counts per recipient failures", func(t *testing.T) {
		t.Parallel()
		n := &flakyNotifier{down: map[int64]bool{2: true}}
		h := newHarness(t, subscription.WithNotifier(n, nil))
		for _, id := range []int64{1, 2, 3} {
			h.fund(t, id, 0)
		}

		report, err := h.engine.Broadcast(ctx, "  maintenance tonight  ")
		require.NoError(t, err)
		assert.Equal(t, subscription.BroadcastReport{Recipients: 3, Sent: 2, Failed: 1}, *report)
		assert.Equal(t, 1, n.count(1))
		assert.Equal(t, 0, n.count(2))
		assert.Equal(t, 1, n.count(3))

		logs, err := h.engine.RecentLogs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logs.System, 1)
		assert.Equal(t, "broadcast", logs.System[0].Module)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.engine.Broadcast(ctx, "   ")
		assert.ErrorIs(t, err, subscription.ErrEmptyMessage)
		assert.Equal(t, subscription.MsgInvalidRequest, subscription.UserMessage(err))
	})

	t.Run("requires a notifier", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, subscription.WithNotifier(nil, nil))
		_, err := h.engine.Broadcast(ctx, "hello")
		assert.ErrorIs(t, err, subscription.ErrNotifierUnavailable)
	})
}

func TestOperatorListings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 1, 100)
	h.fund(t, 2, 0)
	h.code(t, "SPRING", ledger.DiscountPercent, 10, true)
	h.code(t, "OLD", ledger.DiscountFixed, 5, false)

	users, err := h.engine.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	codes, err := h.engine.ListDiscountCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, codes, 2)
}

func TestReconciliationDebts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, 1, 250000)
	svc := h.service(t, 100000, 30, 50, true)
	h.store.FailNextCommit(errors.New("connection reset"))
	h.prov.FailDelete(errors.New("panel down"))

	_, err := h.engine.Purchase(ctx, 1, svc.ID)
	require.ErrorIs(t, err, ledger.ErrStoreUnavailable)

	debts, err := h.engine.OpenReconciliationDebts(ctx)
	require.NoError(t, err)
	require.Len(t, debts, 1)

	require.NoError(t, h.engine.ResolveReconciliationDebt(ctx, debts[0].ID))
	debts, err = h.engine.OpenReconciliationDebts(ctx)
	require.NoError(t, err)
	assert.Empty(t, debts)

	assert.ErrorIs(t, h.engine.ResolveReconciliationDebt(ctx, uuid.New()), ledger.ErrNotFound)
}
