package subscription_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/provisioning"
	"github.com/dmitrymomot/subledger/svc/subscription"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	engine *subscription.Engine
	store  *ledger.MemoryStore
	prov   *provisioning.MemoryProvisioner
	sent   *recordingNotifier
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs map[int64][]string
}

func (r *recordingNotifier) SendMessage(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = make(map[int64][]string)
	}
	r.msgs[chatID] = append(r.msgs[chatID], text)
	return nil
}

func (r *recordingNotifier) count(chatID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[chatID])
}

func newHarness(t *testing.T, opts ...subscription.Option) *harness {
	t.Helper()
	clock := func() time.Time { return now }
	var seq atomic.Int64

	h := &harness{
		store: ledger.NewMemoryStore(ledger.WithMemoryClock(clock)),
		prov:  provisioning.NewMemoryProvisioner(),
		sent:  &recordingNotifier{},
	}
	opts = append([]subscription.Option{
		subscription.WithClock(clock),
		subscription.WithLogger(logger.Discard()),
		subscription.WithNotifier(h.sent, nil),
		subscription.WithHandleGenerator(func(userID int64) string {
			return fmt.Sprintf("u%d_%d", userID, seq.Add(1))
		}),
	}, opts...)
	h.engine = subscription.NewEngine(h.store, h.prov, opts...)
	return h
}

func (h *harness) tx(t *testing.T, fn func(tx ledger.Tx) error) {
	t.Helper()
	require.NoError(t, h.store.Tx(context.Background(), fn))
}

// fund creates a user whose balance comes from a completed deposit.
func (h *harness) fund(t *testing.T, chatID int64, amount int64) {
	t.Helper()
	h.tx(t, func(tx ledger.Tx) error {
		ctx := context.Background()
		if err := tx.CreateUser(ctx, &ledger.User{ChatID: chatID, Username: "user", Balance: decimal.NewFromInt(amount)}); err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		return tx.CreateTransaction(ctx, &ledger.Transaction{
			UserID: chatID,
			Amount: decimal.NewFromInt(amount),
			Kind:   ledger.TransactionDeposit,
			Status: ledger.StatusCompleted,
		})
	})
}

func (h *harness) service(t *testing.T, price int64, days int, quota int64, active bool) ledger.Service {
	t.Helper()
	svc := ledger.Service{Name: fmt.Sprintf("plan-%d", price), Price: decimal.NewFromInt(price), DurationDays: days, DataLimit: quota, IsActive: active, InboundID: 1}
	h.tx(t, func(tx ledger.Tx) error { return tx.CreateService(context.Background(), &svc) })
	return svc
}

func (h *harness) code(t *testing.T, code string, kind ledger.DiscountKind, magnitude int64, active bool) {
	t.Helper()
	h.tx(t, func(tx ledger.Tx) error {
		return tx.CreateDiscountCode(context.Background(), &ledger.DiscountCode{Code: code, Kind: kind, Magnitude: decimal.NewFromInt(magnitude), IsActive: active})
	})
}

func (h *harness) balance(t *testing.T, chatID int64) decimal.Decimal {
	t.Helper()
	var b decimal.Decimal
	h.tx(t, func(tx ledger.Tx) error {
		u, err := tx.GetUser(context.Background(), chatID)
		if err != nil {
			return err
		}
		b = u.Balance
		return nil
	})
	return b
}

func (h *harness) transactions(t *testing.T, chatID int64) []ledger.Transaction {
	t.Helper()
	var out []ledger.Transaction
	h.tx(t, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListTransactions(context.Background(), ledger.TransactionFilter{UserID: &chatID})
		return err
	})
	return out
}

func (h *harness) userServices(t *testing.T, chatID int64) []ledger.UserService {
	t.Helper()
	var out []ledger.UserService
	h.tx(t, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListUserServices(context.Background(), chatID, false)
		return err
	})
	return out
}

func (h *harness) debts(t *testing.T) []ledger.ReconciliationDebt {
	t.Helper()
	var out []ledger.ReconciliationDebt
	h.tx(t, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListOpenReconciliationDebts(context.Background())
		return err
	})
	return out
}

// assertLedgerIdentity checks balance == sum of completed transactions.
func (h *harness) assertLedgerIdentity(t *testing.T, chatID int64) {
	t.Helper()
	h.tx(t, func(tx ledger.Tx) error {
		ctx := context.Background()
		u, err := tx.GetUser(ctx, chatID)
		require.NoError(t, err)
		sum, err := tx.SumCompleted(ctx, chatID)
		require.NoError(t, err)
		assert.True(t, u.Balance.Equal(sum), "balance %s != ledger sum %s", u.Balance, sum)
		return nil
	})
}

func TestPurchase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("debits and provisions", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 250000)
		svc := h.service(t, 100000, 30, 50, true)

		res, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)

		assert.True(t, res.Balance.Equal(decimal.NewFromInt(150000)))
		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(150000)))
		assert.Equal(t, now.AddDate(0, 0, 30), res.UserService.ExpireAt)
		assert.Equal(t, int64(50), res.UserService.DataLimit)
		assert.True(t, res.UserService.IsActive)
		assert.True(t, h.prov.Has(provisioning.Handle(res.UserService.Handle)))

		var purchases []ledger.Transaction
		for _, tr := range h.transactions(t, 1) {
			if tr.Kind == ledger.TransactionPurchase {
				purchases = append(purchases, tr)
			}
		}
		require.Len(t, purchases, 1)
		assert.Equal(t, ledger.StatusCompleted, purchases[0].Status)
		assert.True(t, purchases[0].Amount.Equal(decimal.NewFromInt(-100000)))
		assert.True(t, purchases[0].Amount.Abs().Equal(svc.Price))
		require.NotNil(t, purchases[0].UserServiceID)
		assert.Equal(t, res.UserService.ID, *purchases[0].UserServiceID)

		assert.Len(t, h.userServices(t, 1), 1)
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("insufficient funds mutates nothing", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 50000)
		svc := h.service(t, 100000, 30, 50, true)

		_, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(50000)))
		assert.Empty(t, h.userServices(t, 1))
		creates, _ := h.prov.Calls()
		assert.Zero(t, creates, "panel is not called without funds")
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("missing or inactive service", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 250000)
		retired := h.service(t, 100000, 30, 50, false)

		_, err := h.engine.Purchase(ctx, 1, retired.ID)
		assert.ErrorIs(t, err, ledger.ErrServiceNotFound)

		_, err = h.engine.Purchase(ctx, 1, uuid.New())
		assert.ErrorIs(t, err, ledger.ErrServiceNotFound)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		svc := h.service(t, 100000, 30, 50, true)

		_, err := h.engine.Purchase(ctx, 404, svc.ID)
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)
	})

	t.Run("provisioning failure leaves no rows", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 250000)
		svc := h.service(t, 100000, 30, 50, true)
		h.prov.FailCreate(errors.New("panel down"))

		_, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.ErrorIs(t, err, ledger.ErrProvisioningFailed)

		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(250000)))
		assert.Len(t, h.transactions(t, 1), 1, "only the funding deposit")
		assert.Empty(t, h.userServices(t, 1))
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("provisioning timeout", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, subscription.WithProvisionTimeout(20*time.Millisecond))
		h.fund(t, 1, 250000)
		svc := h.service(t, 100000, 30, 50, true)
		h.prov.SetCreateDelay(time.Second)

		_, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.ErrorIs(t, err, ledger.ErrProvisioningFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, h.userServices(t, 1))
	})

	t.Run("commit failure tears the account down", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 250000)
		svc := h.service(t, 100000, 30, 50, true)
		h.store.FailNextCommit(errors.New("connection reset"))

		_, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.ErrorIs(t, err, ledger.ErrStoreUnavailable)

		assert.Zero(t, h.prov.Accounts())
		assert.Empty(t, h.debts(t))
		assert.Empty(t, h.userServices(t, 1))
		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(250000)))
		h.assertLedgerIdentity(t, 1)

		logs, err := h.engine.RecentLogs(ctx, 0)
		require.NoError(t, err)
		require.Len(t, logs.Errors, 1)
		assert.Equal(t, "store_unavailable", logs.Errors[0].ErrorType)
		require.NotNil(t, logs.Errors[0].UserID)
		assert.Equal(t, int64(1), *logs.Errors[0].UserID)
		assert.Contains(t, string(logs.Errors[0].Details), `"operation":"purchase"`)
	})

	t.Run("failed teardown becomes reconciliation debt", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 250000)
		svc := h.service(t, 100000, 30, 50, true)
		h.store.FailNextCommit(errors.New("connection reset"))
		h.prov.FailDelete(errors.New("panel down"))

		_, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.ErrorIs(t, err, ledger.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, ledger.ErrReconciliationDebt, "debt is recorded, not returned")

		debts := h.debts(t)
		require.Len(t, debts, 1)
		assert.Equal(t, int64(1), debts[0].UserID)
		assert.Equal(t, "purchase_rollback", debts[0].Operation)
		assert.Contains(t, debts[0].Reason, "panel down")
		assert.Equal(t, 1, h.prov.Accounts(), "external account diverged")
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("concurrent purchases with funds for one", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 50, true)

		const workers = 2
		errs := make([]error, workers)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, errs[i] = h.engine.Purchase(ctx, 1, svc.ID)
			}()
		}
		close(start)
		wg.Wait()

		var ok, insufficient int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				insufficient++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, insufficient)
		assert.True(t, h.balance(t, 1).IsZero())
		assert.Len(t, h.userServices(t, 1), 1)
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("discount code is consumed on commit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 50, true)
		h.code(t, "SPRING20", ledger.DiscountPercent, 20, true)

		quote, err := h.engine.ApplyDiscount(ctx, "spring20", svc.Price)
		require.NoError(t, err)
		assert.True(t, quote.Equal(decimal.NewFromInt(80000)))

		res, err := h.engine.Purchase(ctx, 1, svc.ID, subscription.WithDiscountCode("spring20"))
		require.NoError(t, err)
		assert.True(t, res.Price.Equal(decimal.NewFromInt(80000)))
		assert.True(t, res.Balance.Equal(decimal.NewFromInt(20000)))
		assert.Equal(t, "SPRING20", res.Transaction.DiscountCode)

		h.tx(t, func(tx ledger.Tx) error {
			d, err := tx.GetDiscountCode(ctx, "SPRING20")
			require.NoError(t, err)
			assert.Equal(t, 1, d.UsedCount, "quote does not count, purchase does")
			return nil
		})
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("inactive discount code", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 50, true)
		h.code(t, "OLD", ledger.DiscountFixed, 100, false)

		_, err := h.engine.Purchase(ctx, 1, svc.ID, subscription.WithDiscountCode("OLD"))
		assert.ErrorIs(t, err, ledger.ErrCodeInactive)
		creates, _ := h.prov.Calls()
		assert.Zero(t, creates)
	})
}

func TestExtendOrRenew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("extends from current expiry", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 300000)
		svc := h.service(t, 100000, 30, 50, true)

		first, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)
		require.NoError(t, h.engine.RecordUsage(ctx, first.UserService.ID, 40))

		res, err := h.engine.ExtendOrRenew(ctx, 1, first.UserService.ID)
		require.NoError(t, err)
		assert.Equal(t, first.UserService.ExpireAt.AddDate(0, 0, 30), res.UserService.ExpireAt)
		assert.Zero(t, res.UserService.DataUsed)
		assert.Equal(t, int64(50), res.UserService.DataLimit)
		assert.True(t, res.Balance.Equal(decimal.NewFromInt(100000)))

		assert.NotEqual(t, first.UserService.Handle, res.UserService.Handle)
		assert.False(t, h.prov.Has(provisioning.Handle(first.UserService.Handle)), "old account torn down")
		assert.True(t, h.prov.Has(provisioning.Handle(res.UserService.Handle)))
		assert.Len(t, h.userServices(t, 1), 1)
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("renews an expired service from now", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 50, true)

		deactivated := now.AddDate(0, 0, -2)
		us := ledger.UserService{UserID: 1, ServiceID: svc.ID, Handle: "old", ExpireAt: now.AddDate(0, 0, -3), DataLimit: 50, DataUsed: 50, DeactivatedAt: &deactivated}
		h.tx(t, func(tx ledger.Tx) error { return tx.CreateUserService(ctx, &us) })

		res, err := h.engine.ExtendOrRenew(ctx, 1, us.ID)
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 0, 30), res.UserService.ExpireAt)
		assert.True(t, res.UserService.IsActive)
		assert.Nil(t, res.UserService.DeactivatedAt)
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("old account teardown failure is debt", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 200000)
		svc := h.service(t, 100000, 30, 50, true)

		first, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)
		h.prov.FailDelete(errors.New("panel down"))

		_, err = h.engine.ExtendOrRenew(ctx, 1, first.UserService.ID)
		require.NoError(t, err)

		debts := h.debts(t)
		require.Len(t, debts, 1)
		assert.Equal(t, "renew_teardown", debts[0].Operation)
		assert.Equal(t, first.UserService.Handle, debts[0].Handle)
	})

	t.Run("foreign user service", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 200000)
		h.fund(t, 2, 200000)
		svc := h.service(t, 100000, 30, 50, true)

		first, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)

		_, err = h.engine.ExtendOrRenew(ctx, 2, first.UserService.ID)
		assert.ErrorIs(t, err, ledger.ErrUserServiceNotFound)
		assert.True(t, h.balance(t, 2).Equal(decimal.NewFromInt(200000)))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 50, true)

		first, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)

		_, err = h.engine.ExtendOrRenew(ctx, 1, first.UserService.ID)
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		got := h.userServices(t, 1)
		require.Len(t, got, 1)
		assert.Equal(t, first.UserService.ExpireAt, got[0].ExpireAt)
	})
}

func TestDeposits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("approve credits exactly once", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 0)

		id, err := h.engine.RecordDeposit(ctx, 1, decimal.NewFromInt(5000))
		require.NoError(t, err)
		assert.True(t, h.balance(t, 1).IsZero(), "pending deposit does not credit")

		tr, err := h.engine.ApproveDeposit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusCompleted, tr.Status)
		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(5000)))

		_, err = h.engine.ApproveDeposit(ctx, id)
		require.ErrorIs(t, err, ledger.ErrInvalidState)
		_, err = h.engine.RejectDeposit(ctx, id)
		require.ErrorIs(t, err, ledger.ErrInvalidState)

		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(5000)))
		assert.Equal(t, 1, h.sent.count(1))
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("concurrent approvals credit once", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 0)
		id, err := h.engine.RecordDeposit(ctx, 1, decimal.NewFromInt(700))
		require.NoError(t, err)

		var wg sync.WaitGroup
		var okCount atomic.Int32
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := h.engine.ApproveDeposit(ctx, id); err == nil {
					okCount.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), okCount.Load())
		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(700)))
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("reject leaves balance", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100)

		id, err := h.engine.RecordDeposit(ctx, 1, decimal.NewFromInt(900))
		require.NoError(t, err)
		tr, err := h.engine.RejectDeposit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusRejected, tr.Status)

		_, err = h.engine.ApproveDeposit(ctx, id)
		require.ErrorIs(t, err, ledger.ErrInvalidState)
		assert.True(t, h.balance(t, 1).Equal(decimal.NewFromInt(100)))
		h.assertLedgerIdentity(t, 1)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 0)

		_, err := h.engine.RecordDeposit(ctx, 1, decimal.Zero)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = h.engine.RecordDeposit(ctx, 1, decimal.NewFromInt(-5))
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = h.engine.RecordDeposit(ctx, 2, decimal.NewFromInt(5))
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)
		_, err = h.engine.ApproveDeposit(ctx, uuid.New())
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})

	t.Run("purchases cannot be approved", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 50, true)
		res, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)

		_, err = h.engine.ApproveDeposit(ctx, res.Transaction.ID)
		assert.ErrorIs(t, err, ledger.ErrInvalidState)
	})

	t.Run("pending list", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 0)
		_, err := h.engine.RecordDeposit(ctx, 1, decimal.NewFromInt(10))
		require.NoError(t, err)

		pending, err := h.engine.PendingDeposits(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}

func TestDiscounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := decimal.NewFromInt(100000)

	h := newHarness(t)
	_, err := h.engine.CreateDiscountCode(ctx, "pct20", ledger.DiscountPercent, decimal.NewFromInt(20))
	require.NoError(t, err)
	_, err = h.engine.CreateDiscountCode(ctx, "FIX30K", ledger.DiscountFixed, decimal.NewFromInt(30000))
	require.NoError(t, err)
	_, err = h.engine.CreateDiscountCode(ctx, "HUGE", ledger.DiscountFixed, decimal.NewFromInt(500000))
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		want int64
	}{
		{"percent", "PCT20", 80000},
		{"fixed", "fix30k", 70000},
		{"fixed floors at zero", "HUGE", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.engine.ApplyDiscount(ctx, tt.code, base)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s", got)
		})
	}

	t.Run("creation validation", func(t *testing.T) {
		invalid := []struct {
			code      string
			kind      ledger.DiscountKind
			magnitude int64
		}{
			{"PCT150", ledger.DiscountPercent, 150},
			{"PCT0", ledger.DiscountPercent, 0},
			{"FIXNEG", ledger.DiscountFixed, -1},
			{"X", ledger.DiscountFixed, 10},
			{"BAD CODE", ledger.DiscountFixed, 10},
			{"KIND", "bogus", 10},
		}
		for _, c := range invalid {
			_, err := h.engine.CreateDiscountCode(ctx, c.code, c.kind, decimal.NewFromInt(c.magnitude))
			assert.ErrorIs(t, err, ledger.ErrInvalidDiscount, c.code)
		}

		_, err := h.engine.CreateDiscountCode(ctx, "PCT100", ledger.DiscountPercent, decimal.NewFromInt(100))
		assert.NoError(t, err, "100 percent is allowed")
		_, err = h.engine.CreateDiscountCode(ctx, "pct20", ledger.DiscountPercent, decimal.NewFromInt(5))
		assert.ErrorIs(t, err, ledger.ErrDuplicateCode)
	})

	t.Run("lookup failures", func(t *testing.T) {
		_, err := h.engine.ApplyDiscount(ctx, "MISSING", base)
		assert.ErrorIs(t, err, ledger.ErrCodeNotFound)

		require.NoError(t, h.engine.SetDiscountCodeActive(ctx, "FIX30K", false))
		_, err = h.engine.ApplyDiscount(ctx, "FIX30K", base)
		assert.ErrorIs(t, err, ledger.ErrCodeInactive)

		assert.ErrorIs(t, h.engine.SetDiscountCodeActive(ctx, "MISSING", true), ledger.ErrCodeNotFound)
	})
}

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ensure user is idempotent", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, subscription.WithAdmins(7))

		u, err := h.engine.EnsureUser(ctx, 7, "boss")
		require.NoError(t, err)
		assert.True(t, u.IsAdmin)
		assert.True(t, u.Balance.IsZero())

		again, err := h.engine.EnsureUser(ctx, 7, "renamed")
		require.NoError(t, err)
		assert.Equal(t, "boss", again.Username)

		plain, err := h.engine.EnsureUser(ctx, 8, "user")
		require.NoError(t, err)
		assert.False(t, plain.IsAdmin)

		_, err = h.engine.EnsureUser(ctx, 0, "")
		assert.ErrorIs(t, err, subscription.ErrInvalidChatID)
	})

	t.Run("snapshot lists active services", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 100000)
		svc := h.service(t, 100000, 30, 10<<30, true)

		res, err := h.engine.Purchase(ctx, 1, svc.ID)
		require.NoError(t, err)
		require.NoError(t, h.engine.RecordUsage(ctx, res.UserService.ID, 4<<30))

		snap, err := h.engine.GetUserSnapshot(ctx, 1)
		require.NoError(t, err)
		assert.True(t, snap.Balance.IsZero())
		require.Len(t, snap.ActiveServices, 1)
		view := snap.ActiveServices[0]
		assert.Equal(t, svc.Name, view.Name)
		assert.Equal(t, 30, view.RemainingDays)
		assert.Equal(t, int64(6<<30), view.RemainingBytes)

		_, err = h.engine.GetUserSnapshot(ctx, 99)
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)
	})

	t.Run("usage validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		assert.ErrorIs(t, h.engine.RecordUsage(ctx, uuid.New(), -1), subscription.ErrInvalidUsage)
		assert.ErrorIs(t, h.engine.RecordUsage(ctx, uuid.New(), 1), ledger.ErrUserServiceNotFound)
	})

	t.Run("sales report", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.fund(t, 1, 300000)
		svc := h.service(t, 100000, 30, 50, true)
		for range 2 {
			_, err := h.engine.Purchase(ctx, 1, svc.ID)
			require.NoError(t, err)
		}

		report, err := h.engine.SalesReport(ctx, now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, report.SalesCount)
		assert.True(t, report.TotalSales.Equal(decimal.NewFromInt(200000)))
		assert.Equal(t, 2, report.ActiveServices)

		_, err = h.engine.SalesReport(ctx, now, now)
		assert.ErrorIs(t, err, subscription.ErrInvalidRange)
	})
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ledger.ErrInsufficientFunds, subscription.MsgInsufficientFunds},
		{ledger.ErrServiceNotFound, subscription.MsgNotFound},
		{ledger.ErrUserServiceNotFound, subscription.MsgNotFound},
		{ledger.ErrCodeNotFound, subscription.MsgInvalidDiscount},
		{ledger.ErrCodeInactive, subscription.MsgInvalidDiscount},
		{ledger.ErrInvalidState, subscription.MsgAlreadyProcessed},
		{ledger.ErrInvalidAmount, subscription.MsgInvalidAmount},
		{errors.Join(ledger.ErrProvisioningFailed, errors.New("dial tcp 10.0.0.1:443")), subscription.MsgTemporary},
		{errors.Join(ledger.ErrStoreUnavailable, errors.New("pq: password authentication failed")), subscription.MsgTemporary},
		{provisioning.ErrPanelBusy, subscription.MsgTemporary},
	}
	for _, tt := range tests {
		got := subscription.UserMessage(tt.err)
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "10.0.0.1")
	}

	assert.NotEqual(t, subscription.MsgInsufficientFunds, subscription.MsgTemporary)
	assert.NotEqual(t, subscription.MsgNotFound, subscription.MsgTemporary)
}
