package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/svc/ledger"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore() *ledger.MemoryStore {
	return ledger.NewMemoryStore(ledger.WithMemoryClock(func() time.Time { return base }))
}

func TestMemoryStoreAtomicity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("failed unit of work leaves no trace", func(t *testing.T) {
		t.Parallel()
		s := newStore()
		boom := errors.New("boom")

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.CreateUser(ctx, &ledger.User{ChatID: 1}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = s.Tx(ctx, func(tx ledger.Tx) error {
			_, err := tx.GetUser(ctx, 1)
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("commit failure discards changes", func(t *testing.T) {
		t.Parallel()
		s := newStore()
		lost := errors.New("connection reset")
		s.FailNextCommit(lost)

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			return tx.CreateUser(ctx, &ledger.User{ChatID: 2})
		})
		require.ErrorIs(t, err, ledger.ErrStoreUnavailable)
		require.ErrorIs(t, err, lost)

		err = s.Tx(ctx, func(tx ledger.Tx) error {
			return tx.CreateUser(ctx, &ledger.User{ChatID: 2})
		})
		assert.NoError(t, err, "hook fires once")
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		s := newStore()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := s.Tx(cctx, func(ledger.Tx) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ping error hook", func(t *testing.T) {
		t.Parallel()
		s := newStore()
		require.NoError(t, s.Ping(ctx))

		s.SetPingError(ledger.ErrStoreUnavailable)
		assert.ErrorIs(t, s.Ping(ctx), ledger.ErrStoreUnavailable)

		s.SetPingError(nil)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStoreRepos(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.CreateUser(ctx, &ledger.User{ChatID: 10, Username: "admin", IsAdmin: true}))
			require.NoError(t, tx.CreateUser(ctx, &ledger.User{ChatID: 11, Username: "bob"}))
			assert.ErrorIs(t, tx.CreateUser(ctx, &ledger.User{ChatID: 11}), ledger.ErrUserExists)

			require.NoError(t, tx.SetUserBalance(ctx, 11, decimal.NewFromInt(500)))
			assert.ErrorIs(t, tx.SetUserBalance(ctx, 99, decimal.Zero), ledger.ErrUserNotFound)

			u, err := tx.LockUser(ctx, 11)
			require.NoError(t, err)
			assert.True(t, u.Balance.Equal(decimal.NewFromInt(500)))
			assert.Equal(t, base, u.CreatedAt)

			admins, err := tx.ListAdmins(ctx)
			require.NoError(t, err)
			require.Len(t, admins, 1)
			assert.Equal(t, int64(10), admins[0].ChatID)

			users, err := tx.ListUsers(ctx)
			require.NoError(t, err)
			assert.Len(t, users, 2)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("services sorted by price", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.CreateService(ctx, &ledger.Service{Name: "Gold", Price: decimal.NewFromInt(300), DurationDays: 30, IsActive: true}))
			require.NoError(t, tx.CreateService(ctx, &ledger.Service{Name: "Basic", Price: decimal.NewFromInt(100), DurationDays: 30, IsActive: true}))
			require.NoError(t, tx.CreateService(ctx, &ledger.Service{Name: "Legacy", Price: decimal.NewFromInt(50), DurationDays: 30}))

			all, err := tx.ListServices(ctx, false)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "Legacy", all[0].Name)

			active, err := tx.ListServices(ctx, true)
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "Basic", active[0].Name)
			assert.Equal(t, "Gold", active[1].Name)
			assert.NotEqual(t, uuid.Nil, active[0].ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ledger sum follows completed transactions", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.CreateUser(ctx, &ledger.User{ChatID: 1}))
			dep := &ledger.Transaction{UserID: 1, Amount: decimal.NewFromInt(1000), Kind: ledger.TransactionDeposit, Status: ledger.StatusCompleted}
			require.NoError(t, tx.CreateTransaction(ctx, dep))
			require.NoError(t, tx.CreateTransaction(ctx, &ledger.Transaction{UserID: 1, Amount: decimal.NewFromInt(-300), Kind: ledger.TransactionPurchase, Status: ledger.StatusCompleted}))
			pending := &ledger.Transaction{UserID: 1, Amount: decimal.NewFromInt(50), Kind: ledger.TransactionDeposit, Status: ledger.StatusPending}
			require.NoError(t, tx.CreateTransaction(ctx, pending))

			sum, err := tx.SumCompleted(ctx, 1)
			require.NoError(t, err)
			assert.True(t, sum.Equal(decimal.NewFromInt(700)), sum.String())

			require.NoError(t, tx.SetTransactionStatus(ctx, pending.ID, ledger.StatusCompleted, base))
			sum, err = tx.SumCompleted(ctx, 1)
			require.NoError(t, err)
			assert.True(t, sum.Equal(decimal.NewFromInt(750)), sum.String())

			uid := int64(1)
			deposits, err := tx.ListTransactions(ctx, ledger.TransactionFilter{UserID: &uid, Kind: ledger.TransactionDeposit})
			require.NoError(t, err)
			assert.Len(t, deposits, 2)

			_, err = tx.GetTransaction(ctx, uuid.New())
			assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("discount codes are case insensitive", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.CreateDiscountCode(ctx, &ledger.DiscountCode{Code: "spring10", Kind: ledger.DiscountPercent, Magnitude: decimal.NewFromInt(10), IsActive: true}))
			assert.ErrorIs(t, tx.CreateDiscountCode(ctx, &ledger.DiscountCode{Code: "SPRING10"}), ledger.ErrDuplicateCode)

			require.NoError(t, tx.IncrementDiscountUsage(ctx, "Spring10"))
			d, err := tx.GetDiscountCode(ctx, " spring10 ")
			require.NoError(t, err)
			assert.Equal(t, "SPRING10", d.Code)
			assert.Equal(t, 1, d.UsedCount)

			require.NoError(t, tx.SetDiscountCodeActive(ctx, "spring10", false))
			d, err = tx.GetDiscountCode(ctx, "SPRING10")
			require.NoError(t, err)
			assert.False(t, d.IsActive)

			assert.ErrorIs(t, tx.IncrementDiscountUsage(ctx, "nope"), ledger.ErrCodeNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("purgeable uses deactivation time then expiry", func(t *testing.T) {
		t.Parallel()
		s := newStore()
		cutoff := base.AddDate(0, 0, -30)
		old := base.AddDate(0, 0, -31)
		recent := base.AddDate(0, 0, -5)

		var deactivatedOld, deactivatedRecent, expiredOld, active uuid.UUID
		err := s.Tx(ctx, func(tx ledger.Tx) error {
			mk := func(us ledger.UserService) uuid.UUID {
				require.NoError(t, tx.CreateUserService(ctx, &us))
				return us.ID
			}
			deactivatedOld = mk(ledger.UserService{UserID: 1, ExpireAt: base.AddDate(0, 0, 10), DeactivatedAt: &old})
			deactivatedRecent = mk(ledger.UserService{UserID: 1, ExpireAt: base.AddDate(0, 0, -40), DeactivatedAt: &recent})
			expiredOld = mk(ledger.UserService{UserID: 1, ExpireAt: old})
			active = mk(ledger.UserService{UserID: 1, ExpireAt: old, IsActive: true})

			purgeable, err := tx.ListPurgeable(ctx, cutoff)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(purgeable))
			for _, us := range purgeable {
				ids = append(ids, us.ID)
			}
			assert.ElementsMatch(t, []uuid.UUID{deactivatedOld, expiredOld}, ids)
			assert.NotContains(t, ids, deactivatedRecent)
			assert.NotContains(t, ids, active)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("deactivate skips inactive rows", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			a := &ledger.UserService{UserID: 1, IsActive: true, ExpireAt: base}
			b := &ledger.UserService{UserID: 1, ExpireAt: base}
			require.NoError(t, tx.CreateUserService(ctx, a))
			require.NoError(t, tx.CreateUserService(ctx, b))

			n, err := tx.DeactivateUserServices(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()}, base)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			got, err := tx.GetUserService(ctx, a.ID)
			require.NoError(t, err)
			assert.False(t, got.IsActive)
			require.NotNil(t, got.DeactivatedAt)
			assert.Equal(t, base, *got.DeactivatedAt)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("deactivate skips rows renewed since listing", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			renewed := &ledger.UserService{UserID: 1, IsActive: true, ExpireAt: base.AddDate(0, 0, 30), DataLimit: 100}
			exhausted := &ledger.UserService{UserID: 1, IsActive: true, ExpireAt: base.AddDate(0, 0, 30), DataLimit: 100, DataUsed: 100}
			unlimited := &ledger.UserService{UserID: 1, IsActive: true, ExpireAt: base.AddDate(0, 0, 30), DataUsed: 500}
			for _, us := range []*ledger.UserService{renewed, exhausted, unlimited} {
				require.NoError(t, tx.CreateUserService(ctx, us))
			}

			n, err := tx.DeactivateUserServices(ctx, []uuid.UUID{renewed.ID, exhausted.ID, unlimited.ID}, base)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			got, err := tx.GetUserService(ctx, renewed.ID)
			require.NoError(t, err)
			assert.True(t, got.IsActive)
			got, err = tx.GetUserService(ctx, exhausted.ID)
			require.NoError(t, err)
			assert.False(t, got.IsActive)
			got, err = tx.GetUserService(ctx, unlimited.ID)
			require.NoError(t, err)
			assert.True(t, got.IsActive)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("purge re-checks state", func(t *testing.T) {
		t.Parallel()
		s := newStore()
		cutoff := base.AddDate(0, 0, -30)
		old := base.AddDate(0, 0, -31)

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			stale := &ledger.UserService{UserID: 1, Handle: "h-stale", ExpireAt: old, DeactivatedAt: &old}
			reactivated := &ledger.UserService{UserID: 1, Handle: "h-new", ExpireAt: base.AddDate(0, 0, 30), IsActive: true}
			require.NoError(t, tx.CreateUserService(ctx, stale))
			require.NoError(t, tx.CreateUserService(ctx, reactivated))

			got, err := tx.PurgeUserService(ctx, stale.ID, cutoff)
			require.NoError(t, err)
			assert.Equal(t, "h-stale", got.Handle)
			_, err = tx.GetUserService(ctx, stale.ID)
			assert.ErrorIs(t, err, ledger.ErrUserServiceNotFound)

			_, err = tx.PurgeUserService(ctx, reactivated.ID, cutoff)
			assert.ErrorIs(t, err, ledger.ErrInvalidState)
			_, err = tx.GetUserService(ctx, reactivated.ID)
			assert.NoError(t, err)

			_, err = tx.PurgeUserService(ctx, stale.ID, cutoff)
			assert.ErrorIs(t, err, ledger.ErrUserServiceNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("logs purge and newest first", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			require.NoError(t, tx.CreateSystemLog(ctx, &ledger.SystemLog{Level: ledger.LevelInfo, Module: "a", Message: "old", CreatedAt: base.AddDate(0, 0, -100)}))
			require.NoError(t, tx.CreateSystemLog(ctx, &ledger.SystemLog{Level: ledger.LevelInfo, Module: "a", Message: "new"}))
			require.NoError(t, tx.CreateErrorLog(ctx, &ledger.ErrorLog{ErrorType: "x", Message: "old", CreatedAt: base.AddDate(0, 0, -91)}))

			n, err := tx.PurgeLogsBefore(ctx, base.AddDate(0, 0, -90))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			logs, err := tx.ListSystemLogs(ctx, 10)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, "new", logs[0].Message)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("reconciliation debts", func(t *testing.T) {
		t.Parallel()
		s := newStore()

		err := s.Tx(ctx, func(tx ledger.Tx) error {
			d := &ledger.ReconciliationDebt{UserID: 1, Handle: "h-1", Operation: "delete_account", Reason: "panel down"}
			require.NoError(t, tx.CreateReconciliationDebt(ctx, d))

			open, err := tx.ListOpenReconciliationDebts(ctx)
			require.NoError(t, err)
			require.Len(t, open, 1)

			require.NoError(t, tx.ResolveReconciliationDebt(ctx, d.ID, base))
			open, err = tx.ListOpenReconciliationDebts(ctx)
			require.NoError(t, err)
			assert.Empty(t, open)

			assert.ErrorIs(t, tx.ResolveReconciliationDebt(ctx, d.ID, base), ledger.ErrInvalidState)
			assert.ErrorIs(t, tx.ResolveReconciliationDebt(ctx, uuid.New(), base), ledger.ErrDebtNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestSalesReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()

	err := s.Tx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{ChatID: 1}))
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{ChatID: 2, CreatedAt: base.AddDate(-1, 0, 0)}))

		basic := &ledger.Service{Name: "Basic", Price: decimal.NewFromInt(100), DurationDays: 30}
		gold := &ledger.Service{Name: "Gold", Price: decimal.NewFromInt(300), DurationDays: 30}
		require.NoError(t, tx.CreateService(ctx, basic))
		require.NoError(t, tx.CreateService(ctx, gold))

		buy := func(svc *ledger.Service, status ledger.TransactionStatus) {
			require.NoError(t, tx.CreateTransaction(ctx, &ledger.Transaction{
				UserID:    1,
				Amount:    svc.Price.Neg(),
				Kind:      ledger.TransactionPurchase,
				Status:    status,
				ServiceID: &svc.ID,
			}))
		}
		buy(basic, ledger.StatusCompleted)
		buy(basic, ledger.StatusCompleted)
		buy(gold, ledger.StatusCompleted)
		buy(gold, ledger.StatusRejected)

		require.NoError(t, tx.CreateUserService(ctx, &ledger.UserService{UserID: 1, ServiceID: basic.ID, IsActive: true, ExpireAt: base}))
		return nil
	})
	require.NoError(t, err)

	var report *ledger.SalesReport
	err = s.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		report, err = tx.SalesReport(ctx, base.Add(-time.Hour), base.Add(time.Hour))
		return err
	})
	require.NoError(t, err)

	assert.True(t, report.TotalSales.Equal(decimal.NewFromInt(500)), report.TotalSales.String())
	assert.Equal(t, 3, report.SalesCount)
	assert.Equal(t, 1, report.NewUsers)
	assert.Equal(t, 1, report.ActiveServices)
	require.Len(t, report.PopularServices, 2)
	assert.Equal(t, "Basic", report.PopularServices[0].Name)
	assert.Equal(t, 2, report.PopularServices[0].Count)
	assert.True(t, report.PopularServices[1].Revenue.Equal(decimal.NewFromInt(300)))
}
