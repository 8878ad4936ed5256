package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
)

const gib = int64(1) << 30

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type message struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	fail map[int64]bool
	sent []message
}

func (n *recordingNotifier) SendMessage(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[chatID] {
		return errors.New("chat unreachable")
	}
	n.sent = append(n.sent, message{chatID: chatID, text: text})
	return nil
}

func (n *recordingNotifier) messages() []message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]message(nil), n.sent...)
}

func newStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	return ledger.NewMemoryStore(ledger.WithMemoryClock(clock))
}

func inTx(t *testing.T, store ledger.Store, fn func(tx ledger.Tx) error) {
	t.Helper()
	require.NoError(t, store.Tx(context.Background(), fn))
}

func addUser(t *testing.T, store ledger.Store, chatID int64, admin bool) {
	t.Helper()
	inTx(t, store, func(tx ledger.Tx) error {
		return tx.CreateUser(context.Background(), &ledger.User{
			ChatID:  chatID,
			Balance: decimal.NewFromInt(100000),
			IsAdmin: admin,
		})
	})
}

func addService(t *testing.T, store ledger.Store, name string) uuid.UUID {
	t.Helper()
	svc := &ledger.Service{
		ID:           uuid.New(),
		Name:         name,
		Price:        decimal.NewFromInt(100000),
		DurationDays: 30,
		DataLimit:    50 * gib,
		IsActive:     true,
	}
	inTx(t, store, func(tx ledger.Tx) error { return tx.CreateService(context.Background(), svc) })
	return svc.ID
}

func addUserService(t *testing.T, store ledger.Store, us ledger.UserService) uuid.UUID {
	t.Helper()
	inTx(t, store, func(tx ledger.Tx) error { return tx.CreateUserService(context.Background(), &us) })
	return us.ID
}

func getUserService(t *testing.T, store ledger.Store, id uuid.UUID) (*ledger.UserService, error) {
	t.Helper()
	var us *ledger.UserService
	err := store.Tx(context.Background(), func(tx ledger.Tx) error {
		var err error
		us, err = tx.GetUserService(context.Background(), id)
		return err
	})
	return us, err
}

func balance(t *testing.T, store ledger.Store, chatID int64) decimal.Decimal {
	t.Helper()
	var u *ledger.User
	inTx(t, store, func(tx ledger.Tx) error {
		var err error
		u, err = tx.GetUser(context.Background(), chatID)
		return err
	})
	return u.Balance
}

func systemLogs(t *testing.T, store ledger.Store) []ledger.SystemLog {
	t.Helper()
	var logs []ledger.SystemLog
	inTx(t, store, func(tx ledger.Tx) error {
		var err error
		logs, err = tx.ListSystemLogs(context.Background(), 0)
		return err
	})
	return logs
}

var quiet = logger.Discard()
