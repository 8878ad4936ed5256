package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/notify"
	"github.com/dmitrymomot/subledger/svc/provisioning"
)

// DefaultLogLimit caps RecentLogs when no limit is given.
const DefaultLogLimit = 50

// BroadcastReport counts the deliveries of one broadcast.
type BroadcastReport struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// Logs holds the newest system and error log entries.
type Logs struct {
	System []ledger.SystemLog `json:"system"`
	Errors []ledger.ErrorLog  `json:"errors"`
}

// ListUsers returns every registered user.
func (e *Engine) ListUsers(ctx context.Context) ([]ledger.User, error) {
	var users []ledger.User
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	return users, err
}

// Broadcast sends text to every registered user. Delivery failures are
// counted and never stop the remaining deliveries.
func (e *Engine) Broadcast(ctx context.Context, text string) (*BroadcastReport, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if e.notifier == nil {
		return nil, ErrNotifierUnavailable
	}

	users, err := e.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	chatIDs := make([]int64, 0, len(users))
	for _, u := range users {
		chatIDs = append(chatIDs, u.ChatID)
	}

	sent, sendErr := notify.Broadcast(ctx, e.notifier, chatIDs, text)
	report := &BroadcastReport{Recipients: len(chatIDs), Sent: sent, Failed: len(chatIDs) - sent}
	if sendErr != nil {
		e.logger.WarnContext(ctx, "broadcast partially delivered",
			slog.Int("failed", report.Failed),
			logger.Error(sendErr))
	}

	entry := &ledger.SystemLog{
		Level:     ledger.LevelInfo,
		Module:    "broadcast",
		Message:   "broadcast sent",
		Details:   toJSON(report),
		CreatedAt: e.now(),
	}
	if err := e.store.Tx(ctx, func(tx ledger.Tx) error { return tx.CreateSystemLog(ctx, entry) }); err != nil {
		e.logger.WarnContext(ctx, "failed to record broadcast", logger.Error(err))
	}

	e.logger.InfoContext(ctx, "broadcast finished",
		slog.Int("recipients", report.Recipients),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed))
	return report, nil
}

// ListDiscountCodes returns every discount code, active or not.
func (e *Engine) ListDiscountCodes(ctx context.Context) ([]ledger.DiscountCode, error) {
	var codes []ledger.DiscountCode
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		codes, err = tx.ListDiscountCodes(ctx)
		return err
	})
	return codes, err
}

// OpenReconciliationDebts lists panel accounts that could not be torn down
// and still wait for an operator.
func (e *Engine) OpenReconciliationDebts(ctx context.Context) ([]ledger.ReconciliationDebt, error) {
	var debts []ledger.ReconciliationDebt
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		debts, err = tx.ListOpenReconciliationDebts(ctx)
		return err
	})
	return debts, err
}

// ResolveReconciliationDebt marks a debt settled after the operator removed
// the panel account by hand.
func (e *Engine) ResolveReconciliationDebt(ctx context.Context, id uuid.UUID) error {
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.ResolveReconciliationDebt(ctx, id, e.now())
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "reconciliation debt resolved", slog.String("debt_id", id.String()))
	return nil
}

// RecentLogs returns up to limit of the newest system and error logs.
func (e *Engine) RecentLogs(ctx context.Context, limit int) (*Logs, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	out := &Logs{}
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		if out.System, err = tx.ListSystemLogs(ctx, limit); err != nil {
			return err
		}
		out.Errors, err = tx.ListErrorLogs(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// recordError persists a failed operation in the error log. It runs after
// the failed unit of work and never changes the caller's error.
func (e *Engine) recordError(ctx context.Context, op string, userID int64, h provisioning.Handle, cause error) {
	kind := "internal"
	switch {
	case errors.Is(cause, ledger.ErrProvisioningFailed):
		kind = "provisioning_failed"
	case errors.Is(cause, ledger.ErrStoreUnavailable):
		kind = "store_unavailable"
	}

	details := map[string]string{"operation": op}
	if h != "" {
		details["handle"] = string(h)
	}
	entry := &ledger.ErrorLog{
		ErrorType: kind,
		Message:   cause.Error(),
		Details:   toJSON(details),
		UserID:    &userID,
		CreatedAt: e.now(),
	}

	ctx = context.WithoutCancel(ctx)
	if err := e.store.Tx(ctx, func(tx ledger.Tx) error { return tx.CreateErrorLog(ctx, entry) }); err != nil {
		e.logger.WarnContext(ctx, "failed to record error log",
			slog.String("operation", op),
			logger.ChatID(userID),
			logger.Errors(cause, err))
	}
}

func toJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
