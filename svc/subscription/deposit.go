package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
)

// RecordDeposit stores a pending deposit. The balance is untouched until
// an administrator approves it.
func (e *Engine) RecordDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, ledger.ErrInvalidAmount
	}

	tr := &ledger.Transaction{
		UserID:    userID,
		Amount:    amount,
		Kind:      ledger.TransactionDeposit,
		Status:    ledger.StatusPending,
		CreatedAt: e.now(),
	}
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		return tx.CreateTransaction(ctx, tr)
	})
	if err != nil {
		return uuid.Nil, err
	}

	e.logger.InfoContext(ctx, "deposit recorded",
		logger.ChatID(userID),
		logger.TransactionID(tr.ID),
		logger.Amount(amount))
	return tr.ID, nil
}

// ApproveDeposit completes a pending deposit and credits the balance in the
// same unit of work. Any other state fails with ErrInvalidState, so a
// repeated approval never credits twice.
func (e *Engine) ApproveDeposit(ctx context.Context, txID uuid.UUID) (*ledger.Transaction, error) {
	var (
		tr      *ledger.Transaction
		balance decimal.Decimal
	)
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		if tr, err = lockPendingDeposit(ctx, tx, txID); err != nil {
			return err
		}
		user, err := tx.LockUser(ctx, tr.UserID)
		if err != nil {
			return err
		}

		now := e.now()
		balance = user.Balance.Add(tr.Amount)
		if err := tx.SetUserBalance(ctx, user.ChatID, balance); err != nil {
			return err
		}
		if err := tx.SetTransactionStatus(ctx, tr.ID, ledger.StatusCompleted, now); err != nil {
			return err
		}
		tr.Status = ledger.StatusCompleted
		tr.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "deposit approved",
		logger.ChatID(tr.UserID),
		logger.TransactionID(tr.ID),
		logger.Amount(tr.Amount))
	e.notifyUser(ctx, tr.UserID, e.formatter.DepositApproved(tr.Amount, balance))
	return tr, nil
}

// RejectDeposit marks a pending deposit rejected without touching the
// balance. Any other state fails with ErrInvalidState.
func (e *Engine) RejectDeposit(ctx context.Context, txID uuid.UUID) (*ledger.Transaction, error) {
	var tr *ledger.Transaction
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		if tr, err = lockPendingDeposit(ctx, tx, txID); err != nil {
			return err
		}
		now := e.now()
		if err := tx.SetTransactionStatus(ctx, tr.ID, ledger.StatusRejected, now); err != nil {
			return err
		}
		tr.Status = ledger.StatusRejected
		tr.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "deposit rejected",
		logger.ChatID(tr.UserID),
		logger.TransactionID(tr.ID))
	e.notifyUser(ctx, tr.UserID, e.formatter.DepositRejected(tr.Amount))
	return tr, nil
}

func lockPendingDeposit(ctx context.Context, tx ledger.Tx, id uuid.UUID) (*ledger.Transaction, error) {
	tr, err := tx.LockTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tr.Kind != ledger.TransactionDeposit || tr.Status != ledger.StatusPending {
		return nil, ledger.ErrInvalidState
	}
	return tr, nil
}

// PendingDeposits lists deposits awaiting a decision, oldest first.
func (e *Engine) PendingDeposits(ctx context.Context) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, ledger.TransactionFilter{
			Kind:   ledger.TransactionDeposit,
			Status: ledger.StatusPending,
		})
		return err
	})
	return out, err
}

func (e *Engine) notifyUser(ctx context.Context, chatID int64, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendMessage(ctx, chatID, text); err != nil {
		e.logger.WarnContext(ctx, "failed to notify user", logger.ChatID(chatID), logger.Error(err))
	}
}
