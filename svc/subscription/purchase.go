package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/provisioning"
)

// PurchaseResult describes a committed purchase or renewal.
type PurchaseResult struct {
	UserService ledger.UserService `json:"user_service"`
	Transaction ledger.Transaction `json:"transaction"`
	Service     ledger.Service     `json:"service"`
	Price       decimal.Decimal    `json:"price"`
	Balance     decimal.Decimal    `json:"balance"`
}

// PurchaseOption configures a single Purchase or ExtendOrRenew call.
type PurchaseOption func(*purchaseOptions)

type purchaseOptions struct {
	code string
}

// WithDiscountCode applies a discount code. Its usage counter increases
// only when the purchase commits.
func WithDiscountCode(code string) PurchaseOption {
	return func(o *purchaseOptions) {
		o.code = ledger.NormalizeCode(code)
	}
}

func collectPurchaseOptions(opts []PurchaseOption) purchaseOptions {
	var o purchaseOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Purchase buys serviceID for userID. The price is checked against the
// locked balance, the account is provisioned, and the debit transaction and
// user service are written in one unit of work. If the commit fails after
// provisioning succeeded the account is torn down; a failed teardown is
// recorded as reconciliation debt and the caller gets ErrStoreUnavailable.
func (e *Engine) Purchase(ctx context.Context, userID int64, serviceID uuid.UUID, opts ...PurchaseOption) (*PurchaseResult, error) {
	po := collectPurchaseOptions(opts)

	var (
		res    *PurchaseResult
		handle provisioning.Handle
	)
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		handle = ""

		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		svc, err := activeService(ctx, tx, serviceID)
		if err != nil {
			return err
		}
		price, err := e.priceFor(ctx, tx, svc.Price, po.code)
		if err != nil {
			return err
		}
		if user.Balance.LessThan(price) {
			return ledger.ErrInsufficientFunds
		}

		now := e.now()
		expire := now.Add(svc.Duration())
		if handle, err = e.provision(ctx, userID, svc, expire); err != nil {
			return err
		}

		us := &ledger.UserService{
			UserID:    userID,
			ServiceID: svc.ID,
			Handle:    string(handle),
			ExpireAt:  expire,
			DataLimit: svc.DataLimit,
			IsActive:  true,
			CreatedAt: now,
		}
		if err := tx.CreateUserService(ctx, us); err != nil {
			return err
		}

		res, err = e.debit(ctx, tx, user, svc, us, price, po.code, now)
		return err
	})
	if err != nil {
		return nil, e.failPurchase(ctx, "purchase", userID, handle, err)
	}

	e.logger.InfoContext(ctx, "service purchased",
		logger.ChatID(userID),
		logger.ServiceID(serviceID),
		logger.UserServiceID(res.UserService.ID),
		logger.Amount(res.Price),
		logger.Handle(res.UserService.Handle))
	return res, nil
}

// ExtendOrRenew buys another period of an existing user service. Expiry
// moves to max(now, current expiry) plus the template duration, quota and
// usage are reset and the service is reactivated. A fresh panel account is
// provisioned for the period; the previous one is torn down after commit.
func (e *Engine) ExtendOrRenew(ctx context.Context, userID int64, userServiceID uuid.UUID, opts ...PurchaseOption) (*PurchaseResult, error) {
	po := collectPurchaseOptions(opts)

	var (
		res       *PurchaseResult
		handle    provisioning.Handle
		oldHandle string
	)
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		handle, oldHandle = "", ""

		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		us, err := tx.GetUserService(ctx, userServiceID)
		if err != nil {
			return err
		}
		if us.UserID != userID {
			return ledger.ErrUserServiceNotFound
		}
		svc, err := activeService(ctx, tx, us.ServiceID)
		if err != nil {
			return err
		}
		price, err := e.priceFor(ctx, tx, svc.Price, po.code)
		if err != nil {
			return err
		}
		if user.Balance.LessThan(price) {
			return ledger.ErrInsufficientFunds
		}

		now := e.now()
		start := now
		if us.ExpireAt.After(now) {
			start = us.ExpireAt
		}
		expire := start.Add(svc.Duration())
		if handle, err = e.provision(ctx, userID, svc, expire); err != nil {
			return err
		}

		oldHandle = us.Handle
		us.Handle = string(handle)
		us.ExpireAt = expire
		us.DataLimit = svc.DataLimit
		us.DataUsed = 0
		us.IsActive = true
		us.DeactivatedAt = nil
		if err := tx.UpdateUserService(ctx, us); err != nil {
			return err
		}

		res, err = e.debit(ctx, tx, user, svc, us, price, po.code, now)
		return err
	})
	if err != nil {
		return nil, e.failPurchase(ctx, "renew", userID, handle, err)
	}

	if oldHandle != "" && oldHandle != res.UserService.Handle {
		e.teardown(ctx, "renew_teardown", userID, provisioning.Handle(oldHandle), nil)
	}

	e.logger.InfoContext(ctx, "service renewed",
		logger.ChatID(userID),
		logger.UserServiceID(userServiceID),
		logger.Amount(res.Price),
		slog.Time("expire_at", res.UserService.ExpireAt))
	return res, nil
}

func activeService(ctx context.Context, tx ledger.Tx, id uuid.UUID) (*ledger.Service, error) {
	svc, err := tx.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, ledger.ErrServiceNotFound
	}
	return svc, nil
}

func (e *Engine) priceFor(ctx context.Context, tx ledger.Tx, base decimal.Decimal, code string) (decimal.Decimal, error) {
	if code == "" {
		return base, nil
	}
	d, err := tx.GetDiscountCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsActive {
		return decimal.Zero, ledger.ErrCodeInactive
	}
	return discounted(*d, base), nil
}

// provision creates the panel account under the engine's timeout.
func (e *Engine) provision(ctx context.Context, userID int64, svc *ledger.Service, expire time.Time) (provisioning.Handle, error) {
	pctx, cancel := context.WithTimeout(ctx, e.provisionTimeout)
	defer cancel()

	h, err := e.prov.CreateAccount(pctx, provisioning.Profile{
		Username:  e.newHandle(userID),
		ExpireAt:  expire,
		DataLimit: svc.DataLimit,
		InboundID: svc.InboundID,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "provisioning failed",
			logger.ChatID(userID),
			logger.ServiceID(svc.ID),
			logger.Error(err))
		return "", errors.Join(ledger.ErrProvisioningFailed, err)
	}
	return h, nil
}

// debit appends the purchase transaction, lowers the balance and consumes
// the discount code.
func (e *Engine) debit(ctx context.Context, tx ledger.Tx, user *ledger.User, svc *ledger.Service, us *ledger.UserService, price decimal.Decimal, code string, now time.Time) (*PurchaseResult, error) {
	balance := user.Balance.Sub(price)
	if balance.IsNegative() {
		return nil, ledger.ErrInsufficientFunds
	}

	tr := &ledger.Transaction{
		UserID:        user.ChatID,
		Amount:        price.Neg(),
		Kind:          ledger.TransactionPurchase,
		Status:        ledger.StatusCompleted,
		ServiceID:     &svc.ID,
		UserServiceID: &us.ID,
		DiscountCode:  code,
		Note:          svc.Name,
		CreatedAt:     now,
	}
	if err := tx.CreateTransaction(ctx, tr); err != nil {
		return nil, err
	}
	if err := tx.SetUserBalance(ctx, user.ChatID, balance); err != nil {
		return nil, err
	}
	if code != "" {
		if err := tx.IncrementDiscountUsage(ctx, code); err != nil {
			return nil, err
		}
	}

	return &PurchaseResult{
		UserService: *us,
		Transaction: *tr,
		Service:     *svc,
		Price:       price,
		Balance:     balance,
	}, nil
}

// failPurchase handles a failed purchase unit of work. Without a
// provisioned account the error is returned as is. Otherwise the account
// is torn down and the caller sees ErrStoreUnavailable. Store and
// provisioning failures are written to the error log.
func (e *Engine) failPurchase(ctx context.Context, op string, userID int64, h provisioning.Handle, err error) error {
	if h == "" {
		if errors.Is(err, ledger.ErrStoreUnavailable) || errors.Is(err, ledger.ErrProvisioningFailed) {
			e.logger.ErrorContext(ctx, op+" failed", logger.ChatID(userID), logger.Error(err))
			e.recordError(ctx, op, userID, "", err)
		}
		return err
	}

	e.logger.ErrorContext(ctx, op+" commit failed after provisioning",
		logger.ChatID(userID),
		logger.Handle(string(h)),
		logger.Error(err))
	e.teardown(ctx, op+"_rollback", userID, h, err)
	e.recordError(ctx, op, userID, h, errors.Join(ledger.ErrStoreUnavailable, err))

	if errors.Is(err, ledger.ErrStoreUnavailable) {
		return err
	}
	return errors.Join(ledger.ErrStoreUnavailable, err)
}

// teardown deletes a panel account outside any unit of work. A failure is
// persisted as reconciliation debt.
func (e *Engine) teardown(ctx context.Context, op string, userID int64, h provisioning.Handle, cause error) {
	ctx = context.WithoutCancel(ctx)
	dctx, cancel := context.WithTimeout(ctx, e.provisionTimeout)
	defer cancel()

	err := e.prov.DeleteAccount(dctx, h)
	if err == nil {
		e.logger.InfoContext(ctx, "panel account removed", slog.String("operation", op), logger.ChatID(userID), logger.Handle(string(h)))
		return
	}
	e.recordDebt(ctx, op, userID, h, errors.Join(cause, err))
}

func (e *Engine) recordDebt(ctx context.Context, op string, userID int64, h provisioning.Handle, reason error) {
	debt := &ledger.ReconciliationDebt{
		UserID:    userID,
		Handle:    string(h),
		Operation: op,
		Reason:    reason.Error(),
		CreatedAt: e.now(),
	}
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.CreateReconciliationDebt(ctx, debt)
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to record reconciliation debt",
			slog.String("operation", op),
			logger.ChatID(userID),
			logger.Handle(string(h)),
			logger.Errors(reason, err))
		return
	}
	e.logger.ErrorContext(ctx, "reconciliation debt recorded",
		slog.String("operation", op),
		logger.ChatID(userID),
		logger.Handle(string(h)),
		logger.Error(errors.Join(ledger.ErrReconciliationDebt, reason)))
}
