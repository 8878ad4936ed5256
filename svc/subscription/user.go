package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
)

// ServiceView is an active user service as shown to its owner.
type ServiceView struct {
	ID             uuid.UUID `json:"id"`
	ServiceID      uuid.UUID `json:"service_id"`
	Name           string    `json:"name"`
	Handle         string    `json:"handle"`
	ExpireAt       time.Time `json:"expire_at"`
	RemainingDays  int       `json:"remaining_days"`
	RemainingBytes int64     `json:"remaining_bytes"`
	DataLimit      int64     `json:"data_limit"`
	DataUsed       int64     `json:"data_used"`
}

// UserSnapshot is a consistent view of a user's wallet and services.
type UserSnapshot struct {
	ChatID         int64           `json:"chat_id"`
	Username       string          `json:"username"`
	Balance        decimal.Decimal `json:"balance"`
	IsAdmin        bool            `json:"is_admin"`
	ActiveServices []ServiceView   `json:"active_services"`
}

// EnsureUser returns the user with chatID, creating it on first contact.
func (e *Engine) EnsureUser(ctx context.Context, chatID int64, username string) (*ledger.User, error) {
	if chatID == 0 {
		return nil, ErrInvalidChatID
	}

	var user *ledger.User
	create := func(tx ledger.Tx) error {
		u, err := tx.GetUser(ctx, chatID)
		if err == nil {
			user = u
			return nil
		}
		if !errors.Is(err, ledger.ErrUserNotFound) {
			return err
		}
		_, admin := e.admins[chatID]
		user = &ledger.User{
			ChatID:    chatID,
			Username:  username,
			Balance:   decimal.Zero,
			IsAdmin:   admin,
			CreatedAt: e.now(),
		}
		return tx.CreateUser(ctx, user)
	}

	err := e.store.Tx(ctx, create)
	if errors.Is(err, ledger.ErrUserExists) {
		// lost a race with a concurrent first contact
		err = e.store.Tx(ctx, create)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserSnapshot returns the balance and the active services of a user.
func (e *Engine) GetUserSnapshot(ctx context.Context, userID int64) (*UserSnapshot, error) {
	var snap *UserSnapshot
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		services, err := tx.ListUserServices(ctx, userID, true)
		if err != nil {
			return err
		}

		now := e.now()
		snap = &UserSnapshot{
			ChatID:         user.ChatID,
			Username:       user.Username,
			Balance:        user.Balance,
			IsAdmin:        user.IsAdmin,
			ActiveServices: make([]ServiceView, 0, len(services)),
		}
		for _, us := range services {
			var name string
			if svc, err := tx.GetService(ctx, us.ServiceID); err == nil {
				name = svc.Name
			} else if !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
			snap.ActiveServices = append(snap.ActiveServices, ServiceView{
				ID:             us.ID,
				ServiceID:      us.ServiceID,
				Name:           name,
				Handle:         us.Handle,
				ExpireAt:       us.ExpireAt,
				RemainingDays:  us.RemainingDays(now),
				RemainingBytes: us.RemainingBytes(),
				DataLimit:      us.DataLimit,
				DataUsed:       us.DataUsed,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// RecordUsage stores externally reported traffic usage. It never changes
// the active flag; exhaustion is acted on by the next notification sweep.
func (e *Engine) RecordUsage(ctx context.Context, userServiceID uuid.UUID, usedBytes int64) error {
	if usedBytes < 0 {
		return ErrInvalidUsage
	}
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		return tx.SetUserServiceUsage(ctx, userServiceID, usedBytes)
	})
	if err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "usage recorded", logger.UserServiceID(userServiceID))
	return nil
}

// SalesReport summarizes completed purchases in [from, to).
func (e *Engine) SalesReport(ctx context.Context, from, to time.Time) (*ledger.SalesReport, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	var report *ledger.SalesReport
	err := e.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		report, err = tx.SalesReport(ctx, from, to)
		return err
	})
	return report, err
}
