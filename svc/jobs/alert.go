package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/subledger/pkg/email"
	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/notify"
)

// Alerter delivers operator alerts to admin chats and alert mailboxes.
// Admin chats are the configured ids plus every user flagged as admin in
// the ledger.
type Alerter struct {
	store      ledger.Store
	notifier   notify.Notifier
	chats      []int64
	mailer     email.EmailSender
	recipients []string
	logger     *slog.Logger
}

// AlerterOption configures an Alerter.
type AlerterOption func(*Alerter)

// WithAdminChats adds fixed admin chat ids.
func WithAdminChats(ids ...int64) AlerterOption {
	return func(a *Alerter) {
		a.chats = append(a.chats, ids...)
	}
}

// WithMailer sends every alert to recipients as well.
func WithMailer(m email.EmailSender, recipients ...string) AlerterOption {
	return func(a *Alerter) {
		a.mailer = m
		a.recipients = append(a.recipients, recipients...)
	}
}

// WithAlertLogger sets the alerter logger.
func WithAlertLogger(l *slog.Logger) AlerterOption {
	return func(a *Alerter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAlerter creates an alerter. A nil notifier disables chat delivery.
func NewAlerter(store ledger.Store, n notify.Notifier, opts ...AlerterOption) *Alerter {
	a := &Alerter{store: store, notifier: n, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("alerts"))
	return a
}

// Alert sends text to all admin chats and mails it under subject. It fails
// only when no channel accepted the alert.
func (a *Alerter) Alert(ctx context.Context, subject, text string) error {
	var (
		delivered int
		errs      []error
	)

	if a.notifier != nil {
		chats, err := a.adminChats(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		sent, err := notify.Broadcast(ctx, a.notifier, chats, text)
		delivered += sent
		if err != nil {
			errs = append(errs, err)
		}
	}

	if a.mailer != nil {
		for _, to := range a.recipients {
			if err := a.mailer.SendEmail(ctx, email.TextMessage(to, subject, text, "operator-alert")); err != nil {
				errs = append(errs, fmt.Errorf("mail %s: %w", to, err))
				continue
			}
			delivered++
		}
	}

	if len(errs) > 0 {
		a.logger.WarnContext(ctx, "operator alert partially delivered",
			slog.Int("delivered", delivered),
			logger.Errors(errs...),
		)
	}
	if delivered == 0 && len(errs) > 0 {
		return errors.Join(ErrAlertFailed, errors.Join(errs...))
	}
	return nil
}

func (a *Alerter) adminChats(ctx context.Context) ([]int64, error) {
	chats := slices.Clone(a.chats)
	if a.store == nil {
		return chats, nil
	}

	var admins []ledger.User
	err := a.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		admins, err = tx.ListAdmins(ctx)
		return err
	})
	if err != nil {
		return chats, err
	}
	for _, u := range admins {
		if !slices.Contains(chats, u.ChatID) {
			chats = append(chats, u.ChatID)
		}
	}
	return chats, nil
}
