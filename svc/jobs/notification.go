package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/notify"
)

// NotificationReport summarizes one notification sweep.
type NotificationReport struct {
	Reminders   int
	LowQuota    int
	Failed      int
	Deactivated int
}

// NotificationSweep warns users about expiring subscriptions and low
// remaining traffic, then flags expired and exhausted subscriptions as
// inactive.
type NotificationSweep struct {
	store     ledger.Store
	notifier  notify.Notifier
	formatter *notify.Formatter
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// NewNotificationSweep creates the sweep. Panics if store or notifier is nil.
func NewNotificationSweep(store ledger.Store, n notify.Notifier, cfg Config, opts ...Option) *NotificationSweep {
	if store == nil || n == nil {
		panic("jobs: notification sweep requires a store and a notifier")
	}
	o := collectOptions(opts)
	return &NotificationSweep{
		store:     store,
		notifier:  n,
		formatter: o.formatter,
		cfg:       cfg,
		now:       o.now,
		logger:    o.logger.With(logger.Job(NotificationJob)),
	}
}

func (s *NotificationSweep) Name() string { return NotificationJob }

func (s *NotificationSweep) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep runs one pass. Delivery failures are counted and never stop the
// pass; only store failures are returned.
func (s *NotificationSweep) Sweep(ctx context.Context) (*NotificationReport, error) {
	now := s.now()

	var (
		active []ledger.UserService
		names  = make(map[uuid.UUID]string)
	)
	err := s.store.Tx(ctx, func(tx ledger.Tx) error {
		var err error
		if active, err = tx.ListActiveUserServices(ctx); err != nil {
			return err
		}
		services, err := tx.ListServices(ctx, false)
		if err != nil {
			return err
		}
		for _, svc := range services {
			names[svc.ID] = svc.Name
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrSweepFailed, err)
	}

	report := &NotificationReport{}
	var stale []uuid.UUID
	for _, us := range active {
		if !us.ExpireAt.After(now) || us.Exhausted() {
			stale = append(stale, us.ID)
			continue
		}

		name := names[us.ServiceID]
		if !us.ExpireAt.After(now.Add(s.cfg.ReminderWindow)) {
			text := s.formatter.ExpiryReminder(name, us.RemainingDays(now))
			if s.deliver(ctx, "expiry", us, text) {
				report.Reminders++
			} else {
				report.Failed++
			}
		}
		if s.lowQuota(us) {
			text := s.formatter.LowQuota(name, us.RemainingBytes())
			if s.deliver(ctx, "low_quota", us, text) {
				report.LowQuota++
			} else {
				report.Failed++
			}
		}
	}

	if len(stale) > 0 {
		err := s.store.Tx(ctx, func(tx ledger.Tx) error {
			n, err := tx.DeactivateUserServices(ctx, stale, now)
			report.Deactivated = n
			return err
		})
		if err != nil {
			return report, errors.Join(ErrSweepFailed, err)
		}
		servicesDeactivated.Add(float64(report.Deactivated))
	}

	s.logger.InfoContext(ctx, "notification sweep finished",
		slog.Int("reminders", report.Reminders),
		slog.Int("low_quota", report.LowQuota),
		slog.Int("failed", report.Failed),
		slog.Int("deactivated", report.Deactivated),
	)
	return report, nil
}

// lowQuota reports whether us crossed the absolute floor or, when enabled,
// the remaining fraction. Unlimited subscriptions never qualify.
func (s *NotificationSweep) lowQuota(us ledger.UserService) bool {
	if us.DataLimit <= 0 {
		return false
	}
	remaining := us.RemainingBytes()
	if s.cfg.LowQuotaFloor > 0 && remaining <= s.cfg.LowQuotaFloor {
		return true
	}
	return s.cfg.LowQuotaFraction > 0 &&
		float64(remaining)/float64(us.DataLimit) <= s.cfg.LowQuotaFraction
}

func (s *NotificationSweep) deliver(ctx context.Context, kind string, us ledger.UserService, text string) bool {
	if err := s.notifier.SendMessage(ctx, us.UserID, text); err != nil {
		notificationsSent.WithLabelValues(kind, "failed").Inc()
		s.logger.WarnContext(ctx, "notification not delivered",
			slog.String("kind", kind),
			logger.ChatID(us.UserID),
			logger.UserServiceID(us.ID),
			logger.Error(err),
		)
		return false
	}
	notificationsSent.WithLabelValues(kind, "sent").Inc()
	return true
}
