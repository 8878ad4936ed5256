package subscription

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/notify"
	"github.com/dmitrymomot/subledger/svc/provisioning"
)

// DefaultProvisionTimeout bounds every provisioning call made by the engine.
const DefaultProvisionTimeout = 30 * time.Second

// HandleGenerator returns the panel username for a new account of a user.
type HandleGenerator func(userID int64) string

// Engine runs the wallet, purchase and deposit operations. Every operation
// is one ledger unit of work; provisioning happens inside it so that a
// failed panel call leaves nothing behind.
type Engine struct {
	store     ledger.Store
	prov      provisioning.Provisioner
	notifier  notify.Notifier
	formatter *notify.Formatter
	admins    map[int64]struct{}

	logger           *slog.Logger
	provisionTimeout time.Duration
	now              func() time.Time
	newHandle        HandleGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProvisionTimeout bounds each provisioning call.
func WithProvisionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.provisionTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHandleGenerator replaces the default panel username scheme.
func WithHandleGenerator(g HandleGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.newHandle = g
		}
	}
}

// WithNotifier enables best-effort user notifications for deposit decisions.
// A nil formatter uses English.
func WithNotifier(n notify.Notifier, f *notify.Formatter) Option {
	return func(e *Engine) {
		e.notifier = n
		if f != nil {
			e.formatter = f
		}
	}
}

// WithAdmins marks the given chat ids as administrators when their user
// record is created by EnsureUser.
func WithAdmins(chatIDs ...int64) Option {
	return func(e *Engine) {
		for _, id := range chatIDs {
			e.admins[id] = struct{}{}
		}
	}
}

// NewEngine creates an engine. Panics if store or prov is nil.
func NewEngine(store ledger.Store, prov provisioning.Provisioner, opts ...Option) *Engine {
	if store == nil {
		panic("subscription: ledger store is required")
	}
	if prov == nil {
		panic("subscription: provisioner is required")
	}

	e := &Engine{
		store:            store,
		prov:             prov,
		formatter:        notify.NewFormatter("en", ""),
		admins:           make(map[int64]struct{}),
		logger:           slog.Default(),
		provisionTimeout: DefaultProvisionTimeout,
		now:              time.Now,
		newHandle:        defaultHandle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("subscription"))
	return e
}

func defaultHandle(userID int64) string {
	return fmt.Sprintf("u%d_%s", userID, uuid.NewString()[:8])
}
