package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/subledger/pkg/httpserver"
	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/pkg/ratelimit"
	"github.com/dmitrymomot/subledger/svc/backup"
	"github.com/dmitrymomot/subledger/svc/catalog"
	"github.com/dmitrymomot/subledger/svc/provisioning"
	"github.com/dmitrymomot/subledger/svc/subscription"
)

// API serves the HTTP surface.
type API struct {
	engine   *subscription.Engine
	catalog  *catalog.Catalog
	exporter *backup.Exporter
	prov     provisioning.Provisioner
	guard    *ratelimit.Guard
	checks   []httpserver.Check
	metrics  http.Handler
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithGuard enables rate limiting and the admin lockout.
func WithGuard(g *ratelimit.Guard) Option {
	return func(a *API) { a.guard = g }
}

// WithExporter mounts the backup routes.
func WithExporter(e *backup.Exporter) Option {
	return func(a *API) { a.exporter = e }
}

// WithProvisioner mounts the inbound routes.
func WithProvisioner(p provisioning.Provisioner) Option {
	return func(a *API) { a.prov = p }
}

// WithReadinessChecks sets the dependencies probed by /readyz.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(a *API) { a.checks = append(a.checks, checks...) }
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		if h != nil {
			a.metrics = h
		}
	}
}

// WithClock replaces time.Now for report defaults.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the API logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates the API. Panics if engine or cat is nil.
func New(engine *subscription.Engine, cat *catalog.Catalog, cfg Config, opts ...Option) *API {
	if engine == nil || cat == nil {
		panic("api: engine and catalog are required")
	}
	a := &API{
		engine:  engine,
		catalog: cat,
		metrics: promhttp.Handler(),
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("api"))
	return a
}

// Handle returns the router.
func (a *API) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, clientIP, middleware.Recoverer, a.logRequests)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(a.logger, a.cfg.ReadyTimeout, a.checks...))
	r.Method(http.MethodGet, "/metrics", a.metrics)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(limitBody(a.cfg.MaxBodyBytes))
		if a.guard != nil {
			v1.Use(ratelimit.Middleware(a.guard.Limiter(), byClientIP))
		}

		v1.Get("/services", handle(a, a.listServices))
		v1.Post("/discounts/apply", handle(a, a.applyDiscount))

		v1.Post("/users", handle(a, a.ensureUser))
		v1.Route("/users/{chatID}", func(u chi.Router) {
			u.Get("/", handle(a, a.userSnapshot))
			u.Post("/purchases", handle(a, a.purchase))
			u.Post("/services/{id}/renew", handle(a, a.renew))
			u.Post("/deposits", handle(a, a.recordDeposit))
		})

		v1.Route("/admin", a.adminRoutes)
	})
	return r
}

func (a *API) adminRoutes(r chi.Router) {
	r.Use(a.adminOnly)

	r.Get("/users", handle(a, a.listUsers))
	r.Post("/broadcast", handle(a, a.broadcast))
	r.Post("/usage/{id}", handle(a, a.recordUsage))

	r.Get("/deposits", handle(a, a.pendingDeposits))
	r.Post("/deposits/{id}/approve", handle(a, a.approveDeposit))
	r.Post("/deposits/{id}/reject", handle(a, a.rejectDeposit))

	r.Get("/discounts", handle(a, a.listDiscounts))
	r.Post("/discounts", handle(a, a.createDiscount))
	r.Put("/discounts/{code}", handle(a, a.setDiscountActive))

	r.Get("/services", handle(a, a.allServices))
	r.Post("/services", handle(a, a.createService))
	r.Put("/services/{id}", handle(a, a.updateService))

	r.Get("/reports/sales", handle(a, a.salesReport))
	r.Get("/logs", handle(a, a.recentLogs))

	r.Get("/reconciliation", handle(a, a.openDebts))
	r.Post("/reconciliation/{id}/resolve", handle(a, a.resolveDebt))

	if a.prov != nil {
		r.Get("/inbounds", handle(a, a.listInbounds))
		r.Put("/inbounds/{id}", handle(a, a.setInboundEnabled))
	}
	if a.exporter != nil {
		r.Get("/backups", handle(a, a.listBackups))
		r.Post("/backups", handle(a, a.createBackup))
		r.Get("/backups/{id}", a.downloadBackup)
	}
}
