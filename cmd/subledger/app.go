package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/subledger/pkg/cache"
	"github.com/dmitrymomot/subledger/pkg/config"
	"github.com/dmitrymomot/subledger/pkg/email"
	"github.com/dmitrymomot/subledger/pkg/file"
	"github.com/dmitrymomot/subledger/pkg/httpserver"
	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/pkg/pg"
	"github.com/dmitrymomot/subledger/pkg/ratelimit"
	"github.com/dmitrymomot/subledger/pkg/redis"
	"github.com/dmitrymomot/subledger/svc/api"
	"github.com/dmitrymomot/subledger/svc/backup"
	"github.com/dmitrymomot/subledger/svc/catalog"
	"github.com/dmitrymomot/subledger/svc/jobs"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/notify"
	"github.com/dmitrymomot/subledger/svc/provisioning"
	"github.com/dmitrymomot/subledger/svc/subscription"
)

const serviceName = "subledger"

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`
}

type settings struct {
	App     appConfig
	PG      pg.Config
	Redis   redis.Config
	Cache   cache.Config
	Guard   ratelimit.Config
	Jobs    jobs.Config
	Panel   provisioning.Config
	Notify  notify.Config
	Email   email.Config
	Storage file.Config
	API     api.Config
	HTTP    httpserver.Config
}

func loadSettings() (*settings, error) {
	s := &settings{}
	err := errors.Join(
		config.Load(&s.App),
		config.Load(&s.PG),
		config.Load(&s.Redis),
		config.Load(&s.Cache),
		config.Load(&s.Guard),
		config.Load(&s.Jobs),
		config.Load(&s.Panel),
		config.Load(&s.Notify),
		config.Load(&s.Email),
		config.Load(&s.Storage),
		config.Load(&s.API),
		config.Load(&s.HTTP),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newLogger(cfg appConfig) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(api.RequestIDExtractor()),
	)
}

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg       *settings
	log       *slog.Logger
	store     ledger.Store
	cache     *cache.Tiered
	guard     *ratelimit.Guard
	prov      provisioning.Provisioner
	notifier  notify.Notifier
	formatter *notify.Formatter
	mailer    email.EmailSender
	engine    *subscription.Engine
	catalog   *catalog.Catalog
	exporter  *backup.Exporter
	checks    []httpserver.Check
	closers   []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: newLogger(cfg.App)}
	logger.SetAsDefault(a.log)

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openCache(ctx); err != nil {
		return err
	}

	guard, err := ratelimit.NewGuard(cfg.Guard, ratelimit.WithGuardLogger(a.log))
	if err != nil {
		return err
	}
	a.guard = guard
	a.closers = append(a.closers, func() { _ = guard.Close() })

	if err := a.openProvisioner(); err != nil {
		return err
	}

	if cfg.Notify.Enabled() {
		tg, err := notify.NewTelegramNotifier(cfg.Notify)
		if err != nil {
			return err
		}
		a.notifier = tg
	} else {
		a.log.WarnContext(ctx, "telegram bot token not set, notifications are only logged")
		a.notifier = notify.NewLogNotifier(a.log)
	}
	a.formatter = notify.NewFormatter(cfg.Notify.Language, cfg.Notify.Currency)

	if a.mailer, err = email.New(cfg.Email); err != nil {
		return err
	}

	storage, err := file.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.exporter = backup.New(a.store, storage, backup.WithLogger(a.log))
	a.catalog = catalog.New(a.store, catalog.WithCache(a.cache, cfg.Cache.DefaultTTL), catalog.WithLogger(a.log))
	a.engine = subscription.NewEngine(a.store, a.prov,
		subscription.WithLogger(a.log),
		subscription.WithProvisionTimeout(cfg.Jobs.ProvisionTimeout),
		subscription.WithNotifier(a.notifier, a.formatter),
		subscription.WithAdmins(cfg.Notify.AdminChatIDs...),
	)
	return nil
}

// openStore connects to PostgreSQL, or keeps the ledger in memory when no
// connection string is configured.
func (a *app) openStore(ctx context.Context) error {
	if !a.cfg.PG.Enabled() {
		a.log.WarnContext(ctx, "PG_CONN_URL not set, ledger is kept in memory and lost on exit")
		a.store = ledger.NewMemoryStore()
		a.checks = append(a.checks, httpserver.Check{Name: "ledger", Fn: a.store.Ping})
		return nil
	}

	pool, err := pg.Connect(ctx, a.cfg.PG)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	a.store = ledger.NewPostgresStore(pool)
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	return nil
}

// openCache builds the memory, disk and optional redis tiers.
func (a *app) openCache(ctx context.Context) error {
	cfg := a.cfg.Cache
	tiers := []cache.Tier{
		cache.NewMemoryTier(cache.WithMemoryMaxEntries(cfg.MemoryMaxEntries), cache.WithMemoryDefaultTTL(cfg.DefaultTTL)),
	}
	if cfg.Dir != "" {
		disk, err := cache.NewDiskTier(cfg.Dir, cache.WithDiskMaxEntries(cfg.DiskMaxEntries), cache.WithDiskDefaultTTL(cfg.DefaultTTL))
		if err != nil {
			return err
		}
		tiers = append(tiers, disk)
	}
	if a.cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		tiers = append(tiers, cache.NewRedisTier(client, a.cfg.Redis.KeyPrefix, cfg.DefaultTTL))
		a.checks = append(a.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}

	tiered, err := cache.NewTiered(tiers,
		cache.WithDefaultTTL(cfg.DefaultTTL),
		cache.WithSweepInterval(cfg.SweepInterval),
		cache.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.cache = tiered
	a.closers = append(a.closers, func() { _ = tiered.Close() })
	return nil
}

// openProvisioner wraps the panel client with the connection pool and the
// inbound cache. Without a panel URL accounts live in process.
func (a *app) openProvisioner() error {
	cfg := a.cfg.Panel
	if !cfg.Enabled() {
		a.log.Warn("PANEL_URL not set, using the in-memory provisioner")
		a.prov = provisioning.NewMemoryProvisioner()
		return nil
	}

	client, err := provisioning.NewPanelClient(cfg, provisioning.WithLogger(a.log))
	if err != nil {
		return err
	}
	var p provisioning.Provisioner = provisioning.NewGuarded(client, a.guard.Pool())
	p = provisioning.NewCachedInbounds(p, a.cache, cfg.InboundsCacheTTL, a.log)
	a.prov = p
	a.checks = append(a.checks, httpserver.Check{
		Name: "panel",
		Fn:   func(ctx context.Context) error { return provisioning.CheckSession(ctx, p) },
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
