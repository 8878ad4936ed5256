package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/subledger/pkg/httpserver"
	"github.com/dmitrymomot/subledger/pkg/pg"
	"github.com/dmitrymomot/subledger/pkg/scheduler"
	"github.com/dmitrymomot/subledger/svc/api"
	"github.com/dmitrymomot/subledger/svc/jobs"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrate {
				if err := runMigrations(ctx); err != nil {
					return err
				}
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

// serve runs the job runner and the HTTP server until ctx is cancelled or
// either of them fails.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	opts := []jobs.Option{jobs.WithLogger(a.log), jobs.WithFormatter(a.formatter)}

	alerter := jobs.NewAlerter(a.store, a.notifier,
		jobs.WithAdminChats(cfg.Notify.AdminChatIDs...),
		jobs.WithMailer(a.mailer, cfg.Email.AlertRecipients...),
		jobs.WithAlertLogger(a.log),
	)
	runner := scheduler.NewRunner(scheduler.WithLogger(a.log))
	err := jobs.Register(runner, cfg.Jobs, jobs.Set{
		Notifications: jobs.NewNotificationSweep(a.store, a.notifier, cfg.Jobs, opts...),
		Cleanup:       jobs.NewCleanupSweep(a.store, a.prov, a.exporter, cfg.Jobs, opts...),
		Health:        jobs.NewHealthMonitor(a.store, a.prov, alerter, jobs.HostSampler(cfg.Jobs.DiskPath), cfg.Jobs, opts...),
		Backup:        jobs.NewBackupTask(a.exporter, opts...),
	})
	if err != nil {
		return err
	}

	handler := api.New(a.engine, a.catalog, cfg.API,
		api.WithGuard(a.guard),
		api.WithExporter(a.exporter),
		api.WithProvisioner(a.prov),
		api.WithReadinessChecks(a.checks...),
		api.WithLogger(a.log),
	).Handle()
	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(a.log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return server.Run(gctx, handler) })
	return g.Wait()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrations(cmd.Context())
		},
	}
}

func runMigrations(ctx context.Context) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(cfg.App)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}
	log.InfoContext(ctx, "migrations applied")
	return nil
}
