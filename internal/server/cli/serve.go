package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/fieldsync/internal/config"
	"github.com/iudanet/fieldsync/internal/server"
	"github.com/iudanet/fieldsync/internal/server/events"
	"github.com/iudanet/fieldsync/internal/server/jwt"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage/sqlite"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the dispatch and cleanup schedulers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg := opts.cfg
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := opts.logger

	store, err := sqlite.New(ctx, cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	hub := events.NewHub(logger.Logger, cfg.Server.EventBuffer, cfg.Server.AllowedOrigins)
	defer hub.Close()

	engine, err := reconcile.New(logger.Logger, store, engineConfig(cfg.Engine), reconcile.WithPublisher(hub))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	srvCfg := serverConfig(cfg.Server)
	router, stopRouter := server.NewRouter(logger.Logger, srvCfg, server.Deps{
		Engine:  engine,
		Tokens:  jwt.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		Events:  hub,
		Store:   store,
		Version: opts.build.Version,
	})
	defer stopRouter()

	srv := server.New(logger.Logger, srvCfg, router)
	if err := srv.Listen(); err != nil {
		return WrapExitError(ExitCommandError, "failed to start server", err)
	}

	if opts.ConfigPath != "" {
		config.Watch(opts.v, logger.Logger, func(next *config.Config) {
			if err := logger.SetLevel(next.Log.Level); err != nil {
				logger.Warn("Failed to apply log level", "error", err)
			}
		})
	}

	logger.Info("Starting fieldsync",
		"version", opts.build.Version,
		"addr", srv.Addr(),
		"database", cfg.Database.Path,
		"dispatch_interval", cfg.Scheduler.DispatchInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.Scheduler.DispatchInterval > 0 {
		scheduler := reconcile.NewScheduler(logger.With("component", "dispatch-scheduler"), engine, cfg.Scheduler.DispatchInterval)
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	cleanup := reconcile.NewCleanupScheduler(logger.With("component", "cleanup-scheduler"), engine, cfg.Scheduler.CleanupInterval)
	g.Go(func() error { return cleanup.Run(gctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	logger.Info("fieldsync stopped")
	return nil
}

func serverConfig(c config.ServerConfig) server.Config {
	return server.Config{
		Addr:              c.Addr,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		ReadTimeout:       c.ReadTimeout,
		ShutdownTimeout:   c.ShutdownTimeout,
		SubmitRate:        c.SubmitRate,
		SubmitWindow:      c.SubmitWindow,
		AdminRate:         c.AdminRate,
		AdminWindow:       c.AdminWindow,
	}
}
