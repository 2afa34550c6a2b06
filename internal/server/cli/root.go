// Package cli implements the fieldsync server command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/fieldsync/internal/config"
	"github.com/iudanet/fieldsync/internal/logging"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage/sqlite"
)

// BuildInfo is stamped into the binary via ldflags.
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// RootOptions holds global flags and the state PersistentPreRunE prepares.
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
	As         string // username recorded for operator actions

	build  BuildInfo
	v      *viper.Viper
	cfg    *config.Config
	logger *logging.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the server binary.
func NewRootCommand(build BuildInfo) *cobra.Command {
	opts := &RootOptions{build: build, v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline mutation reconciliation service",
		Long: `fieldsync accepts batches of offline edits from field devices, applies them
to the entity store in order, records conflicts for review and keeps the
sync history within its retention horizons.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logger != nil {
				return opts.logger.Close()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.As, "as", "operator", "username recorded for operator actions")
	pf.String("db", "", "sqlite database path (overrides database.path)")
	pf.String("log-level", "", "log level (overrides log.level)")
	_ = opts.v.BindPFlag("database.path", pf.Lookup("db"))
	_ = opts.v.BindPFlag("log.level", pf.Lookup("log-level"))

	cmd.AddCommand(
		NewServeCommand(opts),
		NewDispatchCommand(opts),
		NewQueueCommand(opts),
		NewRetryCommand(opts),
		NewConflictsCommand(opts),
		NewResolveCommand(opts),
		NewSessionsCommand(opts),
		NewCleanupCommand(opts),
		NewRetentionCommand(opts),
		NewTokenCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

func (o *RootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.v, o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

// actor is the identity operator commands run under.
func (o *RootOptions) actor() models.Actor {
	return models.SystemActor(o.As)
}

// withEngine opens the database, runs fn against an engine and closes it.
func (o *RootOptions) withEngine(ctx context.Context, fn func(*reconcile.Engine) error) error {
	store, err := sqlite.New(ctx, o.cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			o.logger.Error("Failed to close database", "error", err)
		}
	}()

	engine, err := reconcile.New(o.logger.Logger, store, engineConfig(o.cfg.Engine))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	return fn(engine)
}

func engineConfig(c config.EngineConfig) reconcile.Config {
	return reconcile.Config{
		Workers:      c.Workers,
		BatchLimit:   c.BatchLimit,
		MaxAttempts:  c.MaxAttempts,
		BackoffBase:  c.BackoffBase,
		BackoffMax:   c.BackoffMax,
		TxTimeout:    c.TxTimeout,
		StaleAfter:   c.StaleAfter,
		RetentionKey: c.RetentionKey,
	}
}
