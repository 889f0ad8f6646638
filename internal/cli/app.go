package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldworks/satchel/internal/config"
	"github.com/fieldworks/satchel/internal/engine"
	"github.com/fieldworks/satchel/internal/identity"
	"github.com/fieldworks/satchel/internal/remote"
	"github.com/fieldworks/satchel/internal/schema"
	"github.com/fieldworks/satchel/internal/store"
)

// app bundles the wired components behind a command invocation.
type app struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// setupLogging configures the process-wide slog handler from the
// verbose flag. Logs go to stderr so JSON output stays parseable.
func setupLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// openApp loads the config, opens the database, wires the engine, and
// establishes the configured session. Every data command starts here.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	setupLogging(opts)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	reg, err := schema.LoadDir(cfg.Stores)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load store declarations", err)
	}

	st, err := store.Open(cfg.Database, reg.Definitions())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var clientOpts []remote.HTTPOption
	if cfg.Remote.Timeout > 0 {
		clientOpts = append(clientOpts, remote.WithTimeout(cfg.Remote.Timeout.Std()))
	}
	client := remote.NewHTTPClient(cfg.Remote.BaseURL, clientOpts...)

	var engOpts []engine.Option
	if cfg.Read.StaleTimeout > 0 {
		engOpts = append(engOpts, engine.WithStaleTimeout(cfg.Read.StaleTimeout.Std()))
	}
	if cfg.Sync.MaxAttempts > 0 {
		engOpts = append(engOpts, engine.WithRetryBudget(
			cfg.Sync.MaxAttempts, cfg.Sync.BackoffBase.Std(), cfg.Sync.BackoffMax.Std()))
	}

	eng, err := engine.New(ctx, st, reg, client, engOpts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	provider := identity.StaticProvider{Principal: identity.Principal{
		UserID:     cfg.Identity.User,
		TenantID:   cfg.Identity.Tenant,
		AllTenants: cfg.Identity.AllTenants,
	}}
	if _, err := eng.BeginSession(ctx, provider); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to establish session", err)
	}

	return &app{cfg: cfg, store: st, engine: eng}, nil
}

// newFormatter builds the output formatter for a command. Verbose and
// diagnostic output goes to stderr to avoid corrupting JSON output.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
