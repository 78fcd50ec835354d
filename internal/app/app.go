// Package app provides the top-level application lifecycle for signalledger.
// It wires the resolver chain, the ledger, persistence, caches and
// notifications, then starts the goroutines of the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/signalledger/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, restores the ledger, starts the goroutines of
// the configured mode and blocks until the context is cancelled. The final
// snapshot is written after the mode has shut down.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("persistence", a.cfg.Persistence.Backend),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if deps.Persister != nil {
		if err := deps.Persister.Load(ctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	var runErr error
	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		runErr = a.ServerMode(ctx, deps)
	case "watch":
		runErr = a.WatchMode(ctx, deps)
	case "full":
		runErr = a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	// The mode only returns after the HTTP server drained and the watcher
	// stopped, so nothing writes to the ledger past this point.
	if deps.Persister != nil {
		if err := deps.Persister.Flush(); err != nil && runErr == nil {
			runErr = fmt.Errorf("app: %w", err)
		}
	}
	return runErr
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
