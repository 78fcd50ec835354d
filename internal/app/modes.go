package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalledger/internal/server"
	"github.com/alanyoungcy/signalledger/internal/server/handler"
	"github.com/alanyoungcy/signalledger/internal/server/ws"
	"github.com/alanyoungcy/signalledger/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and WebSocket API and persists the ledger.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPersister(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// WatchMode consumes the alert stream and persists the ledger. It serves no
// HTTP traffic.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startWatcher(ctx, g, deps); err != nil {
		return err
	}
	a.startPersister(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server and the alert watcher side by side.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startWatcher(ctx, g, deps); err != nil {
		return err
	}
	a.startPersister(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) startPersister(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Persister == nil {
		a.logger.WarnContext(ctx, "persistence disabled; ledger lives in memory only")
		return
	}
	g.Go(func() error {
		return deps.Persister.Run(ctx)
	})
}

func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.SignalBus == nil {
		return errors.New("app: alert watcher needs redis")
	}
	w := a.cfg.Watcher
	watcher := service.NewAlertWatcher(deps.Engine, deps.SignalBus, service.WatcherConfig{
		Stream:      w.Stream,
		BatchSize:   w.BatchSize,
		Block:       w.Block.Duration,
		AutoOpen:    w.AutoOpen,
		AccountID:   w.AccountID,
		InvestedUSD: a.cfg.WatcherInvestedUSD(),
		DedupWindow: w.DedupWindow.Duration,
	}, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	return nil
}

// startHTTPServer adds the API server to g. The WebSocket hub is only
// registered when a bus is available to feed it. The server shuts down
// gracefully once ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.HealthChecks, deps.Resolver.Providers(), a.logger),
		Signals:   handler.NewSignalHandler(deps.Engine, deps.SignalBus, a.cfg.Watcher.Stream, a.logger),
		Assets:    handler.NewAssetHandler(deps.Engine, a.logger),
		Positions: handler.NewPositionHandler(deps.Engine, a.logger),
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			Mode:            a.cfg.Mode,
			StartedAt:       time.Now().UTC(),
			ActivePositions: deps.Ledger.ActiveCount,
		}, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.Int("port", a.cfg.Server.Port))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
