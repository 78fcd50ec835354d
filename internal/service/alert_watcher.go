package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// WatcherConfig tunes the AlertWatcher.
type WatcherConfig struct {
	Stream      string
	BatchSize   int
	Block       time.Duration
	AutoOpen    bool
	AccountID   string
	InvestedUSD decimal.Decimal
	// DedupWindow skips an alert whose source and text were already
	// handled within the window; 0 disables it.
	DedupWindow time.Duration
}

// AlertWatcher consumes free-text alerts from a stream, resolves what they
// mention and optionally opens positions for them.
type AlertWatcher struct {
	engine *Engine
	bus    domain.SignalBus
	cfg    WatcherConfig
	dedup  *Dedup
	logger *slog.Logger
}

// NewAlertWatcher creates an AlertWatcher.
func NewAlertWatcher(engine *Engine, bus domain.SignalBus, cfg WatcherConfig, logger *slog.Logger) *AlertWatcher {
	if cfg.Stream == "" {
		cfg.Stream = domain.StreamAlerts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	w := &AlertWatcher{
		engine: engine,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "alert_watcher")),
	}
	if cfg.DedupWindow > 0 {
		w.dedup = NewDedup(cfg.DedupWindow)
	}
	return w
}

// Run reads new stream entries until ctx is cancelled.
func (w *AlertWatcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "alert_watcher: started",
		slog.String("stream", w.cfg.Stream),
		slog.Bool("auto_open", w.cfg.AutoOpen),
	)

	lastID := "$"
	lastCleanup := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.dedup != nil && time.Since(lastCleanup) > w.cfg.DedupWindow {
			w.dedup.Cleanup()
			lastCleanup = time.Now()
		}

		msgs, err := w.bus.StreamRead(ctx, w.cfg.Stream, lastID, w.cfg.BatchSize, w.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.WarnContext(ctx, "alert_watcher: stream read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID
			w.Handle(ctx, msg.Payload)
		}
	}
}

// Handle processes one alert payload. A JSON domain.Alert is preferred; any
// other payload is treated as the alert text.
func (w *AlertWatcher) Handle(ctx context.Context, payload []byte) domain.SignalEvent {
	alert := decodeAlert(payload)
	evt := domain.SignalEvent{
		Source:      alert.Source,
		Identifiers: []domain.AssetIdentifier{},
		Resolved:    []domain.ResolvedAsset{},
		At:          time.Now().UTC(),
	}

	if w.dedup != nil && w.dedup.IsDuplicate(alert.Source+"\x00"+strings.TrimSpace(alert.Text)) {
		w.logger.DebugContext(ctx, "alert_watcher: duplicate alert skipped", slog.String("source", alert.Source))
		return evt
	}

	ids := w.engine.IngestSignal(ctx, alert.Source, alert.Text)
	evt.Identifiers = ids
	if len(ids) == 0 {
		return evt
	}

	for _, id := range ids {
		asset, err := w.engine.ResolveAsset(ctx, id)
		if err != nil {
			w.logger.InfoContext(ctx, "alert_watcher: identifier unresolved",
				slog.String("asset", id.Key()),
				slog.String("error", err.Error()),
			)
			continue
		}
		evt.Resolved = append(evt.Resolved, asset)
	}

	w.publish(ctx, evt)

	if w.cfg.AutoOpen {
		for _, asset := range evt.Resolved {
			if asset.HasPrice() {
				w.open(ctx, asset.Identifier)
			}
		}
	}
	return evt
}

func (w *AlertWatcher) open(ctx context.Context, id domain.AssetIdentifier) {
	_, err := w.engine.OpenPosition(ctx, w.cfg.AccountID, id, w.cfg.InvestedUSD)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateActivePosition):
		w.logger.InfoContext(ctx, "alert_watcher: position already open",
			slog.String("account", w.cfg.AccountID),
			slog.String("asset", id.Key()),
		)
	default:
		w.logger.WarnContext(ctx, "alert_watcher: auto-open failed",
			slog.String("account", w.cfg.AccountID),
			slog.String("asset", id.Key()),
			slog.String("error", err.Error()),
		)
	}
}

func (w *AlertWatcher) publish(ctx context.Context, evt domain.SignalEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		w.logger.ErrorContext(ctx, "alert_watcher: marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := w.bus.Publish(ctx, domain.ChannelSignals, payload); err != nil {
		w.logger.WarnContext(ctx, "alert_watcher: publish failed", slog.String("error", err.Error()))
	}
}

func decodeAlert(payload []byte) domain.Alert {
	var a domain.Alert
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(payload, &a) == nil && a.Text != "" {
		if a.Source == "" {
			a.Source = "stream"
		}
		return a
	}
	return domain.Alert{Source: "stream", Text: string(payload), ReceivedAt: time.Now().UTC()}
}
