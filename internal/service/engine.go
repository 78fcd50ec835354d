// Package service holds the application services: the engine facade, the
// ledger persister and the alert watcher.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/extract"
	"github.com/alanyoungcy/signalledger/internal/ledger"
	"github.com/alanyoungcy/signalledger/internal/metrics"
	"github.com/alanyoungcy/signalledger/internal/valuation"
)

// Position events published on the bus, written to the audit log and
// offered to the notifier.
const (
	EventPositionOpened = "position_opened"
	EventPositionSold   = "position_sold"
	EventPositionClosed = "position_closed"
)

// Notifier delivers operator notifications filtered by event type.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Engine is the single entry point for front ends. Bus, audit store and
// notifier are optional; their failures are logged and never fail the
// operation that triggered them.
type Engine struct {
	extractor *extract.Extractor
	resolver  domain.AssetResolver
	ledger    *ledger.Ledger
	valuer    *valuation.Engine
	bus       domain.SignalBus
	audit     domain.AuditStore
	notifier  Notifier
	logger    *slog.Logger
}

// NewEngine creates the facade. bus, audit and notifier may be nil.
func NewEngine(
	extractor *extract.Extractor,
	resolver domain.AssetResolver,
	led *ledger.Ledger,
	valuer *valuation.Engine,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		extractor: extractor,
		resolver:  resolver,
		ledger:    led,
		valuer:    valuer,
		bus:       bus,
		audit:     audit,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// IngestSignal extracts the candidate identifiers from free text.
func (e *Engine) IngestSignal(ctx context.Context, source, text string) []domain.AssetIdentifier {
	ids := e.extractor.Extract(text)
	if source == "" {
		source = "unknown"
	}
	metrics.SignalsIngested.WithLabelValues(source).Inc()
	e.logger.DebugContext(ctx, "engine: signal ingested",
		slog.String("source", source),
		slog.Int("identifiers", len(ids)),
	)
	return ids
}

// ParseIdentifier classifies a single caller-supplied identifier.
func (e *Engine) ParseIdentifier(raw string) (domain.AssetIdentifier, error) {
	return e.extractor.Parse(raw)
}

// ResolveAsset resolves id through the cache and provider chain.
func (e *Engine) ResolveAsset(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	return e.resolver.Resolve(ctx, id)
}

// OpenPosition opens a position for account.
func (e *Engine) OpenPosition(ctx context.Context, account string, id domain.AssetIdentifier, investedUSD decimal.Decimal) (domain.Position, error) {
	pos, err := e.ledger.Open(ctx, account, id, investedUSD)
	if err != nil {
		return domain.Position{}, err
	}

	e.emit(ctx, EventPositionOpened, pos, nil)
	e.audited(ctx, EventPositionOpened, map[string]any{
		"position_id":     pos.ID,
		"account_id":      pos.AccountID,
		"asset":           pos.Asset.Key(),
		"symbol":          pos.Symbol,
		"source":          pos.Source,
		"quantity":        pos.Quantity.String(),
		"entry_price_usd": pos.EntryPriceUSD.String(),
		"invested_usd":    pos.InvestedUSD.String(),
	})
	e.notify(ctx, EventPositionOpened, "Position opened",
		fmt.Sprintf("%s bought %s %s at $%s ($%s invested)",
			pos.AccountID, pos.Quantity.StringFixed(4), pos.Symbol,
			pos.EntryPriceUSD.String(), pos.InvestedUSD.StringFixed(2)))
	return pos, nil
}

// SellPosition sells fraction of the account's active position in id.
func (e *Engine) SellPosition(ctx context.Context, account string, id domain.AssetIdentifier, fraction decimal.Decimal) (domain.SellResult, error) {
	res, err := e.ledger.Sell(ctx, account, id, fraction)
	if err != nil {
		return domain.SellResult{}, err
	}

	event := EventPositionSold
	if !res.Position.IsActive() {
		event = EventPositionClosed
	}
	pos := res.Position

	e.emit(ctx, event, pos, &res.Fill)
	e.audited(ctx, event, map[string]any{
		"position_id":      pos.ID,
		"account_id":       pos.AccountID,
		"asset":            pos.Asset.Key(),
		"fraction":         res.Fill.Fraction.String(),
		"quantity_sold":    res.Fill.QuantitySold.String(),
		"price_usd":        res.Fill.PriceUSD.String(),
		"proceeds_usd":     res.Fill.ProceedsUSD.String(),
		"realized_pnl_usd": res.Fill.RealizedPnlUSD.String(),
		"remaining":        pos.Quantity.String(),
		"status":           string(pos.Status),
	})

	title := "Position sold"
	msg := fmt.Sprintf("%s sold %s %s at $%s, realized $%s",
		pos.AccountID, res.Fill.QuantitySold.StringFixed(4), pos.Symbol,
		res.Fill.PriceUSD.String(), res.Fill.RealizedPnlUSD.StringFixed(2))
	if event == EventPositionClosed {
		title = "Position closed"
		msg += fmt.Sprintf(" (total realized $%s)", valuation.ValueClosedPosition(pos).TotalRealizedPnlUSD.StringFixed(2))
	}
	e.notify(ctx, event, title, msg)
	return res, nil
}

// ListPositions returns every position of account ordered by open time.
func (e *Engine) ListPositions(account string) []domain.Position {
	return e.ledger.List(account)
}

// GetPosition returns the active, or latest closed, position for the key.
func (e *Engine) GetPosition(account string, id domain.AssetIdentifier) (domain.Position, error) {
	return e.ledger.Get(account, id)
}

// ValuePositions marks every position of account to market.
func (e *Engine) ValuePositions(ctx context.Context, account string) ([]valuation.Valuation, valuation.Summary) {
	vals := e.valuer.ValueAll(ctx, e.ledger.List(account))
	return vals, valuation.Summarize(vals)
}

func (e *Engine) emit(ctx context.Context, event string, pos domain.Position, fill *domain.PartialSell) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.PositionEvent{
		Event:     event,
		AccountID: pos.AccountID,
		Asset:     pos.Asset.Key(),
		Position:  pos,
		Fill:      fill,
		At:        time.Now().UTC(),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "engine: marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelPositions, payload); err != nil {
		e.logger.WarnContext(ctx, "engine: publish event failed",
			slog.String("event", event),
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) audited(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "engine: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, strings.TrimSpace(message)); err != nil {
		e.logger.WarnContext(ctx, "engine: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
