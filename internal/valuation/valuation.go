// Package valuation prices positions for display. It never substitutes the
// entry price for an unknown current price.
package valuation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Valuation is the mark-to-market view of one position.
type Valuation struct {
	Position         domain.Position `json:"position"`
	PriceUnavailable bool            `json:"price_unavailable"`
	CurrentPriceUSD  decimal.Decimal `json:"current_price_usd"`
	MarketValueUSD   decimal.Decimal `json:"market_value_usd"`
	CostBasisUSD     decimal.Decimal `json:"cost_basis_usd"`
	UnrealizedPnlUSD decimal.Decimal `json:"unrealized_pnl_usd"`
	UnrealizedPnlPct decimal.Decimal `json:"unrealized_pnl_pct"`
	RealizedPnlUSD   decimal.Decimal `json:"realized_pnl_usd"`
}

// ClosedValuation is the final result of a closed position.
type ClosedValuation struct {
	TotalRealizedPnlUSD decimal.Decimal `json:"total_realized_pnl_usd"`
}

// Summary aggregates valuations for one account.
type Summary struct {
	Positions        int             `json:"positions"`
	Active           int             `json:"active"`
	Unpriced         int             `json:"unpriced"`
	InvestedUSD      decimal.Decimal `json:"invested_usd"`
	MarketValueUSD   decimal.Decimal `json:"market_value_usd"`
	UnrealizedPnlUSD decimal.Decimal `json:"unrealized_pnl_usd"`
	RealizedPnlUSD   decimal.Decimal `json:"realized_pnl_usd"`
}

// Engine values positions using the shared resolver.
type Engine struct {
	resolver domain.AssetResolver
	logger   *slog.Logger
}

// New creates a valuation Engine.
func New(resolver domain.AssetResolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "valuation")),
	}
}

// ValuePosition marks an ACTIVE position to the current price. When the
// price cannot be resolved the result has PriceUnavailable set and zero
// unrealized figures. Closed positions are valued from their fills only.
func (e *Engine) ValuePosition(ctx context.Context, pos domain.Position) Valuation {
	v := Valuation{
		Position:       pos,
		CostBasisUSD:   pos.CostBasis(),
		RealizedPnlUSD: pos.RealizedPnL(),
	}
	if !pos.IsActive() {
		return v
	}

	asset, err := e.resolver.Resolve(ctx, pos.Asset)
	if err != nil || !asset.HasPrice() {
		if err != nil && !errors.Is(err, domain.ErrUnresolved) {
			e.logger.WarnContext(ctx, "valuation: resolve failed",
				slog.String("asset", pos.Asset.Key()),
				slog.String("error", err.Error()),
			)
		}
		v.PriceUnavailable = true
		return v
	}

	v.CurrentPriceUSD = asset.PriceUSD
	v.MarketValueUSD = pos.Quantity.Mul(asset.PriceUSD)
	v.UnrealizedPnlUSD = v.MarketValueUSD.Sub(v.CostBasisUSD)
	if v.CostBasisUSD.IsPositive() {
		v.UnrealizedPnlPct = v.UnrealizedPnlUSD.Div(v.CostBasisUSD).Mul(hundred).Round(4)
	}
	return v
}

// ValueClosedPosition sums realized P&L over every fill. It does no I/O.
func ValueClosedPosition(pos domain.Position) ClosedValuation {
	return ClosedValuation{TotalRealizedPnlUSD: pos.RealizedPnL()}
}

// ValueAll values each position in order.
func (e *Engine) ValueAll(ctx context.Context, positions []domain.Position) []Valuation {
	out := make([]Valuation, 0, len(positions))
	for _, p := range positions {
		out = append(out, e.ValuePosition(ctx, p))
	}
	return out
}

// Summarize totals a set of valuations. Unpriced positions contribute their
// realized P&L but nothing to market value or unrealized P&L.
func Summarize(vals []Valuation) Summary {
	s := Summary{Positions: len(vals)}
	for _, v := range vals {
		s.RealizedPnlUSD = s.RealizedPnlUSD.Add(v.RealizedPnlUSD)
		if !v.Position.IsActive() {
			continue
		}
		s.Active++
		s.InvestedUSD = s.InvestedUSD.Add(v.Position.InvestedUSD)
		if v.PriceUnavailable {
			s.Unpriced++
			continue
		}
		s.MarketValueUSD = s.MarketValueUSD.Add(v.MarketValueUSD)
		s.UnrealizedPnlUSD = s.UnrealizedPnlUSD.Add(v.UnrealizedPnlUSD)
	}
	return s
}
