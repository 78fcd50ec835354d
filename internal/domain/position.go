package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is active or closed. The only
// transition is ACTIVE -> CLOSED.
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "ACTIVE"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// PartialSell records one sell against a position. Fills are append-only.
type PartialSell struct {
	Timestamp      time.Time       `json:"timestamp"`
	Fraction       decimal.Decimal `json:"fraction"`
	QuantitySold   decimal.Decimal `json:"quantity_sold"`
	PriceUSD       decimal.Decimal `json:"price_usd"`
	ProceedsUSD    decimal.Decimal `json:"proceeds_usd"`
	RealizedPnlUSD decimal.Decimal `json:"realized_pnl_usd"`
}

// Position is an account's stake in one asset together with its fill
// history. It is owned by the ledger; everything handed out is a clone.
type Position struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Asset           AssetIdentifier `json:"asset"`
	Symbol          string          `json:"symbol"`
	Source          string          `json:"source"`
	Quantity        decimal.Decimal `json:"quantity"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	EntryPriceUSD   decimal.Decimal `json:"entry_price_usd"`
	InvestedUSD     decimal.Decimal `json:"invested_usd"`
	Status          PositionStatus  `json:"status"`
	OpenedAt        time.Time       `json:"opened_at"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	Fills           []PartialSell   `json:"fills"`
}

// IsActive reports whether the position can still be sold.
func (p Position) IsActive() bool { return p.Status == PositionStatusActive }

// SoldQuantity sums the quantity of every fill.
func (p Position) SoldQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, f := range p.Fills {
		total = total.Add(f.QuantitySold)
	}
	return total
}

// RealizedPnL sums realized P&L over every fill. It is always derived from
// the fills, never stored.
func (p Position) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, f := range p.Fills {
		total = total.Add(f.RealizedPnlUSD)
	}
	return total
}

// CostBasis is the entry cost of the quantity still held.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.EntryPriceUSD)
}

// Clone returns a deep copy of the position.
func (p Position) Clone() Position {
	out := p
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	out.Fills = make([]PartialSell, len(p.Fills))
	copy(out.Fills, p.Fills)
	return out
}

// SellResult is returned by a successful sell.
type SellResult struct {
	Fill     PartialSell `json:"fill"`
	Position Position    `json:"position"`
}

// LedgerSnapshotVersion is the current snapshot schema version.
const LedgerSnapshotVersion = 1

// LedgerSnapshot is a faithful, round-trippable copy of the whole ledger.
type LedgerSnapshot struct {
	Version   int        `json:"version"`
	TakenAt   time.Time  `json:"taken_at"`
	Positions []Position `json:"positions"`
}
