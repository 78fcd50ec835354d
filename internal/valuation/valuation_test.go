package valuation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedResolver struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fixedResolver) Resolve(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	f.calls++
	if f.err != nil {
		return domain.ResolvedAsset{}, f.err
	}
	return domain.ResolvedAsset{Identifier: id, PriceUSD: f.price}, nil
}

func newEngine(r domain.AssetResolver) *Engine {
	return New(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// halfSold is the worked example after the first sell: 25 of 50 left at an
// entry of 2.00, 25 realized.
func halfSold() domain.Position {
	return domain.Position{
		ID: "p1", AccountID: "acc1", Asset: domain.NewTicker("TICKR"),
		Quantity: dec("25"), InitialQuantity: dec("50"),
		EntryPriceUSD: dec("2"), InvestedUSD: dec("100"),
		Status:   domain.PositionStatusActive,
		OpenedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Fills: []domain.PartialSell{{
			Fraction: dec("0.5"), QuantitySold: dec("25"), PriceUSD: dec("3"),
			ProceedsUSD: dec("75"), RealizedPnlUSD: dec("25"),
		}},
	}
}

func TestValuePositionActive(t *testing.T) {
	e := newEngine(&fixedResolver{price: dec("4")})

	v := e.ValuePosition(context.Background(), halfSold())
	assert.False(t, v.PriceUnavailable)
	assert.True(t, v.CurrentPriceUSD.Equal(dec("4")))
	assert.True(t, v.CostBasisUSD.Equal(dec("50")))
	assert.True(t, v.MarketValueUSD.Equal(dec("100")))
	assert.True(t, v.UnrealizedPnlUSD.Equal(dec("50")))
	assert.True(t, v.UnrealizedPnlPct.Equal(dec("100")))
	assert.True(t, v.RealizedPnlUSD.Equal(dec("25")))
}

func TestValuePositionUnresolvedNeverFabricates(t *testing.T) {
	for _, r := range []*fixedResolver{
		{err: fmt.Errorf("resolver: %w", domain.ErrUnresolved)},
		{err: errors.New("boom")},
		{price: decimal.Zero},
	} {
		v := newEngine(r).ValuePosition(context.Background(), halfSold())
		assert.True(t, v.PriceUnavailable)
		assert.True(t, v.CurrentPriceUSD.IsZero(), "entry price is never used as a stand-in")
		assert.True(t, v.UnrealizedPnlUSD.IsZero())
		assert.True(t, v.RealizedPnlUSD.Equal(dec("25")))
	}
}

func TestValuePositionClosedSkipsResolver(t *testing.T) {
	r := &fixedResolver{price: dec("4")}
	p := halfSold()
	p.Status = domain.PositionStatusClosed

	v := newEngine(r).ValuePosition(context.Background(), p)
	assert.Equal(t, 0, r.calls)
	assert.False(t, v.PriceUnavailable)
	assert.True(t, v.RealizedPnlUSD.Equal(dec("25")))
}

func TestValueClosedPosition(t *testing.T) {
	p := halfSold()
	p.Fills = append(p.Fills, domain.PartialSell{QuantitySold: dec("25"), RealizedPnlUSD: dec("25")})
	p.Quantity = decimal.Zero
	p.Status = domain.PositionStatusClosed

	got := ValueClosedPosition(p)
	assert.True(t, got.TotalRealizedPnlUSD.Equal(dec("50")))
}

func TestSummarize(t *testing.T) {
	priced := newEngine(&fixedResolver{price: dec("4")})
	unpriced := newEngine(&fixedResolver{err: domain.ErrUnresolved})

	closed := halfSold()
	closed.Status = domain.PositionStatusClosed

	vals := []Valuation{
		priced.ValuePosition(context.Background(), halfSold()),
		unpriced.ValuePosition(context.Background(), halfSold()),
		priced.ValuePosition(context.Background(), closed),
	}
	s := Summarize(vals)

	assert.Equal(t, 3, s.Positions)
	assert.Equal(t, 2, s.Active)
	assert.Equal(t, 1, s.Unpriced)
	assert.True(t, s.InvestedUSD.Equal(dec("200")))
	assert.True(t, s.MarketValueUSD.Equal(dec("100")))
	assert.True(t, s.UnrealizedPnlUSD.Equal(dec("50")))
	assert.True(t, s.RealizedPnlUSD.Equal(dec("75")))
}

func TestValueAllPreservesOrder(t *testing.T) {
	a, b := halfSold(), halfSold()
	b.ID = "p2"
	vals := newEngine(&fixedResolver{price: dec("1")}).ValueAll(context.Background(), []domain.Position{a, b})
	require.Len(t, vals, 2)
	assert.Equal(t, "p1", vals[0].Position.ID)
	assert.Equal(t, "p2", vals[1].Position.ID)
}
