package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

func TestEngineIngestSignal(t *testing.T) {
	h := newHarness(t)
	ids := h.engine.IngestSignal(context.Background(), "test",
		"APE into $wif and BONK, mint DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 (not BTC)")

	var keys []string
	for _, id := range ids {
		keys = append(keys, id.Key())
	}
	assert.Equal(t, []string{"APE", "WIF", "BONK", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"}, keys)
}

func TestEngineLifecycleEmitsEvents(t *testing.T) {
	h := newHarness(t, "TICKR", "2.00")
	ctx := context.Background()
	id := domain.NewTicker("TICKR")

	pos, err := h.engine.OpenPosition(ctx, "acc1", id, dec("100"))
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(dec("50")))

	h.book.set("TICKR", "3.00")
	res, err := h.engine.SellPosition(ctx, "acc1", id, dec("0.5"))
	require.NoError(t, err)
	assert.True(t, res.Fill.RealizedPnlUSD.Equal(dec("25")))

	res, err = h.engine.SellPosition(ctx, "acc1", id, dec("1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, res.Position.Status)

	assert.Equal(t, []string{EventPositionOpened, EventPositionSold, EventPositionClosed}, h.audit.events)
	assert.Equal(t, []string{EventPositionOpened, EventPositionSold, EventPositionClosed}, h.notifier.events)

	events := h.bus.on(domain.ChannelPositions)
	require.Len(t, events, 3)
	var last domain.PositionEvent
	require.NoError(t, json.Unmarshal(events[2], &last))
	assert.Equal(t, EventPositionClosed, last.Event)
	assert.Equal(t, "TICKR", last.Asset)
	require.NotNil(t, last.Fill)
	assert.True(t, last.Position.RealizedPnL().Equal(dec("50")))
}

func TestEngineFailedOperationsEmitNothing(t *testing.T) {
	h := newHarness(t, "AAA", "1")
	ctx := context.Background()

	_, err := h.engine.SellPosition(ctx, "acc1", domain.NewTicker("AAA"), dec("0.5"))
	assert.ErrorIs(t, err, domain.ErrNoActivePosition)
	_, err = h.engine.OpenPosition(ctx, "acc1", domain.NewTicker("ZZZ"), dec("10"))
	assert.ErrorIs(t, err, domain.ErrUnresolvedAsset)

	assert.Empty(t, h.audit.events)
	assert.Empty(t, h.bus.on(domain.ChannelPositions))
}

func TestEngineSideChannelFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t, "AAA", "1")
	h.bus.failPub = true

	_, err := h.engine.OpenPosition(context.Background(), "acc1", domain.NewTicker("AAA"), dec("10"))
	assert.NoError(t, err)
}

func TestEngineValuePositions(t *testing.T) {
	h := newHarness(t, "AAA", "2", "BBB", "4")
	ctx := context.Background()

	_, err := h.engine.OpenPosition(ctx, "acc1", domain.NewTicker("AAA"), dec("100"))
	require.NoError(t, err)
	_, err = h.engine.OpenPosition(ctx, "acc1", domain.NewTicker("BBB"), dec("40"))
	require.NoError(t, err)

	h.book.set("AAA", "3")
	vals, sum := h.engine.ValuePositions(ctx, "acc1")
	require.Len(t, vals, 2)
	assert.True(t, vals[0].UnrealizedPnlUSD.Equal(dec("50")))
	assert.True(t, vals[1].UnrealizedPnlUSD.IsZero())
	assert.Equal(t, 2, sum.Active)
	assert.True(t, sum.InvestedUSD.Equal(dec("140")))
	assert.True(t, sum.MarketValueUSD.Equal(dec("190")))
}

func TestEngineParseAndGet(t *testing.T) {
	h := newHarness(t, "AAA", "2")
	id, err := h.engine.ParseIdentifier("$aaa")
	require.NoError(t, err)
	assert.Equal(t, domain.NewTicker("AAA"), id)

	_, err = h.engine.GetPosition("acc1", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.engine.OpenPosition(context.Background(), "acc1", id, dec("10"))
	require.NoError(t, err)
	got, err := h.engine.GetPosition("acc1", id)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
	assert.Len(t, h.engine.ListPositions("acc1"), 1)
}
