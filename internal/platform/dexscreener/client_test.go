package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Chain: "solana"})
	c.Rest().WithHTTPClient(srv.Client())
	return c
}

func TestResolveAddressPicksDeepestPair(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/"+bonkMint, r.URL.Path)
		_, _ = w.Write([]byte(`{"pairs":[
			{"chainId":"solana","pairAddress":"P1","baseToken":{"address":"` + bonkMint + `","name":"Bonk","symbol":"Bonk"},"priceUsd":"0.000021","liquidity":{"usd":5000}},
			{"chainId":"solana","pairAddress":"P2","baseToken":{"address":"` + bonkMint + `","name":"Bonk","symbol":"Bonk"},"priceUsd":"0.000022","liquidity":{"usd":900000}},
			{"chainId":"solana","pairAddress":"P3","baseToken":{"address":"OTHER","name":"x","symbol":"X"},"priceUsd":"9","liquidity":{"usd":99000000}}
		]}`))
	})

	got, err := c.Resolve(context.Background(), domain.NewAddress(domain.ChainSolana, bonkMint))
	require.NoError(t, err)
	assert.Equal(t, "BONK", got.Symbol)
	assert.Equal(t, Name, got.Source)
	assert.True(t, got.PriceUSD.Equal(decimal.RequireFromString("0.000022")))
	assert.True(t, got.LiquidityUSD.Equal(decimal.NewFromInt(900000)))
}

func TestResolveTickerFiltersChainAndSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/search", r.URL.Path)
		assert.Equal(t, "TICKR", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"pairs":[
			{"chainId":"ethereum","baseToken":{"address":"0xabc","name":"Tickr Eth","symbol":"TICKR"},"priceUsd":"5","liquidity":{"usd":10000000}},
			{"chainId":"solana","baseToken":{"address":"MintA","name":"Tickr","symbol":"tickr"},"priceUsd":"2.00","liquidity":{"usd":40000}},
			{"chainId":"solana","baseToken":{"address":"MintB","name":"Other","symbol":"OTHER"},"priceUsd":"1","liquidity":{"usd":80000}}
		]}`))
	})

	got, err := c.Resolve(context.Background(), domain.NewTicker("tickr"))
	require.NoError(t, err)
	assert.Equal(t, "MintA", got.Address)
	assert.True(t, got.PriceUSD.Equal(decimal.NewFromInt(2)))
}

func TestResolveMinLiquidity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs":[{"chainId":"solana","baseToken":{"address":"MintA","symbol":"TICKR"},"priceUsd":"2","liquidity":{"usd":900}}]}`))
	})
	c.minLQ = decimal.NewFromInt(10000)

	_, err := c.Resolve(context.Background(), domain.NewTicker("TICKR"))
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestResolveEmptyPairsIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	})

	_, err := c.Resolve(context.Background(), domain.NewAddress(domain.ChainSolana, bonkMint))
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestResolveFailuresAreProviderErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "LIMIT":
			w.WriteHeader(http.StatusTooManyRequests)
		case "BROKEN":
			_, _ = w.Write([]byte(`{"pairs":[`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	for _, q := range []string{"LIMIT", "BROKEN", "OTHER"} {
		_, err := c.Resolve(context.Background(), domain.NewTicker(q))
		require.Error(t, err, q)
		assert.True(t, domain.IsProviderError(err), q)
		assert.NotErrorIs(t, err, domain.ErrAssetNotFound, q)
	}

	_, err := c.Resolve(context.Background(), domain.NewTicker("LIMIT"))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestResolveHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Resolve(ctx, domain.NewTicker("SLOW"))
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}
