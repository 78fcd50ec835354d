package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

type fakeProvider struct {
	name     string
	supports func(domain.AssetIdentifier) bool
	resolve  func(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(id domain.AssetIdentifier) bool {
	if f.supports == nil {
		return true
	}
	return f.supports(id)
}

func (f *fakeProvider) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.resolve(ctx, id)
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func notFound(name string) *fakeProvider {
	return &fakeProvider{name: name, resolve: func(context.Context, domain.AssetIdentifier) (domain.ResolvedAsset, error) {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}}
}

func failing(name string) *fakeProvider {
	return &fakeProvider{name: name, resolve: func(context.Context, domain.AssetIdentifier) (domain.ResolvedAsset, error) {
		return domain.ResolvedAsset{}, domain.NewProviderError(name, "resolve", errors.New("connection reset"))
	}}
}

func priced(name, price string) *fakeProvider {
	return &fakeProvider{name: name, resolve: func(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
		return domain.ResolvedAsset{
			Identifier: id,
			Symbol:     id.Key(),
			PriceUSD:   decimal.RequireFromString(price),
			Source:     name,
		}, nil
	}}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.ResolvedAsset
	ttls    map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]domain.ResolvedAsset{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[id.Key()]
	if !ok {
		return domain.ResolvedAsset{}, domain.ErrNotFound
	}
	return a, nil
}

func (c *mapCache) Put(_ context.Context, id domain.AssetIdentifier, a domain.ResolvedAsset, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id.Key()] = a
	c.ttls[id.Key()] = ttl
	return nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	return domain.ResolvedAsset{}, errors.New("redis: connection refused")
}

func (brokenCache) Put(context.Context, domain.AssetIdentifier, domain.ResolvedAsset, time.Duration) error {
	return errors.New("redis: connection refused")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackFirstSuccessWins(t *testing.T) {
	a := notFound("a")
	b := failing("b")
	c := priced("c", "2.00")
	d := priced("d", "9.99")

	r := New([]domain.Provider{a, b, c, d}, nil, Options{}, quietLogger())
	got, err := r.Resolve(context.Background(), domain.NewTicker("TICKR"))
	require.NoError(t, err)

	assert.Equal(t, "c", got.Source)
	assert.True(t, got.PriceUSD.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, 0, d.Calls(), "providers after the first success are never consulted")
}

func TestAllProvidersFailIsUnresolved(t *testing.T) {
	r := New([]domain.Provider{notFound("a"), failing("b")}, nil, Options{}, quietLogger())

	_, err := r.Resolve(context.Background(), domain.NewTicker("NOPE"))
	assert.ErrorIs(t, err, domain.ErrUnresolved)
}

func TestUnsupportedProvidersAreSkipped(t *testing.T) {
	addrOnly := priced("addr", "1")
	addrOnly.supports = func(id domain.AssetIdentifier) bool { return id.IsAddress() }
	ticker := priced("ticker", "3")

	r := New([]domain.Provider{addrOnly, ticker}, nil, Options{}, quietLogger())
	got, err := r.Resolve(context.Background(), domain.NewTicker("ABC"))
	require.NoError(t, err)
	assert.Equal(t, "ticker", got.Source)
	assert.Equal(t, 0, addrOnly.Calls())
}

func TestCacheHitMakesNoProviderCalls(t *testing.T) {
	p := priced("p", "1.5")
	cache := newMapCache()
	r := New([]domain.Provider{p}, cache, Options{CacheTTL: 30 * time.Second}, quietLogger())

	id := domain.NewTicker("abc")
	_, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), domain.NewTicker("ABC"))
	require.NoError(t, err)

	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, 30*time.Second, cache.ttls["ABC"])
}

func TestUnresolvedIsNotCached(t *testing.T) {
	p := notFound("p")
	cache := newMapCache()
	r := New([]domain.Provider{p}, cache, Options{}, quietLogger())

	for range 2 {
		_, err := r.Resolve(context.Background(), domain.NewTicker("ABC"))
		require.ErrorIs(t, err, domain.ErrUnresolved)
	}
	assert.Equal(t, 2, p.Calls())
	assert.Empty(t, cache.entries)
}

func TestCacheErrorsAreTreatedAsMiss(t *testing.T) {
	p := priced("p", "1")
	r := New([]domain.Provider{p}, brokenCache{}, Options{}, quietLogger())

	got, err := r.Resolve(context.Background(), domain.NewTicker("ABC"))
	require.NoError(t, err)
	assert.Equal(t, "p", got.Source)
}

func TestProviderTimeoutMovesToNext(t *testing.T) {
	slow := &fakeProvider{name: "slow", resolve: func(ctx context.Context, _ domain.AssetIdentifier) (domain.ResolvedAsset, error) {
		<-ctx.Done()
		return domain.ResolvedAsset{}, ctx.Err()
	}}
	fast := priced("fast", "4")

	r := New([]domain.Provider{slow, fast}, nil, Options{ProviderTimeout: 20 * time.Millisecond}, quietLogger())
	got, err := r.Resolve(context.Background(), domain.NewTicker("ABC"))
	require.NoError(t, err)
	assert.Equal(t, "fast", got.Source)
}

func TestCallerDeadlineStopsTheChain(t *testing.T) {
	slow := &fakeProvider{name: "slow", resolve: func(ctx context.Context, _ domain.AssetIdentifier) (domain.ResolvedAsset, error) {
		<-ctx.Done()
		return domain.ResolvedAsset{}, ctx.Err()
	}}
	next := priced("next", "4")

	r := New([]domain.Provider{slow, next}, nil, Options{ProviderTimeout: time.Minute}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Resolve(ctx, domain.NewTicker("ABC"))
	assert.ErrorIs(t, err, domain.ErrUnresolved)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, next.Calls())
}

func TestTickerAddressChase(t *testing.T) {
	const mint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	registry := &fakeProvider{
		name:     "registry",
		supports: func(id domain.AssetIdentifier) bool { return !id.IsAddress() },
		resolve: func(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
			return domain.ResolvedAsset{Identifier: id, Symbol: "BONK", Address: mint, Source: "registry"}, nil
		},
	}
	prices := &fakeProvider{
		name:     "prices",
		supports: func(id domain.AssetIdentifier) bool { return id.IsAddress() },
		resolve: func(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
			assert.Equal(t, mint, id.Value)
			assert.Equal(t, domain.ChainSolana, id.Chain)
			return domain.ResolvedAsset{Identifier: id, PriceUSD: decimal.RequireFromString("0.00002"), Source: "prices"}, nil
		},
	}

	r := New([]domain.Provider{registry, prices}, nil, Options{}, quietLogger())
	got, err := r.Resolve(context.Background(), domain.NewTicker("BONK"))
	require.NoError(t, err)

	assert.Equal(t, "BONK", got.Symbol)
	assert.Equal(t, domain.NewTicker("BONK"), got.Identifier)
	assert.True(t, got.HasPrice())
	assert.Equal(t, "registry+prices", got.Source)
}

func TestTickerAddressChaseFailureKeepsPricelessRecord(t *testing.T) {
	registry := &fakeProvider{
		name:     "registry",
		supports: func(id domain.AssetIdentifier) bool { return !id.IsAddress() },
		resolve: func(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
			return domain.ResolvedAsset{Identifier: id, Symbol: "XYZ", Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"}, nil
		},
	}

	r := New([]domain.Provider{registry}, nil, Options{}, quietLogger())
	got, err := r.Resolve(context.Background(), domain.NewTicker("XYZ"))
	require.NoError(t, err)
	assert.False(t, got.HasPrice())
	assert.Equal(t, "registry", got.Source)
}

func TestZeroIdentifierRejected(t *testing.T) {
	r := New(nil, nil, Options{}, quietLogger())
	_, err := r.Resolve(context.Background(), domain.AssetIdentifier{})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestProvidersOrder(t *testing.T) {
	r := New([]domain.Provider{notFound("x"), notFound("y")}, nil, Options{}, quietLogger())
	assert.Equal(t, []string{"x", "y"}, r.Providers())
}
