package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestGetPutExpiry(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewResolutionCache().WithClock(clk.now)
	ctx := context.Background()
	id := domain.NewTicker("wif")

	_, err := c.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	asset := domain.ResolvedAsset{Identifier: id, Symbol: "WIF", PriceUSD: decimal.NewFromInt(2)}
	require.NoError(t, c.Put(ctx, id, asset, time.Minute))

	got, err := c.Get(ctx, domain.NewTicker("WIF"))
	require.NoError(t, err)
	assert.Equal(t, "WIF", got.Symbol)

	clk.advance(time.Minute)
	_, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on read")
}

func TestAddressesAreCaseSensitive(t *testing.T) {
	c := NewResolutionCache()
	ctx := context.Background()
	lower := domain.NewAddress(domain.ChainSolana, "abcdefghijkmnopqrstuvwxyz123456789")
	upper := domain.NewAddress(domain.ChainSolana, "ABCDEFGHJKMNPQRSTUVWXYZ123456789ab")

	require.NoError(t, c.Put(ctx, lower, domain.ResolvedAsset{Symbol: "L"}, time.Minute))
	_, err := c.Get(ctx, upper)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNonPositiveTTLIsNoop(t *testing.T) {
	c := NewResolutionCache()
	require.NoError(t, c.Put(context.Background(), domain.NewTicker("ABC"), domain.ResolvedAsset{}, 0))
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := NewResolutionCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.NewTicker(fmt.Sprintf("TK%c", 'A'+i%4))
			for range 100 {
				_ = c.Put(ctx, id, domain.ResolvedAsset{Symbol: id.Key()}, time.Minute)
				if got, err := c.Get(ctx, id); err == nil {
					assert.Equal(t, id.Key(), got.Symbol)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}
