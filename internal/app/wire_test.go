package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalledger/internal/config"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireFileBackendWithoutRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.Persistence.FilePath = filepath.Join(t.TempDir(), "ledger.json")
	cfg.Resolver.Order = []string{"dexscreener", "jupiter"}

	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, []string{"dexscreener", "jupiter"}, deps.Resolver.Providers())
	assert.NotNil(t, deps.Persister)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.RateLimiter)
	assert.Nil(t, deps.AuditStore)
	assert.Empty(t, deps.HealthChecks)
	assert.False(t, deps.Notifier.Enabled())

	require.NoError(t, deps.Persister.Load(context.Background()))
	assert.Zero(t, deps.Ledger.ActiveCount())
}

func TestWireNoPersistence(t *testing.T) {
	cfg := config.Defaults()
	cfg.Persistence.Backend = "none"
	cfg.Resolver.Cache = "none"

	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.LedgerStore)
	assert.Nil(t, deps.Persister)
	assert.Equal(t, []string{"pumpfun", "coingecko", "dexscreener", "jupiter"}, deps.Resolver.Providers())
}

func TestWireRejectsUnknownProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.Persistence.Backend = "none"
	cfg.Resolver.Order = []string{"birdeye"}

	_, _, err := Wire(context.Background(), &cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "birdeye")
}

func TestSharedWindow(t *testing.T) {
	limit, window := sharedWindow(5)
	assert.Equal(t, 5, limit)
	assert.Equal(t, time.Second, window)

	limit, window = sharedWindow(0.5)
	assert.Equal(t, 1, limit)
	assert.Equal(t, 2*time.Second, window)
}

func TestWatchModeNeedsRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "watch"
	cfg.Persistence.Backend = "none"

	a := New(&cfg, quietLogger())
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}
