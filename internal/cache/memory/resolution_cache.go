// Package memory provides an in-process domain.ResolutionCache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

type entry struct {
	asset     domain.ResolvedAsset
	expiresAt time.Time
}

// ResolutionCache keeps resolved assets in a map. Expired entries are
// dropped when read; there is no background sweep.
type ResolutionCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewResolutionCache creates an empty cache.
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{entries: make(map[string]entry), now: time.Now}
}

// WithClock replaces the time source.
func (c *ResolutionCache) WithClock(now func() time.Time) *ResolutionCache {
	c.now = now
	return c
}

func cacheKey(id domain.AssetIdentifier) string {
	return string(id.Kind) + ":" + string(id.Chain) + ":" + id.Key()
}

// Get returns the cached asset or domain.ErrNotFound when absent or expired.
func (c *ResolutionCache) Get(_ context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	key := cacheKey(id)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return domain.ResolvedAsset{}, domain.ErrNotFound
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return domain.ResolvedAsset{}, domain.ErrNotFound
	}
	return e.asset, nil
}

// Put stores asset for ttl. A non-positive ttl is a no-op.
func (c *ResolutionCache) Put(_ context.Context, id domain.AssetIdentifier, asset domain.ResolvedAsset, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[cacheKey(id)] = entry{asset: asset, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *ResolutionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ domain.ResolutionCache = (*ResolutionCache)(nil)
