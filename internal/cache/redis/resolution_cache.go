package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResolutionCache implements domain.ResolutionCache with plain string keys
// and native Redis expiry, so every replica shares one freshness window.
//
// Key schema:
//
//	resolve:{kind}:{chain}:{key} - JSON-encoded domain.ResolvedAsset
type ResolutionCache struct {
	rdb *redis.Client
}

// NewResolutionCache creates a ResolutionCache backed by the given Client.
func NewResolutionCache(c *Client) *ResolutionCache {
	return &ResolutionCache{rdb: c.Underlying()}
}

func resolveKey(id domain.AssetIdentifier) string {
	chain := string(id.Chain)
	if chain == "" {
		chain = "-"
	}
	return "resolve:" + string(id.Kind) + ":" + chain + ":" + id.Key()
}

// Get returns the cached asset or domain.ErrNotFound when the key has
// expired or was never written.
func (rc *ResolutionCache) Get(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	data, err := rc.rdb.Get(ctx, resolveKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ResolvedAsset{}, domain.ErrNotFound
		}
		return domain.ResolvedAsset{}, fmt.Errorf("redis: get resolution %s: %w", id, err)
	}

	var asset domain.ResolvedAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return domain.ResolvedAsset{}, fmt.Errorf("redis: unmarshal resolution %s: %w", id, err)
	}
	return asset, nil
}

// Put stores asset with the given TTL. A non-positive ttl is a no-op.
func (rc *ResolutionCache) Put(ctx context.Context, id domain.AssetIdentifier, asset domain.ResolvedAsset, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("redis: marshal resolution %s: %w", id, err)
	}
	if err := rc.rdb.Set(ctx, resolveKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set resolution %s: %w", id, err)
	}
	return nil
}

// Invalidate drops the cached entry for id.
func (rc *ResolutionCache) Invalidate(ctx context.Context, id domain.AssetIdentifier) error {
	if err := rc.rdb.Del(ctx, resolveKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate resolution %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ResolutionCache = (*ResolutionCache)(nil)
