package domain

import (
	"context"
	"time"
)

// ResolutionCache holds recently resolved assets. Get returns ErrNotFound on
// a miss or an expired entry. The cache is advisory; a miss only costs
// latency.
type ResolutionCache interface {
	Get(ctx context.Context, id AssetIdentifier) (ResolvedAsset, error)
	Put(ctx context.Context, id AssetIdentifier, asset ResolvedAsset, ttl time.Duration) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]StreamMessage, error)
}
