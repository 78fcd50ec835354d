package domain

import "context"

// Provider wraps exactly one external market-data source. Resolve returns
// ErrAssetNotFound when the source has no record, a *ProviderError for any
// other failure, and must honour ctx cancellation. Providers never cache.
type Provider interface {
	Name() string
	Supports(id AssetIdentifier) bool
	Resolve(ctx context.Context, id AssetIdentifier) (ResolvedAsset, error)
}

// AssetResolver resolves an identifier through the cache and provider chain.
// It returns an error wrapping ErrUnresolved when no provider could answer.
type AssetResolver interface {
	Resolve(ctx context.Context, id AssetIdentifier) (ResolvedAsset, error)
}
