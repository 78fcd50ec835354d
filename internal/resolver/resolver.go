// Package resolver turns asset identifiers into priced market data by
// consulting a cache and then a fixed priority list of providers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/metrics"
)

const (
	DefaultCacheTTL        = time.Minute
	DefaultProviderTimeout = 5 * time.Second
)

// Options tunes a Resolver. Zero values take the defaults.
type Options struct {
	CacheTTL        time.Duration
	ProviderTimeout time.Duration
}

// Resolver walks its providers sequentially; the first success wins and is
// cached. It is safe for concurrent use.
type Resolver struct {
	providers []domain.Provider
	cache     domain.ResolutionCache
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Resolver. cache may be nil to disable caching.
func New(providers []domain.Provider, cache domain.ResolutionCache, opts Options, logger *slog.Logger) *Resolver {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		providers: providers,
		cache:     cache,
		ttl:       opts.CacheTTL,
		timeout:   opts.ProviderTimeout,
		logger:    logger.With(slog.String("component", "resolver")),
	}
}

// Providers returns the provider names in priority order.
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Resolve returns the asset record for id or an error wrapping
// domain.ErrUnresolved when every provider failed or ctx expired first.
func (r *Resolver) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	if id.IsZero() {
		return domain.ResolvedAsset{}, domain.ErrInvalidIdentifier
	}

	if asset, ok := r.fromCache(ctx, id); ok {
		return asset, nil
	}

	asset, err := r.walk(ctx, id)
	if err != nil {
		metrics.Resolutions.WithLabelValues("unresolved").Inc()
		return domain.ResolvedAsset{}, err
	}

	if id.Kind == domain.AssetKindTicker && !asset.HasPrice() && asset.Address != "" {
		asset = r.chaseAddress(ctx, asset)
	}

	r.store(ctx, id, asset)
	metrics.Resolutions.WithLabelValues("resolved").Inc()
	return asset, nil
}

func (r *Resolver) walk(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	tried := 0
	for _, p := range r.providers {
		if !p.Supports(id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return domain.ResolvedAsset{}, fmt.Errorf("resolver: resolve %s: %w", id, domain.ErrUnresolved)
		}
		tried++

		asset, err := r.call(ctx, p, id)
		if err == nil {
			r.logger.DebugContext(ctx, "resolver: resolved",
				slog.String("asset", id.Key()),
				slog.String("provider", p.Name()),
				slog.String("price_usd", asset.PriceUSD.String()),
			)
			return asset, nil
		}

		if errors.Is(err, domain.ErrAssetNotFound) {
			r.logger.DebugContext(ctx, "resolver: provider has no record",
				slog.String("asset", id.Key()),
				slog.String("provider", p.Name()),
			)
			continue
		}
		r.logger.WarnContext(ctx, "resolver: provider failed",
			slog.String("asset", id.Key()),
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
	}
	return domain.ResolvedAsset{}, fmt.Errorf("resolver: resolve %s after %d providers: %w", id, tried, domain.ErrUnresolved)
}

// call runs one provider under the per-provider timeout. Anything other than
// success or not-found is reported as a ProviderError.
func (r *Resolver) call(ctx context.Context, p domain.Provider, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	asset, err := p.Resolve(pctx, id)
	metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(p.Name(), "ok").Inc()
		if asset.Source == "" {
			asset.Source = p.Name()
		}
		if asset.Identifier.IsZero() {
			asset.Identifier = id
		}
		return asset, nil
	case errors.Is(err, domain.ErrAssetNotFound):
		metrics.ProviderRequests.WithLabelValues(p.Name(), "not_found").Inc()
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	default:
		metrics.ProviderRequests.WithLabelValues(p.Name(), "error").Inc()
		if !domain.IsProviderError(err) {
			err = domain.NewProviderError(p.Name(), "resolve", err)
		}
		return domain.ResolvedAsset{}, err
	}
}

// chaseAddress prices a ticker record that only carried a contract address by
// resolving the address through the same provider chain.
func (r *Resolver) chaseAddress(ctx context.Context, asset domain.ResolvedAsset) domain.ResolvedAsset {
	chain := domain.ChainSolana
	if len(asset.Address) == 42 && asset.Address[:2] == "0x" {
		chain = domain.ChainEVM
	}
	addrID := domain.NewAddress(chain, asset.Address)

	priced, err := r.walk(ctx, addrID)
	if err != nil {
		r.logger.InfoContext(ctx, "resolver: ticker address has no price",
			slog.String("asset", asset.Identifier.Key()),
			slog.String("address", asset.Address),
		)
		return asset
	}
	asset.PriceUSD = priced.PriceUSD
	if priced.LiquidityUSD.IsPositive() {
		asset.LiquidityUSD = priced.LiquidityUSD
	}
	asset.Source = asset.Source + "+" + priced.Source
	if asset.Symbol == "" {
		asset.Symbol = priced.Symbol
	}
	return asset
}

func (r *Resolver) fromCache(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, bool) {
	if r.cache == nil {
		return domain.ResolvedAsset{}, false
	}
	asset, err := r.cache.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "resolver: cache read failed",
				slog.String("asset", id.Key()),
				slog.String("error", err.Error()),
			)
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return domain.ResolvedAsset{}, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return asset, true
}

func (r *Resolver) store(ctx context.Context, id domain.AssetIdentifier, asset domain.ResolvedAsset) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, id, asset, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "resolver: cache write failed",
			slog.String("asset", id.Key()),
			slog.String("error", err.Error()),
		)
	}
}
