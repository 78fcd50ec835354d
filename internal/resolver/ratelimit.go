package resolver

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// Throttled wraps a provider with a token-bucket limiter so one chatty signal
// burst cannot exhaust a third-party quota.
type Throttled struct {
	domain.Provider
	limiter *rate.Limiter
}

// Throttle returns p limited to rps requests per second with the given burst.
// A non-positive rps returns p unchanged.
func Throttle(p domain.Provider, rps float64, burst int) domain.Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Resolve waits for a token, then delegates. A wait that cannot finish
// before ctx's deadline is a ProviderError so the chain moves on.
func (t *Throttled) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.ResolvedAsset{}, domain.NewProviderError(t.Name(), "rate limit", err)
	}
	return t.Provider.Resolve(ctx, id)
}

// Shared wraps a provider with a limiter shared across replicas, keyed by
// provider name.
type Shared struct {
	domain.Provider
	limiter domain.RateLimiter
}

// ShareLimit returns p gated by limiter.Wait. A nil limiter returns p
// unchanged.
func ShareLimit(p domain.Provider, limiter domain.RateLimiter) domain.Provider {
	if limiter == nil {
		return p
	}
	return &Shared{Provider: p, limiter: limiter}
}

// Resolve waits for the shared budget, then delegates.
func (s *Shared) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	if err := s.limiter.Wait(ctx, "provider:"+s.Name()); err != nil {
		return domain.ResolvedAsset{}, domain.NewProviderError(s.Name(), "shared rate limit", err)
	}
	return s.Provider.Resolve(ctx, id)
}
