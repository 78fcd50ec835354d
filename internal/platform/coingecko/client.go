// Package coingecko resolves ticker symbols through the CoinGecko API.
package coingecko

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/platform/rest"
)

const (
	// Name is the provider name recorded as ResolvedAsset.Source.
	Name = "coingecko"
	// DefaultBaseURL is the public v3 API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// maxCandidates bounds how many symbol matches are fetched in detail.
	maxCandidates = 3
)

// Config holds adapter settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Platform is the CoinGecko asset platform whose contract address is
	// reported, e.g. "solana" or "ethereum".
	Platform string
}

// Client implements domain.Provider for CoinGecko.
type Client struct {
	rest     *rest.Client
	platform string
	now      func() time.Time
}

// New creates a CoinGecko adapter.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	platform := cfg.Platform
	if platform == "" {
		platform = "solana"
	}
	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"x-cg-demo-api-key": cfg.APIKey}
	}
	return &Client{
		rest:     rest.New(base, headers),
		platform: platform,
		now:      time.Now,
	}
}

// Rest exposes the underlying REST client so tests can swap transports.
func (c *Client) Rest() *rest.Client { return c.rest }

func (c *Client) Name() string { return Name }

// Supports accepts tickers only.
func (c *Client) Supports(id domain.AssetIdentifier) bool {
	return id.Kind == domain.AssetKindTicker && id.Value != ""
}

// Resolve searches for the symbol and returns the first candidate, in
// search-rank order, whose detail record matches it. The contract address on
// the configured platform is reported when present; the price may be absent
// for delisted coins.
func (c *Client) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	if !c.Supports(id) {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}

	var sr searchResponse
	if err := c.rest.GetJSON(ctx, "/search?query="+url.QueryEscape(id.Key()), &sr); err != nil {
		return domain.ResolvedAsset{}, c.wrap("search", err)
	}

	tried := 0
	for _, cand := range sr.Coins {
		if !strings.EqualFold(cand.Symbol, id.Key()) {
			continue
		}
		if tried == maxCandidates {
			break
		}
		tried++

		detail, err := c.coin(ctx, cand.ID)
		if errors.Is(err, domain.ErrAssetNotFound) {
			continue
		}
		if err != nil {
			return domain.ResolvedAsset{}, err
		}
		return c.toAsset(id, detail), nil
	}
	return domain.ResolvedAsset{}, domain.ErrAssetNotFound
}

func (c *Client) coin(ctx context.Context, coinID string) (coinDetail, error) {
	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")

	var d coinDetail
	if err := c.rest.GetJSON(ctx, "/coins/"+url.PathEscape(coinID)+"?"+q.Encode(), &d); err != nil {
		return coinDetail{}, c.wrap("coins", err)
	}
	return d, nil
}

func (c *Client) toAsset(id domain.AssetIdentifier, d coinDetail) domain.ResolvedAsset {
	return domain.ResolvedAsset{
		Identifier:  id,
		Address:     d.Platforms[c.platform],
		Symbol:      strings.ToUpper(d.Symbol),
		DisplayName: d.Name,
		PriceUSD:    d.MarketData.CurrentPrice["usd"],
		Source:      Name,
		ResolvedAt:  c.now().UTC(),
	}
}

func (c *Client) wrap(op string, err error) error {
	if errors.Is(err, domain.ErrAssetNotFound) {
		return domain.ErrAssetNotFound
	}
	return domain.NewProviderError(Name, op, err)
}

var _ domain.Provider = (*Client)(nil)
