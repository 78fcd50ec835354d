// Package dexscreener resolves tokens through the DexScreener public API.
package dexscreener

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/platform/rest"
)

// Name is the provider name recorded as ResolvedAsset.Source.
const Name = "dexscreener"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Config holds adapter settings.
type Config struct {
	BaseURL string
	// Chain is the DexScreener chainId that ticker searches and Solana
	// address lookups are restricted to.
	Chain string
	// MinLiquidityUSD drops pairs with less pooled liquidity.
	MinLiquidityUSD decimal.Decimal
}

// Client implements domain.Provider for DexScreener.
type Client struct {
	rest  *rest.Client
	chain string
	minLQ decimal.Decimal
	now   func() time.Time
}

// New creates a DexScreener adapter.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	chain := strings.ToLower(cfg.Chain)
	if chain == "" {
		chain = "solana"
	}
	return &Client{
		rest:  rest.New(base, nil),
		chain: chain,
		minLQ: cfg.MinLiquidityUSD,
		now:   time.Now,
	}
}

// Rest exposes the underlying REST client so tests can swap transports.
func (c *Client) Rest() *rest.Client { return c.rest }

func (c *Client) Name() string { return Name }

// Supports accepts tickers and addresses on any chain.
func (c *Client) Supports(id domain.AssetIdentifier) bool {
	return !id.IsZero()
}

// Resolve looks up an address through the tokens endpoint or a ticker through
// search, picking the pair with the deepest liquidity.
func (c *Client) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	var (
		path string
		op   string
	)
	if id.IsAddress() {
		op = "tokens"
		path = "/latest/dex/tokens/" + url.PathEscape(id.Value)
	} else {
		op = "search"
		path = "/latest/dex/search?q=" + url.QueryEscape(id.Key())
	}

	var resp pairsResponse
	if err := c.rest.GetJSON(ctx, path, &resp); err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return domain.ResolvedAsset{}, domain.ErrAssetNotFound
		}
		return domain.ResolvedAsset{}, domain.NewProviderError(Name, op, err)
	}

	best, ok := c.bestPair(id, resp.Pairs)
	if !ok {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}

	return domain.ResolvedAsset{
		Identifier:   id,
		Address:      best.BaseToken.Address,
		Symbol:       strings.ToUpper(best.BaseToken.Symbol),
		DisplayName:  best.BaseToken.Name,
		PriceUSD:     best.PriceUSD,
		LiquidityUSD: best.Liquidity.USD,
		Source:       Name,
		ResolvedAt:   c.now().UTC(),
	}, nil
}

func (c *Client) bestPair(id domain.AssetIdentifier, pairs []Pair) (Pair, bool) {
	var (
		best  Pair
		found bool
	)
	for _, p := range pairs {
		if !c.matches(id, p) {
			continue
		}
		if c.minLQ.IsPositive() && p.Liquidity.USD.LessThan(c.minLQ) {
			continue
		}
		if !found || p.Liquidity.USD.GreaterThan(best.Liquidity.USD) {
			best = p
			found = true
		}
	}
	return best, found
}

func (c *Client) matches(id domain.AssetIdentifier, p Pair) bool {
	switch {
	case id.Kind == domain.AssetKindTicker:
		return strings.EqualFold(p.ChainID, c.chain) && strings.EqualFold(p.BaseToken.Symbol, id.Key())
	case id.Chain == domain.ChainEVM:
		return strings.EqualFold(p.BaseToken.Address, id.Value)
	default:
		return strings.EqualFold(p.ChainID, c.chain) && p.BaseToken.Address == id.Value
	}
}

var _ domain.Provider = (*Client)(nil)
