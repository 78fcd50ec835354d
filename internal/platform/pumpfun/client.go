// Package pumpfun resolves bonding-curve tokens through the pump.fun frontend
// API.
package pumpfun

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

const (
	// Name is the provider name recorded as ResolvedAsset.Source.
	Name = "pumpfun"
	// DefaultBaseURL is the frontend API root.
	DefaultBaseURL = "https://frontend-api.pump.fun"
)

// tokenUnit is 10^6: every pump.fun mint uses six decimals.
var tokenUnit = decimal.New(1, 6)

// coin is the subset of /coins/{mint} the adapter reads.
type coin struct {
	Mint         string          `json:"mint"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	BondingCurve string          `json:"bonding_curve"`
	USDMarketCap decimal.Decimal `json:"usd_market_cap"`
	TotalSupply  decimal.Decimal `json:"total_supply"`
}

// Client implements domain.Provider for pump.fun.
type Client struct {
	rest *rest.Client
	now  func() time.Time
}

// New creates a pump.fun adapter.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		rest: rest.New(baseURL, map[string]string{"User-Agent": "signalledger/1.0"}),
		now:  time.Now,
	}
}

// Rest exposes the underlying REST client so tests can swap transports.
func (c *Client) Rest() *rest.Client { return c.rest }

func (c *Client) Name() string { return Name }

// Supports accepts Solana addresses only.
func (c *Client) Supports(id domain.AssetIdentifier) bool {
	return id.IsAddress() && id.Chain == domain.ChainSolana
}

// Resolve fetches the coin record for a mint. The USD price is derived from
// the market cap over the circulating supply in whole tokens. A record that
// carries no usable market cap or supply is reported as not found so the
// chain moves on to the next provider.
func (c *Client) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	if !c.Supports(id) {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}

	var cn coin
	if err := c.rest.GetJSON(ctx, "/coins/"+url.PathEscape(id.Value), &cn); err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return domain.ResolvedAsset{}, domain.ErrAssetNotFound
		}
		return domain.ResolvedAsset{}, domain.NewProviderError(Name, "coins", err)
	}
	if cn.Mint == "" || cn.BondingCurve == "" {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}

	if !cn.USDMarketCap.IsPositive() || !cn.TotalSupply.IsPositive() {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}
	price := cn.USDMarketCap.Div(cn.TotalSupply.Div(tokenUnit))

	return domain.ResolvedAsset{
		Identifier:  id,
		Address:     cn.Mint,
		Symbol:      strings.ToUpper(cn.Symbol),
		DisplayName: cn.Name,
		PriceUSD:    price,
		Source:      Name,
		ResolvedAt:  c.now().UTC(),
	}, nil
}

var _ domain.Provider = (*Client)(nil)
