// Package jupiter resolves Solana mints through the Jupiter price API.
package jupiter

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/platform/rest"
)

const (
	// Name is the provider name recorded as ResolvedAsset.Source.
	Name = "jupiter"
	// DefaultBaseURL is the price v2 endpoint.
	DefaultBaseURL = "https://api.jup.ag/price/v2"
)

type priceResponse struct {
	Data map[string]*priceEntry `json:"data"`
}

type priceEntry struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Price decimal.Decimal `json:"price"`
}

// Client implements domain.Provider for Jupiter. It only knows prices, so
// Symbol and DisplayName are left empty.
type Client struct {
	rest *rest.Client
	now  func() time.Time
}

// New creates a Jupiter adapter.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{rest: rest.New(baseURL, nil), now: time.Now}
}

// Rest exposes the underlying REST client so tests can swap transports.
func (c *Client) Rest() *rest.Client { return c.rest }

func (c *Client) Name() string { return Name }

// Supports accepts Solana addresses only.
func (c *Client) Supports(id domain.AssetIdentifier) bool {
	return id.IsAddress() && id.Chain == domain.ChainSolana
}

// Resolve fetches the current USD price for a mint.
func (c *Client) Resolve(ctx context.Context, id domain.AssetIdentifier) (domain.ResolvedAsset, error) {
	if !c.Supports(id) {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}

	var pr priceResponse
	if err := c.rest.GetJSON(ctx, "?ids="+url.QueryEscape(id.Value), &pr); err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return domain.ResolvedAsset{}, domain.ErrAssetNotFound
		}
		return domain.ResolvedAsset{}, domain.NewProviderError(Name, "price", err)
	}

	entry, ok := pr.Data[id.Value]
	if !ok || entry == nil || !entry.Price.IsPositive() {
		return domain.ResolvedAsset{}, domain.ErrAssetNotFound
	}

	return domain.ResolvedAsset{
		Identifier: id,
		Address:    id.Value,
		PriceUSD:   entry.Price,
		Source:     Name,
		ResolvedAt: c.now().UTC(),
	}, nil
}

var _ domain.Provider = (*Client)(nil)
