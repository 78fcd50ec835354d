package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetKind distinguishes structural on-chain addresses from ticker symbols.
type AssetKind string

const (
	AssetKindAddress AssetKind = "address"
	AssetKindTicker  AssetKind = "ticker"
)

// Chain names the address family an identifier belongs to. Tickers carry no
// chain.
type Chain string

const (
	ChainNone   Chain = ""
	ChainSolana Chain = "solana"
	ChainEVM    Chain = "evm"
)

// AssetIdentifier names a tradable asset extracted from free text or supplied
// by a caller. It is immutable once constructed.
type AssetIdentifier struct {
	Kind  AssetKind `json:"kind"`
	Value string    `json:"value"`
	Chain Chain     `json:"chain,omitempty"`
}

// NewTicker returns a ticker identifier with its value upper-cased.
func NewTicker(symbol string) AssetIdentifier {
	return AssetIdentifier{Kind: AssetKindTicker, Value: strings.ToUpper(strings.TrimSpace(symbol))}
}

// NewAddress returns an address identifier on the given chain.
func NewAddress(chain Chain, addr string) AssetIdentifier {
	return AssetIdentifier{Kind: AssetKindAddress, Value: addr, Chain: chain}
}

// Key is the comparison key of the identifier. Tickers compare
// case-insensitively, addresses verbatim.
func (id AssetIdentifier) Key() string {
	if id.Kind == AssetKindTicker {
		return strings.ToUpper(id.Value)
	}
	return id.Value
}

// IsAddress reports whether the identifier is a structural address.
func (id AssetIdentifier) IsAddress() bool { return id.Kind == AssetKindAddress }

// IsZero reports whether the identifier is empty.
func (id AssetIdentifier) IsZero() bool { return id.Value == "" }

// Equal compares two identifiers by kind and key.
func (id AssetIdentifier) Equal(other AssetIdentifier) bool {
	return id.Kind == other.Kind && id.Key() == other.Key()
}

func (id AssetIdentifier) String() string { return id.Key() }

// ResolvedAsset is authoritative market data for one identifier as returned
// by a Provider. A zero PriceUSD means the price is unknown.
type ResolvedAsset struct {
	Identifier   AssetIdentifier `json:"identifier"`
	Address      string          `json:"address,omitempty"`
	Symbol       string          `json:"symbol"`
	DisplayName  string          `json:"display_name"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	Source       string          `json:"source"`
	ResolvedAt   time.Time       `json:"resolved_at"`
}

// HasPrice reports whether the record carries a usable price. Zero and
// negative prices are treated as unknown and never used for P&L.
func (a ResolvedAsset) HasPrice() bool {
	return a.PriceUSD.IsPositive()
}
