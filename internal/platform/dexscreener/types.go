package dexscreener

import "github.com/shopspring/decimal"

// pairsResponse is the envelope of both the tokens and search endpoints.
type pairsResponse struct {
	Pairs []Pair `json:"pairs"`
}

// Pair is a single DEX trading pair.
type Pair struct {
	ChainID     string          `json:"chainId"`
	DexID       string          `json:"dexId"`
	PairAddress string          `json:"pairAddress"`
	BaseToken   Token           `json:"baseToken"`
	QuoteToken  Token           `json:"quoteToken"`
	PriceUSD    decimal.Decimal `json:"priceUsd"`
	Liquidity   Liquidity       `json:"liquidity"`
	Volume      Volume          `json:"volume"`
}

// Token identifies one side of a pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Liquidity is the pooled value of a pair.
type Liquidity struct {
	USD decimal.Decimal `json:"usd"`
}

// Volume is traded notional per window.
type Volume struct {
	H24 decimal.Decimal `json:"h24"`
}
