package coingecko

import "github.com/shopspring/decimal"

type searchResponse struct {
	Coins []searchCoin `json:"coins"`
}

type searchCoin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
}

type coinDetail struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Name       string            `json:"name"`
	Platforms  map[string]string `json:"platforms"`
	MarketData struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
		TotalVolume  map[string]decimal.Decimal `json:"total_volume"`
	} `json:"market_data"`
}
