package model

import "time"

// TokenMetrics are the market metrics of a token. A nil field is unknown.
type TokenMetrics struct {
	TokenAddress string    `json:"token_address"`
	MarketCapUSD *float64  `json:"market_cap_usd,omitempty"`
	LiquidityUSD *float64  `json:"liquidity_usd,omitempty"`
	Holders      *int64    `json:"holders,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}
