package market

import "context"

// PriceQuote mirrors one entry of the provider's simple/price response.
type PriceQuote struct {
	USD          float64  `json:"usd"`
	USD24hChange *float64 `json:"usd_24h_change,omitempty"`
	MarketCap    *float64 `json:"usd_market_cap,omitempty"`
	Volume24h    *float64 `json:"usd_24h_vol,omitempty"`
}

type MarketCoin struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image,omitempty"`
	CurrentPrice             float64  `json:"current_price"`
	MarketCap                float64  `json:"market_cap"`
	MarketCapRank            *int     `json:"market_cap_rank,omitempty"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h,omitempty"`
	TotalVolume              float64  `json:"total_volume"`
}

type TrendingCoin struct {
	MarketCoin
	Description  string `json:"description"`
	TrendingRank int    `json:"trending_rank"`
}

type CoinDetails struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image,omitempty"`
	CurrentPrice             *float64 `json:"current_price,omitempty"`
	MarketCap                *float64 `json:"market_cap,omitempty"`
	MarketCapRank            *int     `json:"market_cap_rank,omitempty"`
	PriceChange24h           *float64 `json:"price_change_24h,omitempty"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h,omitempty"`
	TotalVolume              *float64 `json:"total_volume,omitempty"`
	Description              string   `json:"description"`
}

type ChartPoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Date      string  `json:"date"`
}

type SearchResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Thumb         string `json:"thumb,omitempty"`
	MarketCapRank *int   `json:"market_cap_rank,omitempty"`
}

// DataProvider is the read surface the chat and portfolio layers depend on.
type DataProvider interface {
	GetCurrentPrice(ctx context.Context, id string) (PriceQuote, error)
	GetMultiplePrices(ctx context.Context, ids []string) (map[string]PriceQuote, error)
	GetTrendingCoins(ctx context.Context) ([]TrendingCoin, error)
	GetCoinDetails(ctx context.Context, id string) (CoinDetails, error)
	GetPriceChart(ctx context.Context, id string, days int) ([]ChartPoint, error)
	SearchCoins(ctx context.Context, query string) ([]SearchResult, error)
	GetTopCoins(ctx context.Context, limit int) ([]MarketCoin, error)
}
