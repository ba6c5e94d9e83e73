package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	MaxBatchSize   = 10

	trendingCacheKey      = "trending"
	trendingListSize      = 10
	trendingDescribed     = 5
	searchResultLimit     = 10
	defaultTopLimit       = 10
	maxTopLimit           = 250
	defaultChartDays      = 7
	noDescription         = "No description available"
	descriptionNotFetched = "Description not available"
)

type ClientConfig struct {
	BaseURL          string
	Timeout          time.Duration
	UserAgent        string
	BatchSize        int
	BatchDelay       time.Duration
	DescriptionDelay time.Duration
}

// Client is the market-data client for a CoinGecko-compatible provider.
// Every operation follows cache lookup, rate-limited fetch with retry, then
// cache store. Concurrent misses on the same key share one fetch.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	fetcher    *Fetcher
	cache      *ResponseCache
	clock      Clock

	batchSize        int
	batchDelay       time.Duration
	descriptionDelay time.Duration

	group singleflight.Group
}

func NewClient(cfg ClientConfig, fetcher *Fetcher, cache *ResponseCache, clock Clock) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "CryptoChat/1.0"
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:        cfg.UserAgent,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		fetcher:          fetcher,
		cache:            cache,
		clock:            clock,
		batchSize:        cfg.BatchSize,
		batchDelay:       cfg.BatchDelay,
		descriptionDelay: cfg.DescriptionDelay,
	}
}

func (c *Client) GetCurrentPrice(ctx context.Context, id string) (PriceQuote, error) {
	id = strings.TrimSpace(id)
	q, err := cached(ctx, c, "price:"+id, func(ctx context.Context) (PriceQuote, error) {
		params := url.Values{}
		params.Set("ids", id)
		params.Set("vs_currencies", "usd")
		params.Set("include_24hr_change", "true")
		params.Set("include_market_cap", "true")
		params.Set("include_24hr_vol", "true")
		resp, err := fetch[map[string]PriceQuote](ctx, c, "/simple/price", params)
		if err != nil {
			return PriceQuote{}, err
		}
		q, ok := resp[id]
		if !ok {
			return PriceQuote{}, fmt.Errorf("no price data for %s: %w", id, ErrNotFound)
		}
		return q, nil
	})
	if err != nil {
		return PriceQuote{}, fmt.Errorf("fetch price for %s: %w", id, err)
	}
	return q, nil
}

// GetMultiplePrices looks up quotes for a set of ids in batches. Ids the
// provider has no data for are absent from the result.
func (c *Client) GetMultiplePrices(ctx context.Context, ids []string) (map[string]PriceQuote, error) {
	set := normalizeIDs(ids)
	if len(set) == 0 {
		return map[string]PriceQuote{}, nil
	}
	out, err := cached(ctx, c, "prices:"+strings.Join(set, ","), func(ctx context.Context) (map[string]PriceQuote, error) {
		batches := partition(set, c.batchSize)
		all := make(map[string]PriceQuote, len(set))
		for i, batch := range batches {
			if i > 0 && c.batchDelay > 0 {
				if err := c.clock.Sleep(ctx, c.batchDelay); err != nil {
					return nil, err
				}
			}
			params := url.Values{}
			params.Set("ids", strings.Join(batch, ","))
			params.Set("vs_currencies", "usd")
			params.Set("include_24hr_change", "true")
			params.Set("include_market_cap", "true")
			resp, err := fetch[map[string]PriceQuote](ctx, c, "/simple/price", params)
			if err != nil {
				return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			for id, q := range resp {
				all[id] = q
			}
		}
		return all, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	return copyQuotes(out), nil
}

type trendingResp struct {
	Coins []struct {
		Item struct {
			ID string `json:"id"`
		} `json:"item"`
	} `json:"coins"`
}

type coinResp struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description struct {
		EN string `json:"en"`
	} `json:"description"`
	Image struct {
		Large string `json:"large"`
	} `json:"image"`
	MarketData *struct {
		CurrentPrice             map[string]float64 `json:"current_price"`
		MarketCap                map[string]float64 `json:"market_cap"`
		MarketCapRank            *int               `json:"market_cap_rank"`
		PriceChange24h           *float64           `json:"price_change_24h"`
		PriceChangePercentage24h *float64           `json:"price_change_percentage_24h"`
		TotalVolume              map[string]float64 `json:"total_volume"`
	} `json:"market_data"`
}

type chartResp struct {
	Prices [][2]float64 `json:"prices"`
}

type searchResp struct {
	Coins []SearchResult `json:"coins"`
}

// GetTrendingCoins returns market data for the provider's trending list,
// enriched with a short description for the leading coins.
func (c *Client) GetTrendingCoins(ctx context.Context) ([]TrendingCoin, error) {
	out, err := cached(ctx, c, trendingCacheKey, func(ctx context.Context) ([]TrendingCoin, error) {
		trending, err := fetch[trendingResp](ctx, c, "/search/trending", nil)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, trendingListSize)
		for _, coin := range trending.Coins {
			if len(ids) == trendingListSize {
				break
			}
			if coin.Item.ID != "" {
				ids = append(ids, coin.Item.ID)
			}
		}
		if len(ids) == 0 {
			return []TrendingCoin{}, nil
		}

		params := marketsParams(len(ids))
		params.Set("ids", strings.Join(ids, ","))
		coins, err := fetch[[]MarketCoin](ctx, c, "/coins/markets", params)
		if err != nil {
			return nil, err
		}

		described := ids
		if len(described) > trendingDescribed {
			described = described[:trendingDescribed]
		}
		descriptions := make(map[string]string, len(described))
		for _, id := range described {
			descriptions[id] = c.describe(ctx, id)
		}

		result := make([]TrendingCoin, 0, len(coins))
		for i, coin := range coins {
			coin.Symbol = strings.ToUpper(coin.Symbol)
			desc, ok := descriptions[coin.ID]
			if !ok {
				desc = descriptionNotFetched
			}
			result = append(result, TrendingCoin{MarketCoin: coin, Description: desc, TrendingRank: i + 1})
		}
		return result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch trending coins: %w", err)
	}
	return append([]TrendingCoin(nil), out...), nil
}

func (c *Client) describe(ctx context.Context, id string) string {
	if c.descriptionDelay > 0 {
		if err := c.clock.Sleep(ctx, c.descriptionDelay); err != nil {
			return descriptionNotFetched
		}
	}
	params := coinParams(false)
	coin, err := fetch[coinResp](ctx, c, "/coins/"+url.PathEscape(id), params)
	if err != nil {
		log.Printf("market description for %s unavailable: %v", id, err)
		return descriptionNotFetched
	}
	return firstSentence(coin.Description.EN)
}

func (c *Client) GetCoinDetails(ctx context.Context, id string) (CoinDetails, error) {
	id = strings.TrimSpace(id)
	out, err := cached(ctx, c, "details:"+id, func(ctx context.Context) (CoinDetails, error) {
		coin, err := fetch[coinResp](ctx, c, "/coins/"+url.PathEscape(id), coinParams(true))
		if err != nil {
			return CoinDetails{}, err
		}
		d := CoinDetails{
			ID:          coin.ID,
			Symbol:      strings.ToUpper(coin.Symbol),
			Name:        coin.Name,
			Image:       coin.Image.Large,
			Description: firstSentence(coin.Description.EN),
		}
		if md := coin.MarketData; md != nil {
			d.CurrentPrice = lookupUSD(md.CurrentPrice)
			d.MarketCap = lookupUSD(md.MarketCap)
			d.MarketCapRank = md.MarketCapRank
			d.PriceChange24h = md.PriceChange24h
			d.PriceChangePercentage24h = md.PriceChangePercentage24h
			d.TotalVolume = lookupUSD(md.TotalVolume)
		}
		return d, nil
	})
	if err != nil {
		return CoinDetails{}, fmt.Errorf("fetch coin details for %s: %w", id, err)
	}
	return out, nil
}

func (c *Client) GetPriceChart(ctx context.Context, id string, days int) ([]ChartPoint, error) {
	id = strings.TrimSpace(id)
	if days <= 0 {
		days = defaultChartDays
	}
	key := fmt.Sprintf("chart:%s:%d", id, days)
	out, err := cached(ctx, c, key, func(ctx context.Context) ([]ChartPoint, error) {
		params := url.Values{}
		params.Set("vs_currency", "usd")
		params.Set("days", strconv.Itoa(days))
		if days <= 1 {
			params.Set("interval", "hourly")
		} else {
			params.Set("interval", "daily")
		}
		resp, err := fetch[chartResp](ctx, c, "/coins/"+url.PathEscape(id)+"/market_chart", params)
		if err != nil {
			return nil, err
		}
		points := make([]ChartPoint, 0, len(resp.Prices))
		for _, p := range resp.Prices {
			ts := int64(p[0])
			points = append(points, ChartPoint{
				Timestamp: ts,
				Price:     roundTo(p[1], 6),
				Date:      time.UnixMilli(ts).UTC().Format("2006-01-02T15:04:05.000Z"),
			})
		}
		return points, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chart data for %s: %w", id, err)
	}
	return append([]ChartPoint(nil), out...), nil
}

func (c *Client) SearchCoins(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	out, err := cached(ctx, c, "search:"+strings.ToLower(query), func(ctx context.Context) ([]SearchResult, error) {
		params := url.Values{}
		params.Set("query", query)
		resp, err := fetch[searchResp](ctx, c, "/search", params)
		if err != nil {
			return nil, err
		}
		coins := resp.Coins
		if len(coins) > searchResultLimit {
			coins = coins[:searchResultLimit]
		}
		results := make([]SearchResult, 0, len(coins))
		for _, coin := range coins {
			coin.Symbol = strings.ToUpper(coin.Symbol)
			results = append(results, coin)
		}
		return results, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search coins: %w", err)
	}
	return append([]SearchResult(nil), out...), nil
}

// GetTopCoins returns the largest coins by market capitalisation, in the
// order the provider ranks them.
func (c *Client) GetTopCoins(ctx context.Context, limit int) ([]MarketCoin, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	out, err := cached(ctx, c, fmt.Sprintf("top:%d", limit), func(ctx context.Context) ([]MarketCoin, error) {
		coins, err := fetch[[]MarketCoin](ctx, c, "/coins/markets", marketsParams(limit))
		if err != nil {
			return nil, err
		}
		for i := range coins {
			coins[i].Symbol = strings.ToUpper(coins[i].Symbol)
		}
		return coins, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch top coins: %w", err)
	}
	return append([]MarketCoin(nil), out...), nil
}

// cached serves key from the cache or loads it once for all concurrent
// callers. The shared load ignores any single caller's cancellation; a
// caller whose ctx ends stops waiting and gets ctx.Err().
func cached[T any](ctx context.Context, c *Client, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.cache.Get(key); ok {
			if t, ok := v.(T); ok {
				return t, nil
			}
		}
		t, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.cache.Put(key, t)
		return t, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func fetch[T any](ctx context.Context, c *Client, path string, params url.Values) (T, error) {
	return Execute(ctx, c.fetcher, func(ctx context.Context) (T, error) {
		var out T
		err := c.getJSON(ctx, path, params, &out)
		return out, err
	})
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func marketsParams(perPage int) url.Values {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")
	return params
}

func coinParams(marketData bool) url.Values {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", strconv.FormatBool(marketData))
	params.Set("community_data", "false")
	params.Set("developer_data", "false")
	params.Set("sparkline", "false")
	return params
}

// normalizeIDs returns the sorted, deduplicated, non-empty ids.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func partition(ids []string, size int) [][]string {
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

func copyQuotes(in map[string]PriceQuote) map[string]PriceQuote {
	out := make(map[string]PriceQuote, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return noDescription
	}
	if i := strings.Index(text, "."); i >= 0 {
		text = text[:i]
	}
	return text + "."
}

func lookupUSD(m map[string]float64) *float64 {
	v, ok := m["usd"]
	if !ok {
		return nil
	}
	return &v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
