// Package marketfeed talks to the market-data provider: REST quote and
// history lookups plus a websocket quote stream.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the provider's REST endpoint.
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// dailyRequestLimit is the provider's free-tier quota.
	dailyRequestLimit = 25

	quoteCacheTTL   = 15 * time.Minute
	historyCacheTTL = 12 * time.Hour
)

// ErrRateLimitExceeded signals the daily request quota is spent.
type ErrRateLimitExceeded struct {
	Limit int
}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("daily request limit of %d exceeded", e.Limit)
}

// Quote is a current price snapshot for one symbol.
type Quote struct {
	Symbol    string
	Price     float64
	Change    float64
	ChangePct float64
	UpdatedAt time.Time
}

// HistoryBar is one daily OHLCV record.
type HistoryBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client is a rate-limited, caching market-data client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu           sync.Mutex
	requestCount int
	cache        map[string]cacheEntry
}

// NewClient creates a new market-data client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "marketfeed").Logger(),
		cache:      make(map[string]cacheEntry),
	}
}

// SetBaseURL overrides the REST endpoint. Used by tests and self-hosted
// proxies.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// GetRemainingRequests returns how many requests are left in today's
// quota.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dailyRequestLimit - c.requestCount
}

// ResetDailyCounter resets the quota. Called by the scheduler at
// midnight provider time.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.log.Debug().Msg("Daily request counter reset")
}

func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestCount >= dailyRequestLimit {
		return ErrRateLimitExceeded{Limit: dailyRequestLimit}
	}
	c.requestCount++
	return nil
}

// GetQuote fetches the current quote for a symbol. Responses are cached
// briefly so bursts of analytics calls do not burn quota.
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	params := map[string]string{"symbol": symbol}
	cacheKey := buildCacheKey("GLOBAL_QUOTE", params)
	if cached, ok := c.getFromCache(cacheKey); ok {
		return cached.(Quote), nil
	}

	body, err := c.request(ctx, "GLOBAL_QUOTE", params)
	if err != nil {
		return Quote{}, err
	}

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quote{}, fmt.Errorf("failed to decode quote response: %w", err)
	}
	if len(payload.GlobalQuote) == 0 {
		return Quote{}, fmt.Errorf("no quote data for %s", symbol)
	}

	quote := Quote{
		Symbol:    symbol,
		Price:     parseFloat64(payload.GlobalQuote["05. price"]),
		Change:    parseFloat64(payload.GlobalQuote["09. change"]),
		ChangePct: parseFloat64(payload.GlobalQuote["10. change percent"]),
		UpdatedAt: time.Now().UTC(),
	}

	c.setCache(cacheKey, quote, quoteCacheTTL)
	return quote, nil
}

// GetDailyHistory fetches the daily OHLCV series for a symbol, ordered
// by date ascending. full selects the provider's complete history
// instead of the recent window.
func (c *Client) GetDailyHistory(ctx context.Context, symbol string, full bool) ([]HistoryBar, error) {
	outputSize := "compact"
	if full {
		outputSize = "full"
	}
	params := map[string]string{"symbol": symbol, "outputsize": outputSize}
	cacheKey := buildCacheKey("TIME_SERIES_DAILY", params)
	if cached, ok := c.getFromCache(cacheKey); ok {
		return cached.([]HistoryBar), nil
	}

	body, err := c.request(ctx, "TIME_SERIES_DAILY", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	if len(payload.TimeSeries) == 0 {
		return nil, fmt.Errorf("no history data for %s", symbol)
	}

	bars := make([]HistoryBar, 0, len(payload.TimeSeries))
	for dateStr, fields := range payload.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		bars = append(bars, HistoryBar{
			Date:   date.UTC(),
			Open:   parseFloat64(fields["1. open"]),
			High:   parseFloat64(fields["2. high"]),
			Low:    parseFloat64(fields["3. low"]),
			Close:  parseFloat64(fields["4. close"]),
			Volume: parseInt64(fields["5. volume"]),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.setCache(cacheKey, bars, historyCacheTTL)
	return bars, nil
}

func (c *Client) request(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("function", function)
	values.Set("apikey", c.apiKey)
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from provider", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

// buildCacheKey produces a deterministic key from the function and its
// parameters. The api key never participates.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(function)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	return sb.String()
}

// parseFloat64 parses provider numerics leniently: empty, "None", and
// similar placeholders become 0, and a trailing percent sign is
// stripped.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
