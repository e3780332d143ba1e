// Package binance implements the market data gate against the Binance Spot
// REST API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"SigTrack/internal/domain/models"
	drepo "SigTrack/internal/domain/repository"
	"SigTrack/internal/service/cache"
	apphttp "SigTrack/pkg/http"
	applogger "SigTrack/pkg/logger"
)

const (
	pathExchangeInfo = "/api/v3/exchangeInfo"
	pathTickerPrice  = "/api/v3/ticker/price"
	pathKlines       = "/api/v3/klines"

	statusTrading = "TRADING"
)

// Config holds the gate's tunables.
type Config struct {
	BaseURL         string
	Interval        drepo.Interval
	PageLimit       int
	PageDelay       time.Duration
	Retry           []time.Duration
	SymbolsTTL      time.Duration
	PricesTTL       time.Duration
	CandlesTTL      time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig mirrors the venue's published limits.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api.binance.com",
		Interval:        drepo.Interval1m,
		PageLimit:       1000,
		PageDelay:       20 * time.Millisecond,
		Retry:           []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond},
		SymbolsTTL:      time.Hour,
		PricesTTL:       5 * time.Second,
		CandlesTTL:      30 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Option configures Client.
type Option func(*Client)

// WithClock sets the clock used by the TTL caches.
func WithClock(clk cache.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithStore sets the byte cache used for single prices and candle ranges.
func WithStore(store cache.BytesCache) Option {
	return func(c *Client) { c.store = store }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *apphttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *applogger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client is the Binance market data gate.
type Client struct {
	cfg     Config
	http    *apphttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	clock   cache.Clock
	store   cache.BytesCache
	log     *applogger.Logger

	symbols *cache.Value[map[string]struct{}]
	prices  *cache.Value[map[string]float64]
}

var _ drepo.MarketData = (*Client)(nil)

// New creates a gate. Zero-valued config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Client {
	cfg = withDefaults(cfg)
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = apphttp.NewClient(apphttp.WithTimeout(10 * time.Second))
	}
	if c.store == nil {
		c.store = cache.NewTTLCacheWithClock(c.clock)
	}
	if c.log == nil {
		c.log = applogger.NewNop()
	}

	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	c.limiter = rate.NewLimiter(limit, 1)

	st := gobreaker.Settings{Name: "binance", Timeout: cfg.BreakerTimeout}
	failures := cfg.BreakerFailures
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= failures }
	st.IsSuccessful = func(err error) bool {
		if err == nil {
			return true
		}
		var se *apphttp.StatusError
		return errors.As(err, &se) && !se.Temporary()
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		c.log.Warn("circuit breaker state change",
			applogger.String("breaker", name),
			applogger.String("from", from.String()),
			applogger.String("to", to.String()))
	}
	c.breaker = gobreaker.NewCircuitBreaker(st)

	c.symbols = cache.NewValue[map[string]struct{}](cfg.SymbolsTTL, c.clock)
	c.prices = cache.NewValue[map[string]float64](cfg.PricesTTL, c.clock)
	return c
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !drepo.IsValidInterval(cfg.Interval) {
		cfg.Interval = def.Interval
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > def.PageLimit {
		cfg.PageLimit = def.PageLimit
	}
	if len(cfg.Retry) == 0 {
		cfg.Retry = []time.Duration{0}
	}
	if cfg.SymbolsTTL <= 0 {
		cfg.SymbolsTTL = def.SymbolsTTL
	}
	if cfg.PricesTTL <= 0 {
		cfg.PricesTTL = def.PricesTTL
	}
	if cfg.CandlesTTL <= 0 {
		cfg.CandlesTTL = def.CandlesTTL
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	return cfg
}

// SymbolCache exposes the known-symbol cache so callers can seed it.
func (c *Client) SymbolCache() *cache.Value[map[string]struct{}] { return c.symbols }

// PriceCache exposes the batch price cache so callers can seed it.
func (c *Client) PriceCache() *cache.Value[map[string]float64] { return c.prices }

type exchangeInfo struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// KnownSymbols returns the set of symbols currently TRADING.
func (c *Client) KnownSymbols(ctx context.Context) (map[string]struct{}, error) {
	return c.symbols.Load(func() (map[string]struct{}, error) {
		var info exchangeInfo
		if err := c.get(ctx, "exchangeInfo", pathExchangeInfo, nil, &info); err != nil {
			return nil, err
		}
		out := make(map[string]struct{}, len(info.Symbols))
		for _, s := range info.Symbols {
			if s.Status == statusTrading {
				out[s.Symbol] = struct{}{}
			}
		}
		return out, nil
	})
}

// BatchPrices returns the last price of every listed symbol.
func (c *Client) BatchPrices(ctx context.Context) (map[string]float64, error) {
	return c.prices.Load(func() (map[string]float64, error) {
		var rows []tickerPrice
		if err := c.get(ctx, "ticker/price", pathTickerPrice, nil, &rows); err != nil {
			return nil, err
		}
		out := make(map[string]float64, len(rows))
		for _, r := range rows {
			if v, err := strconv.ParseFloat(r.Price, 64); err == nil {
				out[r.Symbol] = v
			}
		}
		return out, nil
	})
}

// Price returns the last price of one symbol.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)
	key := "price:" + symbol
	if b, ok, err := c.store.GetBytes(key); err == nil && ok {
		if v, err := strconv.ParseFloat(string(b), 64); err == nil {
			return v, nil
		}
	}

	var row tickerPrice
	q := map[string][]string{"symbol": {symbol}}
	if err := c.get(ctx, "ticker/price "+symbol, pathTickerPrice, q, &row); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(row.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %s: %w", symbol, err)
	}
	c.storeBytes(key, []byte(row.Price), c.cfg.PricesTTL)
	return v, nil
}

// Candles returns the candles whose open time lies in [start, end], in
// ascending order, paging through the venue in chunks of PageLimit.
func (c *Client) Candles(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	symbol = strings.ToUpper(symbol)
	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	if endMs < startMs {
		return nil, nil
	}

	key := fmt.Sprintf("klines:%s:%s:%d:%d", symbol, c.cfg.Interval, startMs, endMs)
	if b, ok, err := c.store.GetBytes(key); err == nil && ok {
		var cached []models.Candle
		if err := json.Unmarshal(b, &cached); err == nil {
			return cached, nil
		}
	}

	var out []models.Candle
	cur := startMs
	for cur <= endMs {
		page, err := c.klinesPage(ctx, symbol, cur, endMs)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < c.cfg.PageLimit {
			break
		}
		next := page[len(page)-1].CloseTime.UnixMilli() + 1
		if next <= cur {
			break
		}
		cur = next
	}

	if b, err := json.Marshal(out); err == nil {
		c.storeBytes(key, b, c.cfg.CandlesTTL)
	}
	return out, nil
}

func (c *Client) klinesPage(ctx context.Context, symbol string, startMs, endMs int64) ([]models.Candle, error) {
	q := map[string][]string{
		"symbol":    {symbol},
		"interval":  {string(c.cfg.Interval)},
		"startTime": {strconv.FormatInt(startMs, 10)},
		"endTime":   {strconv.FormatInt(endMs, 10)},
		"limit":     {strconv.Itoa(c.cfg.PageLimit)},
	}
	var rows [][]json.RawMessage
	if err := c.get(ctx, "klines "+symbol, pathKlines, q, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		cd, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s row %d: %w", symbol, i, err)
		}
		out = append(out, cd)
	}
	return out, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 7 {
		return models.Candle{}, fmt.Errorf("short row: %d fields", len(row))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return models.Candle{}, fmt.Errorf("close time: %w", err)
	}
	var px [4]float64
	for i := range px {
		v, ok := models.ParsePrice(row[i+1])
		if !ok {
			return models.Candle{}, fmt.Errorf("price field %d: %s", i+1, row[i+1])
		}
		px[i] = v
	}
	return models.Candle{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		Open:      px[0],
		High:      px[1],
		Low:       px[2],
		Close:     px[3],
		CloseTime: time.UnixMilli(closeMs).UTC(),
	}, nil
}

// get performs one GET with pacing, the circuit breaker and the retry
// schedule. Every failure surfaces as *models.NetworkError.
func (c *Client) get(ctx context.Context, op, path string, query map[string][]string, dest any) error {
	var lastErr error
	for attempt, delay := range c.cfg.Retry {
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return &models.NetworkError{Op: op, Err: err}
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return &models.NetworkError{Op: op, Err: err}
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.http.SendAndParse(ctx, &apphttp.RequestOptions{
				Method:      apphttp.MethodGet,
				URL:         c.cfg.BaseURL + path,
				QueryParams: query,
			}, dest)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		c.log.Debug("binance request failed",
			applogger.String("op", op),
			applogger.Int("attempt", attempt+1),
			applogger.Error(err))
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return &models.NetworkError{Op: op, Err: lastErr}
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *apphttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func (c *Client) storeBytes(key string, b []byte, ttl time.Duration) {
	if err := c.store.SetBytes(key, b, ttl); err != nil {
		c.log.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
