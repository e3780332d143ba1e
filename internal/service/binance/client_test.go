package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SigTrack/internal/domain/models"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func testConfig(url string) Config {
	return Config{
		BaseURL:         url,
		Retry:           []time.Duration{0, 0, 0},
		BreakerFailures: 100,
	}
}

func TestKnownSymbolsFiltersTradingAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, pathExchangeInfo, r.URL.Path)
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING"},
			{"symbol":"OLDUSDT","status":"BREAK"},
			{"symbol":"ETHUSDT","status":"TRADING"}]}`))
	}))
	defer srv.Close()

	clk := &fixedClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := New(testConfig(srv.URL), WithClock(clk))

	syms, err := c.KnownSymbols(context.Background())
	require.NoError(t, err)
	assert.Len(t, syms, 2)
	assert.Contains(t, syms, "BTCUSDT")
	assert.NotContains(t, syms, "OLDUSDT")

	clk.now = clk.now.Add(59 * time.Minute)
	_, err = c.KnownSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	clk.now = clk.now.Add(time.Minute)
	_, err = c.KnownSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestSeededCachesSkipNetwork(t *testing.T) {
	c := New(testConfig("http://127.0.0.1:1"))
	c.SymbolCache().Set(map[string]struct{}{"BTCUSDT": {}})
	c.PriceCache().Set(map[string]float64{"BTCUSDT": 60000})

	syms, err := c.KnownSymbols(context.Background())
	require.NoError(t, err)
	assert.Contains(t, syms, "BTCUSDT")

	prices, err := c.BatchPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60000.0, prices["BTCUSDT"])
}

func TestBatchAndSinglePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sym := r.URL.Query().Get("symbol"); sym != "" {
			_, _ = w.Write([]byte(`{"symbol":"` + sym + `","price":"123.45"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"60000.10"},{"symbol":"BAD","price":"x"}]`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	prices, err := c.BatchPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60000.10, prices["BTCUSDT"])
	assert.NotContains(t, prices, "BAD")

	p, err := c.Price(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, 123.45, p)
}

func klineRow(open time.Time, low, high, close float64) []any {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []any{
		open.UnixMilli(), f(close), f(high), f(low), f(close), "1.0",
		open.Add(time.Minute - time.Millisecond).UnixMilli(),
		"0", 1, "0", "0", "0",
	}
}

func TestCandlesPaginate(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var all [][]any
	for i := 0; i < 5; i++ {
		all = append(all, klineRow(base.Add(time.Duration(i)*time.Minute), 100, 110, 105+float64(i)))
	}

	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		q := r.URL.Query()
		assert.Equal(t, "1m", q.Get("interval"))
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))
		var out [][]any
		for _, row := range all {
			ot := row[0].(int64)
			if ot >= start && ot <= end && len(out) < limit {
				out = append(out, row)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PageLimit = 2
	c := New(cfg)

	candles, err := c.Candles(context.Background(), "BTCUSDT", base, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, candles, 5)
	assert.Equal(t, int32(3), atomic.LoadInt32(&pages))
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].OpenTime.After(candles[i-1].OpenTime))
	}
	assert.Equal(t, 109.0, candles[4].Close)
	assert.Equal(t, 100.0, candles[0].Low)

	_, err = c.Candles(context.Background(), "BTCUSDT", base, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&pages), "second call served from cache")
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"1"}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	p, err := c.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRetryExhaustedIsNetworkError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.BatchPrices(context.Background())
	require.Error(t, err)
	var netErr *models.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, models.ErrNetwork, models.CodeOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Price(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestBreakerFailsFast(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retry = []time.Duration{0}
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	c := New(cfg)

	for i := 0; i < 2; i++ {
		_, err := c.Price(context.Background(), "BTCUSDT")
		require.Error(t, err)
	}
	_, err := c.Price(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Equal(t, models.ErrNetwork, models.CodeOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestParseKlineRejectsShortRow(t *testing.T) {
	_, err := parseKline([]json.RawMessage{json.RawMessage(`1`)})
	assert.Error(t, err)
}
