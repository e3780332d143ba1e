package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTTLCacheExpiresWithClock(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTLCacheWithClock(clk)

	require.NoError(t, c.SetBytes("k", []byte("v"), 30*time.Second))
	b, ok, err := c.GetBytes("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	clk.advance(31 * time.Second)
	_, ok, _ = c.GetBytes("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTLCacheWithClock(clk)
	c.Set("k", 1, 0)
	clk.advance(24 * time.Hour)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLCacheGetBytesWrongType(t *testing.T) {
	c := NewTTLCache()
	c.Set("k", "not bytes", time.Minute)
	_, ok, err := c.GetBytes("k")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestValueLoadCachesUntilTTL(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	v := NewValue[map[string]float64](5*time.Second, clk)

	calls := 0
	fetch := func() (map[string]float64, error) {
		calls++
		return map[string]float64{"BTCUSDT": float64(60000 + calls)}, nil
	}

	got, err := v.Load(fetch)
	require.NoError(t, err)
	assert.Equal(t, 60001.0, got["BTCUSDT"])

	clk.advance(4 * time.Second)
	got, _ = v.Load(fetch)
	assert.Equal(t, 60001.0, got["BTCUSDT"])
	assert.Equal(t, 1, calls)

	clk.advance(time.Second)
	got, _ = v.Load(fetch)
	assert.Equal(t, 60002.0, got["BTCUSDT"])
	assert.Equal(t, 2, calls)
	assert.Equal(t, clk.now, v.FetchedAt())
}

func TestValueLoadErrorIsNotCached(t *testing.T) {
	v := NewValue[int](time.Minute, nil)
	_, err := v.Load(func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	_, ok := v.Get()
	assert.False(t, ok)

	got, err := v.Load(func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestValueSetSuppliesFixedContents(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	v := NewValue[[]string](time.Hour, clk)
	v.Set([]string{"BTCUSDT"})
	got, err := v.Load(func() ([]string, error) { return nil, errors.New("should not fetch") })
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, got)
}

func TestRedisCacheGetSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "test")

	mock.ExpectSet("test:candles:BTCUSDT", []byte("[]"), 30*time.Second).SetVal("OK")
	require.NoError(t, c.SetBytes("candles:BTCUSDT", []byte("[]"), 30*time.Second))

	mock.ExpectGet("test:candles:BTCUSDT").SetVal("[]")
	b, ok, err := c.GetBytes("candles:BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("[]"), b)

	mock.ExpectGet("test:missing").RedisNil()
	_, ok, err = c.GetBytes("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet("test:broken").SetErr(errors.New("conn refused"))
	_, _, err = c.GetBytes("broken")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCacheReadsThroughAndWritesThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	clk := &fakeClock{now: time.Unix(0, 0)}
	lc := NewLayeredCache(NewRedisCacheFromClient(db, "test"), 5*time.Second, clk)

	mock.ExpectGet("test:price:BTCUSDT").SetVal("60000")
	b, ok, err := lc.GetBytes("price:BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("60000"), b)

	b, ok, err = lc.GetBytes("price:BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok, "second read served by L1")
	assert.Equal(t, []byte("60000"), b)

	clk.advance(6 * time.Second)
	mock.ExpectGet("test:price:BTCUSDT").RedisNil()
	_, ok, err = lc.GetBytes("price:BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("test:klines:x", []byte("[]"), time.Minute).SetErr(errors.New("readonly"))
	require.Error(t, lc.SetBytes("klines:x", []byte("[]"), time.Minute))
	mock.ExpectGet("test:klines:x").RedisNil()
	_, ok, _ = lc.GetBytes("klines:x")
	assert.False(t, ok, "failed write must not populate L1")

	assert.NoError(t, mock.ExpectationsWereMet())
}
