package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentBarsParsesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		w.Write([]byte(`[
			[1700000000000,"50000.1","50500.2","49800.3","50200.4","123.45",1700003599999,"0",10,"0","0","0"],
			[1700003600000,"50200.4","50900.0","50100.0","50800.5","98.76",1700007199999,"0",10,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	f := NewBinanceFeed(srv.URL, "")
	bars, err := f.RecentBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), bars[0].Time)
	assert.True(t, bars[0].Open.Equal(decimal.NewFromFloat(50000.1)))
	assert.True(t, bars[0].High.Equal(decimal.NewFromFloat(50500.2)))
	assert.True(t, bars[0].Low.Equal(decimal.NewFromFloat(49800.3)))
	assert.True(t, bars[0].Close.Equal(decimal.NewFromFloat(50200.4)))
	assert.True(t, bars[1].Close.Equal(decimal.NewFromFloat(50800.5)))
}

func TestRecentBarsSkipsMalformedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			[1700000000000,"not-a-number","1","1","1","1"],
			[1700003600000,"2","3","1","2","5"]
		]`))
	}))
	defer srv.Close()

	f := NewBinanceFeed(srv.URL, "")
	bars, err := f.RecentBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(decimal.NewFromInt(2)))
}

func TestRecentBarsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewBinanceFeed(srv.URL, "")
	_, err := f.RecentBars(context.Background(), "BTCUSDT", "1h", 2)
	assert.Error(t, err)
}

func TestLastPriceDefaultsToZero(t *testing.T) {
	f := NewBinanceFeed("http://unused", "")
	assert.True(t, f.LastPrice("BTCUSDT").IsZero())
}
