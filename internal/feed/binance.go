package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE BAR FEED - OHLCV candles for the analyst
// ═══════════════════════════════════════════════════════════════════════════════
//
// REST klines for history, websocket kline stream for the live last price.
// The websocket is best-effort: the supervisor only depends on RecentBars.
//
// ═══════════════════════════════════════════════════════════════════════════════

// BarSource supplies recent candles for a symbol/timeframe.
type BarSource interface {
	RecentBars(ctx context.Context, symbol, timeframe string, count int) ([]types.Bar, error)
	LastPrice(symbol string) decimal.Decimal
}

// BinanceFeed implements BarSource against the Binance public API.
type BinanceFeed struct {
	mu      sync.RWMutex
	apiURL  string
	wsURL   string
	client  *http.Client
	prices  map[string]decimal.Decimal
	running bool
	stopCh  chan struct{}
}

// NewBinanceFeed creates a feed using the given REST and websocket endpoints.
func NewBinanceFeed(apiURL, wsURL string) *BinanceFeed {
	return &BinanceFeed{
		apiURL: apiURL,
		wsURL:  wsURL,
		client: &http.Client{Timeout: 10 * time.Second},
		prices: make(map[string]decimal.Decimal),
	}
}

// Start launches the live price stream for the given symbols.
func (f *BinanceFeed) Start(symbols []string, timeframe string) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.mu.Unlock()

	for _, symbol := range symbols {
		go f.streamLoop(symbol, timeframe)
	}
	log.Info().Strs("symbols", symbols).Msg("📈 Binance feed started")
}

// Stop halts all stream loops.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	log.Info().Msg("Binance feed stopped")
}

// LastPrice returns the most recent streamed price, zero when unknown.
func (f *BinanceFeed) LastPrice(symbol string) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.prices[symbol]
}

// RecentBars fetches the last `count` completed candles.
func (f *BinanceFeed) RecentBars(ctx context.Context, symbol, timeframe string, count int) ([]types.Bar, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d", f.apiURL, symbol, timeframe, count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines %s: status %d", symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	bars := make([]types.Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		bar, err := parseKline(k)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping malformed kline")
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKline(k []json.RawMessage) (types.Bar, error) {
	var openMs int64
	if err := json.Unmarshal(k[0], &openMs); err != nil {
		return types.Bar{}, err
	}

	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return types.Bar{}, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return types.Bar{}, err
		}
		fields[i] = d
	}

	return types.Bar{
		Time:   time.UnixMilli(openMs).UTC(),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}

// streamLoop maintains the kline websocket for one symbol, reconnecting on
// failure.
func (f *BinanceFeed) streamLoop(symbol, timeframe string) {
	url := fmt.Sprintf("%s/%s@kline_%s", f.wsURL, strings.ToLower(symbol), timeframe)

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("⚠️ Binance websocket dial failed, retrying")
			time.Sleep(5 * time.Second)
			continue
		}

		f.readLoop(conn, symbol)
		conn.Close()
	}
}

func (f *BinanceFeed) readLoop(conn *websocket.Conn, symbol string) {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Binance websocket read error")
			return
		}

		var event struct {
			Kline struct {
				Close string `json:"c"`
			} `json:"k"`
		}
		if err := json.Unmarshal(msg, &event); err != nil {
			continue
		}
		price, err := decimal.NewFromString(event.Kline.Close)
		if err != nil {
			continue
		}

		f.mu.Lock()
		f.prices[symbol] = price
		f.mu.Unlock()
	}
}
