package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the supervisor.
type Config struct {
	// Sessions
	Symbols   []string // e.g. "BTCUSDT,ETHUSDT"
	Timeframe string   // e.g. "1h"

	// Mode
	DryRun bool
	Debug  bool

	// Tick loop
	TickInterval time.Duration

	// Equity protector
	MaxDailyDrawdownPct decimal.Decimal // 0.02 = 2% of daily start equity
	MaxConsecutiveLoss  int
	LossCooldown        time.Duration

	// Conviction tracker
	RequiredConfirmations int
	ConfirmationWindow    time.Duration // confirmations older than this age out

	// Order monitor
	OrderTTL time.Duration // entry order time budget before SETUP_TIMEOUT

	// Reconciler tolerances
	SizeEpsilon  decimal.Decimal
	PriceEpsilon decimal.Decimal

	// Risk manager
	RiskPerTradePct  decimal.Decimal // fraction of equity risked per trade
	BreakevenTrigger decimal.Decimal // multiples of initial risk before breakeven shift
	BreakevenBuffer  decimal.Decimal // offset past entry when shifting to breakeven
	TrailBuffer      decimal.Decimal // offset past bar extreme when trailing

	// Checkpoint store
	DatabasePath           string
	VersionConflictRetries int
	VersionConflictBackoff time.Duration

	// Heartbeat
	HeartbeatTimeout time.Duration

	// External calls
	ExchangeTimeout time.Duration
	AnalystTimeout  time.Duration

	// Market data
	BinanceAPIURL string
	BinanceWSURL  string
	BarLookback   int

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Monitoring
	MetricsAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Symbols:   splitList(getEnv("TRADING_SYMBOLS", "BTCUSDT")),
		Timeframe: getEnv("TIMEFRAME", "1h"),

		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		TickInterval: getEnvDuration("TICK_INTERVAL", time.Minute),

		MaxDailyDrawdownPct: getEnvDecimal("MAX_DAILY_DRAWDOWN_PCT", decimal.NewFromFloat(0.02)),
		MaxConsecutiveLoss:  getEnvInt("MAX_CONSECUTIVE_LOSSES", 3),
		LossCooldown:        getEnvDuration("LOSS_COOLDOWN", 2*time.Hour),

		RequiredConfirmations: getEnvInt("REQUIRED_CONFIRMATIONS", 2),
		ConfirmationWindow:    getEnvDuration("CONFIRMATION_WINDOW", 0),

		OrderTTL: getEnvDuration("ORDER_TTL", 5*time.Minute),

		SizeEpsilon:  getEnvDecimal("RECONCILE_SIZE_EPSILON", decimal.NewFromFloat(0.0001)),
		PriceEpsilon: getEnvDecimal("RECONCILE_PRICE_EPSILON", decimal.NewFromFloat(0.01)),

		RiskPerTradePct:  getEnvDecimal("RISK_PER_TRADE_PCT", decimal.NewFromFloat(0.01)),
		BreakevenTrigger: getEnvDecimal("BREAKEVEN_TRIGGER_R", decimal.NewFromFloat(1.0)),
		BreakevenBuffer:  getEnvDecimal("BREAKEVEN_BUFFER", decimal.Zero),
		TrailBuffer:      getEnvDecimal("TRAIL_BUFFER", decimal.Zero),

		DatabasePath:           getEnv("DATABASE_PATH", "data/overseer.db"),
		VersionConflictRetries: getEnvInt("VERSION_CONFLICT_RETRIES", 3),
		VersionConflictBackoff: getEnvDuration("VERSION_CONFLICT_BACKOFF", 100*time.Millisecond),

		HeartbeatTimeout: getEnvDuration("HEARTBEAT_TIMEOUT", 5*time.Minute),

		ExchangeTimeout: getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		AnalystTimeout:  getEnvDuration("ANALYST_TIMEOUT", 30*time.Second),

		BinanceAPIURL: getEnv("BINANCE_API_URL", "https://api.binance.com"),
		BinanceWSURL:  getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/ws"),
		BarLookback:   getEnvInt("BAR_LOOKBACK", 50),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		MetricsAddr: getEnv("METRICS_ADDR", ":9108"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("TRADING_SYMBOLS must name at least one symbol")
	}
	if cfg.RequiredConfirmations < 1 {
		return nil, fmt.Errorf("REQUIRED_CONFIRMATIONS must be >= 1")
	}

	// Signals are identified per closed bar, so confirmations arrive at bar
	// cadence. The window must span enough bars to ever collect the required
	// count; default to two bars of the trading timeframe.
	if cfg.ConfirmationWindow <= 0 {
		cfg.ConfirmationWindow = 2 * timeframeDuration(cfg.Timeframe)
	}

	return cfg, nil
}

// timeframeDuration converts a candle interval like "15m", "1h" or "1d" to
// its duration. Unknown intervals fall back to one hour.
func timeframeDuration(tf string) time.Duration {
	if strings.HasSuffix(tf, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(tf, "d")); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
		return time.Hour
	}
	if d, err := time.ParseDuration(tf); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
