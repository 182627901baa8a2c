// Overseer - Supervisory trading state machine
//
// One supervisor per symbol drives a four-mode cycle:
//
//   HUNTING       scan for setups, gate them behind equity and conviction checks
//   ORDER_PENDING watch the entry order against its time budget
//   MANAGING      reconcile against exchange truth, walk the stop forward
//   COOLDOWN      sit out after a circuit breaker trip
//
// Every tick is checkpointed with an optimistic version guard, so a crash at
// any point resumes from the last committed state and reconciles the rest
// from the exchange.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/analyst"
	"github.com/web3guy0/overseer/internal/checkpoint"
	"github.com/web3guy0/overseer/internal/config"
	"github.com/web3guy0/overseer/internal/exchange"
	"github.com/web3guy0/overseer/internal/feed"
	"github.com/web3guy0/overseer/internal/monitoring"
	"github.com/web3guy0/overseer/internal/notify"
	"github.com/web3guy0/overseer/internal/orders"
	"github.com/web3guy0/overseer/internal/reconcile"
	"github.com/web3guy0/overseer/internal/risk"
	"github.com/web3guy0/overseer/internal/safety"
	"github.com/web3guy0/overseer/internal/supervisor"
	"github.com/web3guy0/overseer/internal/types"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Strs("symbols", cfg.Symbols).
		Str("timeframe", cfg.Timeframe).
		Bool("dry_run", cfg.DryRun).
		Msg("🦉 Overseer starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ====== CORE COMPONENTS ======

	store, err := checkpoint.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open checkpoint store")
	}

	barFeed := feed.NewBinanceFeed(cfg.BinanceAPIURL, cfg.BinanceWSURL)
	barFeed.Start(cfg.Symbols, cfg.Timeframe)
	defer barFeed.Stop()

	var exch exchange.Client
	var paper *exchange.PaperClient
	if cfg.DryRun {
		paper = exchange.NewPaperClient(decimal.NewFromInt(10000))
		exch = paper
		log.Info().Msg("📝 Paper exchange active (DRY_RUN)")
	} else {
		// Live order routing ships separately; refusing beats pretending.
		log.Fatal().Msg("Live trading is not wired yet, set DRY_RUN=true")
	}

	// Paper fills need a market: feed streamed prices into the simulator.
	if paper != nil {
		go markPaperPrices(ctx, paper, barFeed, cfg.Symbols)
	}

	// ====== NOTIFICATIONS ======

	var notifier notify.Notifier = notify.Noop{}
	var telegram *notify.TelegramNotifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegram, err = notify.NewTelegramNotifier(cfg.TelegramToken, strconv.FormatInt(cfg.TelegramChatID, 10))
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram disabled")
		} else {
			notifier = telegram
			telegram.Start()
			defer telegram.Stop()
		}
	}

	// ====== MONITORING ======

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	monServer := monitoring.NewServer(cfg.MetricsAddr, registry)
	monServer.Start()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		monServer.Stop(sctx)
	}()

	// ====== SUPERVISORS ======

	deps := supervisor.Deps{
		Store:      store,
		Exchange:   exch,
		Analyst:    analyst.NewMomentumAnalyst(decimal.NewFromFloat(0.3)),
		Bars:       barFeed,
		Notifier:   notifier,
		Protector:  safety.NewEquityProtector(cfg.MaxDailyDrawdownPct, cfg.MaxConsecutiveLoss, cfg.LossCooldown),
		Conviction: safety.NewConvictionTracker(cfg.RequiredConfirmations, cfg.ConfirmationWindow),
		Monitor:    orders.NewMonitor(),
		Reconciler: reconcile.NewReconciler(cfg.SizeEpsilon, cfg.PriceEpsilon),
		Risk:       risk.NewManager(cfg.RiskPerTradePct, cfg.BreakevenTrigger, cfg.BreakevenBuffer, cfg.TrailBuffer),
		Metrics:    metrics,
		Publish:    monServer.Publish,
	}

	supervisors := make(map[string]*supervisor.Supervisor, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		sup := supervisor.New(cfg, symbol, deps)
		if err := sup.Recover(ctx, symbol); err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("Failed to recover session")
		}
		supervisors[symbol] = sup
	}

	if telegram != nil {
		telegram.SetStatusProvider(&fleetStatus{exch: exch, supervisors: supervisors})
		telegram.SetForceEnableCallback(func() {
			for symbol, sup := range supervisors {
				if err := sup.ForceEnable(); err != nil {
					log.Error().Err(err).Str("symbol", symbol).Msg("Force-enable failed")
				}
			}
		})
	}

	mode := "LIVE"
	if cfg.DryRun {
		mode = "PAPER"
	}
	if bal, err := exch.Balance(ctx); err == nil {
		notifier.NotifyStartup(mode, cfg.Symbols, bal)
	}

	// One heartbeat per session: a stalled supervisor must not be masked by
	// its siblings still beating.
	var wg sync.WaitGroup
	heartbeats := make([]*safety.Heartbeat, 0, len(supervisors))
	for symbol, sup := range supervisors {
		hb := safety.NewHeartbeat(cfg.HeartbeatTimeout, func(elapsed time.Duration) {
			notifier.NotifyEscalation(symbol, "tick loop stalled for "+elapsed.String())
		})
		hb.Start()
		heartbeats = append(heartbeats, hb)

		wg.Add(1)
		go func(s *supervisor.Supervisor, h *safety.Heartbeat) {
			defer wg.Done()
			s.Run(ctx, h)
		}(sup, hb)
	}

	log.Info().Int("sessions", len(supervisors)).Msg("✅ All supervisors running")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()
	wg.Wait()
	for _, hb := range heartbeats {
		hb.Stop()
	}
	log.Info().Msg("👋 Overseer stopped")
}

// markPaperPrices pushes streamed prices into the paper exchange so limit
// orders fill and stops trigger in dry-run mode.
func markPaperPrices(ctx context.Context, paper *exchange.PaperClient, barFeed *feed.BinanceFeed, symbols []string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				if px := barFeed.LastPrice(symbol); !px.IsZero() {
					paper.MarkPrice(symbol, px)
				}
			}
		}
	}
}

// fleetStatus adapts the supervisor fleet to the Telegram /status command.
type fleetStatus struct {
	exch        exchange.Client
	supervisors map[string]*supervisor.Supervisor
}

func (f *fleetStatus) StatusLines() []string {
	out := make([]string, 0, len(f.supervisors))
	for symbol, sup := range f.supervisors {
		snap := sup.Snapshot()
		if snap == nil {
			out = append(out, symbol+": not recovered")
			continue
		}
		line := symbol + ": *" + string(snap.Mode) + "*"
		if snap.Halted {
			line += " 🆘 halted"
		}
		if snap.Position != nil {
			line += " " + string(snap.Position.Side) + " @ " + snap.Position.EntryPrice.String()
		}
		if snap.Mode == types.ModeCooldown && !snap.Equity.CooldownUntil.IsZero() {
			line += " until " + snap.Equity.CooldownUntil.Format("15:04")
		}
		out = append(out, line)
	}
	return out
}

func (f *fleetStatus) Balance() (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.exch.Balance(ctx)
}
