package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/exchange"
	"github.com/web3guy0/overseer/internal/orders"
	"github.com/web3guy0/overseer/internal/reconcile"
	"github.com/web3guy0/overseer/internal/risk"
	"github.com/web3guy0/overseer/internal/safety"
	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MODE HANDLERS - One transition evaluation per tick
// ═══════════════════════════════════════════════════════════════════════════════
//
// Each handler mutates the working clone and returns the transition reason,
// or "" when the session stays in place. Returning an error aborts the tick
// with nothing committed.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ───────────────────────────────────────────────────────────────────────────────
// HUNTING: equity gate → analysis → conviction → order placement
// ───────────────────────────────────────────────────────────────────────────────

func (s *Supervisor) tickHunting(ctx context.Context, work *types.SessionState) (string, error) {
	now := s.clock()

	// Flat is a belief, not a fact. A position the checkpoint never heard of
	// (lost state, manual trade) must be adopted before any new-trade
	// decision can stack an order on top of it.
	pctx, pcancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	exchPos, err := s.deps.Exchange.OpenPosition(pctx, work.Symbol)
	pcancel()
	if err != nil {
		return "", fmt.Errorf("open position: %w", err)
	}
	if exchPos != nil {
		res := s.deps.Reconciler.Reconcile(nil, exchPos, now)
		s.deps.Metrics.ReconcileAnomalies.WithLabelValues(s.key, string(res.Status)).Inc()

		mctx, mcancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		err := s.deps.Exchange.ModifyStop(mctx, work.Symbol, res.Corrected.StopPrice)
		mcancel()
		if err != nil {
			return "", fmt.Errorf("protect adopted position: %w", err)
		}

		work.Position = res.Corrected
		work.Mode = types.ModeManaging
		s.deps.Conviction.Reset(&work.Conviction)
		s.deps.Notifier.NotifyEscalation(work.Symbol, "unknown exchange position adopted: "+res.Corrected.TradeID)
		return string(reconcile.StatusLocalFlat), nil
	}

	balance, err := s.balance(ctx)
	if err != nil {
		return "", fmt.Errorf("balance: %w", err)
	}
	s.deps.Metrics.Equity.WithLabelValues(s.key).Set(balanceGauge(balance))

	verdict := s.deps.Protector.Evaluate(&work.Equity, balance, now)
	if !verdict.Allowed {
		work.Mode = types.ModeCooldown
		s.deps.Conviction.Reset(&work.Conviction)
		if verdict.Reason != safety.ReasonCooldownActive {
			s.deps.Notifier.NotifyCooldown(work.Symbol, string(verdict.Reason))
		}
		return string(verdict.Reason), nil
	}

	bars, err := s.recentBars(ctx, work)
	if err != nil {
		return "", fmt.Errorf("bars: %w", err)
	}
	if len(bars) == 0 {
		return "", nil
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AnalystTimeout)
	proposal, err := s.deps.Analyst.Analyze(actx, work.Symbol, bars)
	cancel()
	if err != nil {
		return "", fmt.Errorf("analyst: %w", err)
	}
	if proposal == nil {
		return "", nil
	}

	count := s.deps.Conviction.Submit(&work.Conviction, proposal.SignalID, proposal.Side, now)
	if !s.deps.Conviction.Confirmed(&work.Conviction, now) {
		log.Debug().
			Str("session", s.key).
			Str("side", string(proposal.Side)).
			Int("confirmations", count).
			Msg("Awaiting conviction")
		return "", nil
	}

	size := s.deps.Risk.Size(balance, proposal.StopDistance)
	if !size.IsPositive() {
		log.Warn().Str("session", s.key).Msg("Sized to zero, setup skipped")
		s.deps.Conviction.Reset(&work.Conviction)
		return "", nil
	}

	stop := proposal.Entry.Sub(proposal.StopDistance)
	if proposal.Side == types.Short {
		stop = proposal.Entry.Add(proposal.StopDistance)
	}
	target := risk.MeasuredMoveTarget(bars, proposal.Side)
	if target.IsZero() {
		target = proposal.Entry.Add(proposal.TargetDistance)
		if proposal.Side == types.Short {
			target = proposal.Entry.Sub(proposal.TargetDistance)
		}
	}

	// The key is derived from durable state, so a tick that placed the order
	// but failed to checkpoint replays the same key next time and the venue
	// hands back the original order instead of opening a second one.
	seed := fmt.Sprintf("%s:%d:%s", s.key, work.Version, proposal.SignalID)
	clientID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()

	ectx, ecancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	orderID, err := s.deps.Exchange.PlaceOrder(ectx, exchange.OrderSpec{
		Symbol:     work.Symbol,
		Side:       proposal.Side,
		Size:       size,
		LimitPrice: proposal.Entry,
	}, clientID)
	ecancel()
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}

	work.Pending = &types.PendingOrder{
		OrderID:        orderID,
		ClientID:       clientID,
		SubmittedAt:    now,
		ExpiryDeadline: now.Add(s.cfg.OrderTTL),
		Side:           proposal.Side,
		Size:           size,
		LimitPrice:     proposal.Entry,
		StopPrice:      stop,
		TargetPrice:    target,
		SignalID:       proposal.SignalID,
	}
	work.Mode = types.ModeOrderPending
	s.deps.Conviction.Reset(&work.Conviction)
	s.deps.Notifier.NotifyOrderPlaced(work.Symbol, work.Pending)

	log.Info().
		Str("session", s.key).
		Str("order_id", orderID).
		Str("side", string(proposal.Side)).
		Str("limit", proposal.Entry.String()).
		Str("size", size.String()).
		Msg("✅ Entry order placed")
	return "CONVICTION_CONFIRMED", nil
}

// ───────────────────────────────────────────────────────────────────────────────
// ORDER_PENDING: fill detection, timeout cancel, cancel-discovers-fill
// ───────────────────────────────────────────────────────────────────────────────

func (s *Supervisor) tickOrderPending(ctx context.Context, work *types.SessionState) (string, error) {
	now := s.clock()
	po := work.Pending

	ectx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	state, err := s.deps.Exchange.Order(ectx, po.OrderID)
	cancel()
	if errors.Is(err, exchange.ErrOrderNotFound) {
		// The venue forgot our order. Treat as externally canceled.
		log.Warn().Str("session", s.key).Str("order_id", po.OrderID).Msg("⚠️ Pending order unknown to exchange")
		work.Pending = nil
		work.Mode = types.ModeHunting
		return "ORDER_MISSING", nil
	}
	if err != nil {
		return "", fmt.Errorf("query order: %w", err)
	}

	switch state.Status {
	case exchange.OrderFilled:
		return s.installPosition(ctx, work, state, now)

	case exchange.OrderCanceled:
		work.Pending = nil
		work.Mode = types.ModeHunting
		log.Info().Str("session", s.key).Str("order_id", po.OrderID).Msg("Order canceled externally")
		return "ORDER_CANCELED", nil
	}

	action, reason := s.deps.Monitor.Check(po, now)
	if action != orders.ActionCancel {
		return "", nil
	}

	cctx, ccancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	final, err := s.deps.Exchange.CancelOrder(cctx, po.OrderID)
	ccancel()
	if err != nil {
		return "", fmt.Errorf("cancel order: %w", err)
	}

	// The cancel may have raced a fill. Exchange truth wins.
	if final.Status == exchange.OrderFilled {
		log.Info().Str("session", s.key).Str("order_id", po.OrderID).Msg("Cancel raced a fill, managing position")
		return s.installPosition(ctx, work, final, now)
	}

	work.Pending = nil
	work.Mode = types.ModeHunting
	s.deps.Notifier.NotifyOrderCanceled(work.Symbol, po.OrderID, string(reason))
	return string(reason), nil
}

// installPosition converts a filled entry order into a managed position. The
// protective stop goes to the exchange before the checkpoint commits; if that
// call fails the tick aborts and the fill is rediscovered next tick.
func (s *Supervisor) installPosition(ctx context.Context, work *types.SessionState, st exchange.OrderState, now time.Time) (string, error) {
	po := work.Pending

	entry := st.FillPrice
	if entry.IsZero() {
		entry = po.LimitPrice
	}
	size := st.FilledSize
	if size.IsZero() {
		size = po.Size
	}

	ectx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	err := s.deps.Exchange.ModifyStop(ectx, work.Symbol, po.StopPrice)
	cancel()
	if err != nil {
		return "", fmt.Errorf("set protective stop: %w", err)
	}

	pos := &types.Position{
		TradeID:     "trade-" + po.OrderID,
		Side:        po.Side,
		EntryPrice:  entry,
		Size:        size,
		StopPrice:   po.StopPrice,
		TargetPrice: po.TargetPrice,
		InitialRisk: entry.Sub(po.StopPrice).Abs(),
		OpenedAt:    now,
	}
	work.Pending = nil
	work.Position = pos
	work.Mode = types.ModeManaging
	s.deps.Notifier.NotifyPositionOpened(work.Symbol, pos)

	log.Info().
		Str("session", s.key).
		Str("trade_id", pos.TradeID).
		Str("entry", entry.String()).
		Str("stop", pos.StopPrice.String()).
		Msg("🎯 Position opened")
	return "ORDER_FILLED", nil
}

// ───────────────────────────────────────────────────────────────────────────────
// MANAGING: reconcile first, then stop progression
// ───────────────────────────────────────────────────────────────────────────────

func (s *Supervisor) tickManaging(ctx context.Context, work *types.SessionState) (string, error) {
	now := s.clock()

	ectx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	exchPos, err := s.deps.Exchange.OpenPosition(ectx, work.Symbol)
	cancel()
	if err != nil {
		return "", fmt.Errorf("open position: %w", err)
	}

	res := s.deps.Reconciler.Reconcile(work.Position, exchPos, now)
	if res.Status != reconcile.StatusMatched {
		s.deps.Metrics.ReconcileAnomalies.WithLabelValues(s.key, string(res.Status)).Inc()
	}

	if res.Status == reconcile.StatusExchangeFlat {
		return s.closePosition(ctx, work, "POSITION_CLOSED")
	}

	work.Position = res.Corrected
	if res.SideChanged {
		mctx, mcancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		err := s.deps.Exchange.ModifyStop(mctx, work.Symbol, work.Position.StopPrice)
		mcancel()
		if err != nil {
			return "", fmt.Errorf("reset stop after side change: %w", err)
		}
	}

	bars, err := s.recentBars(ctx, work)
	if err != nil {
		return "", fmt.Errorf("bars: %w", err)
	}
	if len(bars) == 0 {
		return "", nil
	}

	// Adopted positions and side changes arrive with no target.
	if work.Position.TargetPrice.IsZero() {
		if target := risk.MeasuredMoveTarget(bars, work.Position.Side); !target.IsZero() {
			work.Position.TargetPrice = target
			log.Info().
				Str("session", s.key).
				Str("target", target.String()).
				Msg("🎯 Target recomputed")
		}
	}

	if targetHit(work.Position, bars[len(bars)-1]) {
		cctx, ccancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		err := s.deps.Exchange.ClosePosition(cctx, work.Symbol)
		ccancel()
		if err != nil {
			return "", fmt.Errorf("close at target: %w", err)
		}
		log.Info().
			Str("session", s.key).
			Str("target", work.Position.TargetPrice.String()).
			Msg("💰 Target reached")
		return s.closePosition(ctx, work, "TARGET_REACHED")
	}

	advanced, changed := s.deps.Risk.Advance(*work.Position, bars[len(bars)-1])
	if changed {
		// Exchange first, local second. A rejected modification keeps the
		// old stop everywhere.
		mctx, mcancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
		err := s.deps.Exchange.ModifyStop(mctx, work.Symbol, advanced.StopPrice)
		mcancel()
		if err != nil {
			return "", fmt.Errorf("modify stop: %w", err)
		}
	}
	work.Position = &advanced
	return "", nil
}

// closePosition settles a closed-on-exchange position: record the result
// once, then hunt again. The realized result is the account's balance delta
// since the last equity snapshot, not a price guess: the venue does not
// report which exit filled us.
func (s *Supervisor) closePosition(ctx context.Context, work *types.SessionState, reason string) (string, error) {
	pos := work.Position

	balance, err := s.balance(ctx)
	if err != nil {
		return "", fmt.Errorf("balance after close: %w", err)
	}
	pnl := balance.Sub(work.Equity.CurrentEquity)

	s.deps.Protector.RecordTradeResult(&work.Equity, pos.TradeID, pnl)
	s.deps.Notifier.NotifyPositionClosed(work.Symbol, pos.TradeID, pnl)

	work.Position = nil
	work.Mode = types.ModeHunting

	log.Info().
		Str("session", s.key).
		Str("trade_id", pos.TradeID).
		Str("pnl", pnl.StringFixed(2)).
		Str("last_price", s.deps.Bars.LastPrice(work.Symbol).String()).
		Msg("🏁 Position closed")
	return reason, nil
}

// targetHit reports whether the bar traded through the position's target.
func targetHit(pos *types.Position, bar types.Bar) bool {
	if pos.TargetPrice.IsZero() {
		return false
	}
	if pos.Side == types.Long {
		return bar.High.GreaterThanOrEqual(pos.TargetPrice)
	}
	return bar.Low.LessThanOrEqual(pos.TargetPrice)
}

// ───────────────────────────────────────────────────────────────────────────────
// COOLDOWN: wait it out
// ───────────────────────────────────────────────────────────────────────────────

func (s *Supervisor) tickCooldown(ctx context.Context, work *types.SessionState) (string, error) {
	now := s.clock()

	balance, err := s.balance(ctx)
	if err != nil {
		return "", fmt.Errorf("balance: %w", err)
	}

	verdict := s.deps.Protector.Evaluate(&work.Equity, balance, now)
	if !verdict.Allowed {
		return "", nil
	}

	work.Mode = types.ModeHunting
	return "COOLDOWN_EXPIRED", nil
}

// ───────────────────────────────────────────────────────────────────────────────
// HELPERS
// ───────────────────────────────────────────────────────────────────────────────

func (s *Supervisor) recentBars(ctx context.Context, work *types.SessionState) ([]types.Bar, error) {
	bctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()
	return s.deps.Bars.RecentBars(bctx, work.Symbol, work.Timeframe, s.cfg.BarLookback)
}

func balanceGauge(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
