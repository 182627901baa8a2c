package safety

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EQUITY PROTECTOR - Capital preservation circuit breaker
// ═══════════════════════════════════════════════════════════════════════════════
//
// Two trips:
//   1. Daily drawdown beyond the limit -> no new trades until the next day
//   2. Too many consecutive losses    -> fixed cooldown
//
// This is the only component allowed to put a session into cooldown.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Reason explains an equity verdict.
type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonDailyLossLimit    Reason = "DAILY_LOSS_LIMIT"
	ReasonConsecutiveLosses Reason = "CONSECUTIVE_LOSSES"
	ReasonCooldownActive    Reason = "COOLDOWN_ACTIVE"
)

// Verdict is the outcome of an equity evaluation.
type Verdict struct {
	Allowed bool
	Reason  Reason
}

// recordedTradeCap bounds the replay-guard window in the snapshot.
const recordedTradeCap = 32

// EquityProtector gates whether new trades may be opened.
type EquityProtector struct {
	maxDrawdownPct decimal.Decimal
	maxConsecutive int
	cooldown       time.Duration
}

// NewEquityProtector creates a protector with the given limits.
func NewEquityProtector(maxDrawdownPct decimal.Decimal, maxConsecutive int, cooldown time.Duration) *EquityProtector {
	return &EquityProtector{
		maxDrawdownPct: maxDrawdownPct,
		maxConsecutive: maxConsecutive,
		cooldown:       cooldown,
	}
}

// Evaluate updates the snapshot from the live balance and decides whether
// trading is permitted. It owns the snapshot's cooldown field.
func (p *EquityProtector) Evaluate(snap *types.EquitySnapshot, liveBalance decimal.Decimal, now time.Time) Verdict {
	p.rollDay(snap, liveBalance, now)
	snap.CurrentEquity = liveBalance

	// Release an expired cooldown. The loss streak that earned it is
	// considered served, otherwise the same streak would re-trip forever.
	if !snap.CooldownUntil.IsZero() && !now.Before(snap.CooldownUntil) {
		snap.CooldownUntil = time.Time{}
		if snap.ConsecutiveLosses >= p.maxConsecutive {
			snap.ConsecutiveLosses = 0
		}
		log.Info().Msg("⏰ Cooldown ended, trading re-enabled")
	}

	if now.Before(snap.CooldownUntil) {
		return Verdict{Allowed: false, Reason: ReasonCooldownActive}
	}

	if p.maxConsecutive > 0 && snap.ConsecutiveLosses >= p.maxConsecutive {
		snap.CooldownUntil = now.Add(p.cooldown)
		log.Warn().
			Int("consecutive_losses", snap.ConsecutiveLosses).
			Time("cooldown_until", snap.CooldownUntil).
			Msg("🚨 CIRCUIT BREAKER: consecutive losses")
		return Verdict{Allowed: false, Reason: ReasonConsecutiveLosses}
	}

	if snap.DailyStartEquity.IsPositive() {
		drawdown := snap.DailyStartEquity.Sub(liveBalance).Div(snap.DailyStartEquity)
		if drawdown.GreaterThan(p.maxDrawdownPct) {
			snap.CooldownUntil = StartOfNextDay(now)
			log.Warn().
				Str("drawdown", drawdown.StringFixed(4)).
				Str("limit", p.maxDrawdownPct.StringFixed(4)).
				Msg("🚨 CIRCUIT BREAKER: daily loss limit")
			return Verdict{Allowed: false, Reason: ReasonDailyLossLimit}
		}
	}

	return Verdict{Allowed: true, Reason: ReasonOK}
}

// RecordTradeResult applies one closed trade to the snapshot. Replaying the
// same trade ID is a no-op, so crash-and-retry cannot double count a loss.
func (p *EquityProtector) RecordTradeResult(snap *types.EquitySnapshot, tradeID string, pnl decimal.Decimal) {
	for _, id := range snap.RecordedTradeIDs {
		if id == tradeID {
			log.Debug().Str("trade_id", tradeID).Msg("Trade result already recorded, skipping")
			return
		}
	}
	snap.RecordedTradeIDs = append(snap.RecordedTradeIDs, tradeID)
	if len(snap.RecordedTradeIDs) > recordedTradeCap {
		snap.RecordedTradeIDs = snap.RecordedTradeIDs[len(snap.RecordedTradeIDs)-recordedTradeCap:]
	}

	snap.CurrentEquity = snap.CurrentEquity.Add(pnl)
	if pnl.IsNegative() {
		snap.ConsecutiveLosses++
		log.Warn().
			Str("pnl", pnl.StringFixed(2)).
			Int("streak", snap.ConsecutiveLosses).
			Msg("❌ Losing trade recorded")
	} else {
		snap.ConsecutiveLosses = 0
		log.Info().Str("pnl", pnl.StringFixed(2)).Msg("✅ Winning trade recorded")
	}
}

// ForceEnable clears all trips. Operator override only.
func (p *EquityProtector) ForceEnable(snap *types.EquitySnapshot) {
	snap.CooldownUntil = time.Time{}
	snap.ConsecutiveLosses = 0
	log.Warn().Msg("⚠️ Equity protector force-enabled by operator")
}

// rollDay re-baselines the daily equity at the first tick of a new day.
func (p *EquityProtector) rollDay(snap *types.EquitySnapshot, liveBalance decimal.Decimal, now time.Time) {
	day := now.Format("2006-01-02")
	if snap.Day == day {
		return
	}
	snap.Day = day
	snap.DailyStartEquity = liveBalance
	log.Info().Str("day", day).Str("equity", liveBalance.StringFixed(2)).Msg("📅 Daily equity baseline reset")
}

// StartOfNextDay returns midnight following now, in now's location.
func StartOfNextDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
}
