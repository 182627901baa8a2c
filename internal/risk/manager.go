package risk

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK MANAGER - Protective stop progression
// ═══════════════════════════════════════════════════════════════════════════════
//
// Three ordered rules, each only ever tightening the stop:
//   1. Breakeven shift once unrealized profit reaches a multiple of initial risk
//   2. Bar-by-bar trailing from each completed bar's extreme
//   3. Measured-move target fixed at position open
//
// Advance is pure: the supervisor submits the new stop to the exchange first
// and commits the returned position only if the venue accepted it.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Manager computes stop progression for open positions.
type Manager struct {
	riskPerTrade     decimal.Decimal // fraction of equity risked per trade
	breakevenTrigger decimal.Decimal // multiples of initial risk
	breakevenBuffer  decimal.Decimal
	trailBuffer      decimal.Decimal
}

// NewManager creates a risk manager.
func NewManager(riskPerTrade, breakevenTrigger, breakevenBuffer, trailBuffer decimal.Decimal) *Manager {
	return &Manager{
		riskPerTrade:     riskPerTrade,
		breakevenTrigger: breakevenTrigger,
		breakevenBuffer:  breakevenBuffer,
		trailBuffer:      trailBuffer,
	}
}

// Advance applies the stop rules against the latest completed bar and
// returns the updated position. The stop never retreats.
func (m *Manager) Advance(pos types.Position, bar types.Bar) (types.Position, bool) {
	changed := false

	// 1. Breakeven shift.
	if !pos.Trailing.BreakevenLocked && pos.InitialRisk.IsPositive() {
		var unrealized decimal.Decimal
		if pos.Side == types.Long {
			unrealized = bar.Close.Sub(pos.EntryPrice)
		} else {
			unrealized = pos.EntryPrice.Sub(bar.Close)
		}

		if unrealized.GreaterThanOrEqual(pos.InitialRisk.Mul(m.breakevenTrigger)) {
			candidate := pos.EntryPrice.Add(m.breakevenBuffer)
			if pos.Side == types.Short {
				candidate = pos.EntryPrice.Sub(m.breakevenBuffer)
			}
			if tighter(pos.Side, candidate, pos.StopPrice) {
				log.Info().
					Str("old_stop", pos.StopPrice.String()).
					Str("new_stop", candidate.String()).
					Msg("💰 Breakeven shift")
				pos.StopPrice = candidate
				changed = true
			}
			pos.Trailing.BreakevenLocked = true
		}
	}

	// 2. Bar-by-bar trailing, one adjustment per completed bar.
	if pos.Trailing.BreakevenLocked && bar.Time.After(pos.Trailing.LastBarTime) {
		var candidate decimal.Decimal
		if pos.Side == types.Long {
			candidate = bar.Low.Sub(m.trailBuffer)
		} else {
			candidate = bar.High.Add(m.trailBuffer)
		}
		if tighter(pos.Side, candidate, pos.StopPrice) {
			log.Info().
				Str("old_stop", pos.StopPrice.String()).
				Str("new_stop", candidate.String()).
				Msg("📈 Trailing stop advanced")
			pos.StopPrice = candidate
			changed = true
		}
		pos.Trailing.LastBarTime = bar.Time
	}

	return pos, changed
}

// tighter reports whether candidate is closer to the market than current.
func tighter(side types.Side, candidate, current decimal.Decimal) bool {
	if side == types.Long {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}

// Size returns the position size for a proposal using the fixed-fractional
// model: size = (equity * risk_pct) / stop_distance.
func (m *Manager) Size(equity, stopDistance decimal.Decimal) decimal.Decimal {
	if !stopDistance.IsPositive() || !equity.IsPositive() {
		return decimal.Zero
	}
	return equity.Mul(m.riskPerTrade).Div(stopDistance).Truncate(4)
}

// MeasuredMoveTarget projects a target from the magnitude of the most recent
// swing leg: leg two is assumed equal to leg one.
func MeasuredMoveTarget(bars []types.Bar, side types.Side) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	window := bars
	if len(window) > 20 {
		window = window[len(window)-20:]
	}

	high := window[0].High
	low := window[0].Low
	for _, b := range window[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		if b.Low.LessThan(low) {
			low = b.Low
		}
	}

	leg := high.Sub(low)
	if side == types.Long {
		return high.Add(leg)
	}
	return low.Sub(leg)
}
