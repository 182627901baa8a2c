package analyst

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MOMENTUM ANALYST - Breakout continuation setups
// ═══════════════════════════════════════════════════════════════════════════════
//
// Proposes a trade when the latest close breaks the recent range with the
// fast average on the right side of the slow one. Deliberately simple: the
// supervisor's job is discipline, not edge, and any Analyst implementation
// can replace this one.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	fastPeriod    = 9
	slowPeriod    = 21
	rangeLookback = 20
)

// MomentumAnalyst implements Analyst with a breakout-plus-trend filter.
type MomentumAnalyst struct {
	minQuality decimal.Decimal
}

// NewMomentumAnalyst creates an analyst that discards setups scoring below
// minQuality (0..1).
func NewMomentumAnalyst(minQuality decimal.Decimal) *MomentumAnalyst {
	return &MomentumAnalyst{minQuality: minQuality}
}

// Analyze inspects the candle history and proposes a trade or nil.
func (a *MomentumAnalyst) Analyze(ctx context.Context, symbol string, bars []types.Bar) (*types.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(bars) < slowPeriod+1 {
		return nil, nil
	}

	last := bars[len(bars)-1]
	fast := sma(bars, fastPeriod)
	slow := sma(bars, slowPeriod)

	window := bars[len(bars)-rangeLookback-1 : len(bars)-1]
	hi, lo := extremes(window)

	var side types.Side
	switch {
	case last.Close.GreaterThan(hi) && fast.GreaterThan(slow):
		side = types.Long
	case last.Close.LessThan(lo) && fast.LessThan(slow):
		side = types.Short
	default:
		return nil, nil
	}

	// Score by how far the averages have separated relative to price.
	spread := fast.Sub(slow).Abs()
	quality := decimal.NewFromInt(1).Sub(decimal.NewFromInt(1).Div(decimal.NewFromInt(1).Add(spread.Div(last.Close).Mul(decimal.NewFromInt(200)))))
	if quality.LessThan(a.minQuality) {
		return nil, nil
	}

	rng := hi.Sub(lo)
	stopDistance := rng.Div(decimal.NewFromInt(2))
	if !stopDistance.IsPositive() {
		return nil, nil
	}

	proposal := &types.Proposal{
		SignalID:       fmt.Sprintf("%s-%s-%d", symbol, side, last.Time.Unix()),
		Side:           side,
		SetupQuality:   quality.Round(4),
		Entry:          last.Close,
		StopDistance:   stopDistance,
		TargetDistance: rng, // measured move refines this at entry
	}

	log.Debug().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("quality", proposal.SetupQuality.String()).
		Msg("🔍 Setup detected")
	return proposal, nil
}

// sma averages the closes of the last n bars.
func sma(bars []types.Bar, n int) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars[len(bars)-n:] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

func extremes(bars []types.Bar) (hi, lo decimal.Decimal) {
	hi, lo = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High.GreaterThan(hi) {
			hi = b.High
		}
		if b.Low.LessThan(lo) {
			lo = b.Low
		}
	}
	return hi, lo
}
