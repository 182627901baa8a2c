package safety

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/overseer/internal/types"
)

func newSnapshot(equity int64, now time.Time) *types.EquitySnapshot {
	return &types.EquitySnapshot{
		Day:              now.Format("2006-01-02"),
		DailyStartEquity: decimal.NewFromInt(equity),
		CurrentEquity:    decimal.NewFromInt(equity),
	}
}

func TestEvaluateAllowsHealthyAccount(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	v := p.Evaluate(snap, decimal.NewFromInt(10000), now)
	assert.True(t, v.Allowed)
	assert.Equal(t, ReasonOK, v.Reason)
}

func TestConsecutiveLossesTripCooldown(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	loss := decimal.NewFromInt(-50)
	p.RecordTradeResult(snap, "t1", loss)
	p.RecordTradeResult(snap, "t2", loss)
	p.RecordTradeResult(snap, "t3", loss)
	require.Equal(t, 3, snap.ConsecutiveLosses)

	v := p.Evaluate(snap, snap.CurrentEquity, now)
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonConsecutiveLosses, v.Reason)
	assert.Equal(t, now.Add(2*time.Hour), snap.CooldownUntil)

	// Cooldown holds while the clock is inside the window.
	v = p.Evaluate(snap, snap.CurrentEquity, now.Add(time.Hour))
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonCooldownActive, v.Reason)

	// Expiry releases the cooldown and resets the served streak.
	v = p.Evaluate(snap, snap.CurrentEquity, now.Add(2*time.Hour+time.Second))
	assert.True(t, v.Allowed)
	assert.Zero(t, snap.ConsecutiveLosses)
}

func TestRecordTradeResultIsIdempotent(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	loss := decimal.NewFromInt(-75)
	p.RecordTradeResult(snap, "trade-1", loss)
	p.RecordTradeResult(snap, "trade-1", loss)
	p.RecordTradeResult(snap, "trade-1", loss)

	assert.Equal(t, 1, snap.ConsecutiveLosses)
	assert.True(t, snap.CurrentEquity.Equal(decimal.NewFromInt(9925)))
}

func TestWinResetsLossStreak(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	p.RecordTradeResult(snap, "t1", decimal.NewFromInt(-50))
	p.RecordTradeResult(snap, "t2", decimal.NewFromInt(-50))
	p.RecordTradeResult(snap, "t3", decimal.NewFromInt(120))

	assert.Zero(t, snap.ConsecutiveLosses)
}

func TestDailyDrawdownTripsUntilNextDay(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	// 3% down on the day, past the 2% limit.
	v := p.Evaluate(snap, decimal.NewFromInt(9700), now)
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonDailyLossLimit, v.Reason)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), snap.CooldownUntil)

	// Next day: baseline re-anchors to the live balance and trading resumes.
	nextDay := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)
	v = p.Evaluate(snap, decimal.NewFromInt(9700), nextDay)
	assert.True(t, v.Allowed)
	assert.True(t, snap.DailyStartEquity.Equal(decimal.NewFromInt(9700)))
}

func TestExactLimitDrawdownIsAllowed(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	// Exactly 2% down: the trip requires strictly greater than the limit.
	v := p.Evaluate(snap, decimal.NewFromInt(9800), now)
	assert.True(t, v.Allowed)
}

func TestForceEnableClearsTrips(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 3, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	for _, id := range []string{"a", "b", "c"} {
		p.RecordTradeResult(snap, id, decimal.NewFromInt(-10))
	}
	require.False(t, p.Evaluate(snap, snap.CurrentEquity, now).Allowed)

	p.ForceEnable(snap)
	v := p.Evaluate(snap, snap.CurrentEquity, now)
	assert.True(t, v.Allowed)
}

func TestRecordedTradeWindowIsCapped(t *testing.T) {
	p := NewEquityProtector(decimal.NewFromFloat(0.02), 0, 2*time.Hour)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	snap := newSnapshot(10000, now)

	for i := 0; i < recordedTradeCap+10; i++ {
		p.RecordTradeResult(snap, string(rune('a'+i%26))+string(rune('0'+i%10)), decimal.NewFromInt(1))
	}
	assert.LessOrEqual(t, len(snap.RecordedTradeIDs), recordedTradeCap)
}
