package analyst

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/overseer/internal/types"
)

func flatBars(n int, price int64) []types.Bar {
	t0 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	out := make([]types.Bar, n)
	for i := range out {
		p := decimal.NewFromInt(price)
		out[i] = types.Bar{
			Time:  t0.Add(time.Duration(i) * time.Hour),
			Open:  p,
			High:  p.Add(decimal.NewFromInt(1)),
			Low:   p.Sub(decimal.NewFromInt(1)),
			Close: p,
		}
	}
	return out
}

func TestNoProposalOnShortHistory(t *testing.T) {
	a := NewMomentumAnalyst(decimal.Zero)
	p, err := a.Analyze(context.Background(), "BTCUSDT", flatBars(10, 100))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNoProposalInFlatMarket(t *testing.T) {
	a := NewMomentumAnalyst(decimal.Zero)
	p, err := a.Analyze(context.Background(), "BTCUSDT", flatBars(40, 100))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLongProposalOnBreakout(t *testing.T) {
	a := NewMomentumAnalyst(decimal.Zero)
	bars := flatBars(40, 100)

	// Stair-step the last bars upward and break the prior range.
	for i := 0; i < 6; i++ {
		idx := len(bars) - 6 + i
		p := decimal.NewFromInt(100 + int64(i+1)*3)
		bars[idx].Open = p.Sub(decimal.NewFromInt(3))
		bars[idx].Close = p
		bars[idx].High = p.Add(decimal.NewFromInt(1))
		bars[idx].Low = p.Sub(decimal.NewFromInt(4))
	}

	p, err := a.Analyze(context.Background(), "BTCUSDT", bars)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, types.Long, p.Side)
	assert.True(t, p.StopDistance.IsPositive())
	assert.True(t, p.Entry.Equal(bars[len(bars)-1].Close))
	assert.NotEmpty(t, p.SignalID)
}

func TestShortProposalOnBreakdown(t *testing.T) {
	a := NewMomentumAnalyst(decimal.Zero)
	bars := flatBars(40, 100)

	for i := 0; i < 6; i++ {
		idx := len(bars) - 6 + i
		p := decimal.NewFromInt(100 - int64(i+1)*3)
		bars[idx].Open = p.Add(decimal.NewFromInt(3))
		bars[idx].Close = p
		bars[idx].High = p.Add(decimal.NewFromInt(4))
		bars[idx].Low = p.Sub(decimal.NewFromInt(1))
	}

	p, err := a.Analyze(context.Background(), "BTCUSDT", bars)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, types.Short, p.Side)
}

func TestQualityFloorFiltersWeakSetups(t *testing.T) {
	a := NewMomentumAnalyst(decimal.NewFromFloat(0.99))
	bars := flatBars(40, 100)
	for i := 0; i < 6; i++ {
		idx := len(bars) - 6 + i
		p := decimal.NewFromInt(100 + int64(i+1)*3)
		bars[idx].Close = p
		bars[idx].High = p.Add(decimal.NewFromInt(1))
		bars[idx].Low = p.Sub(decimal.NewFromInt(4))
	}

	p, err := a.Analyze(context.Background(), "BTCUSDT", bars)
	require.NoError(t, err)
	assert.Nil(t, p)
}
