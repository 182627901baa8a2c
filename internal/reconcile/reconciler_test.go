package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/overseer/internal/exchange"
	"github.com/web3guy0/overseer/internal/types"
)

func newReconciler() *Reconciler {
	return NewReconciler(decimal.NewFromFloat(0.0001), decimal.NewFromFloat(0.01))
}

func localPosition() *types.Position {
	return &types.Position{
		TradeID:     "trade-1",
		Side:        types.Long,
		EntryPrice:  decimal.NewFromInt(50000),
		Size:        decimal.NewFromFloat(0.5),
		StopPrice:   decimal.NewFromInt(49500),
		TargetPrice: decimal.NewFromInt(51000),
		InitialRisk: decimal.NewFromInt(500),
	}
}

func TestBothFlatMatches(t *testing.T) {
	res := newReconciler().Reconcile(nil, nil, time.Now())
	assert.Equal(t, StatusMatched, res.Status)
}

func TestWithinEpsilonMatches(t *testing.T) {
	local := localPosition()
	exch := &exchange.PositionInfo{
		Symbol:     "BTCUSDT",
		Side:       types.Long,
		Size:       decimal.NewFromFloat(0.50005), // inside 0.0001
		EntryPrice: decimal.NewFromFloat(50000.005),
	}

	res := newReconciler().Reconcile(local, exch, time.Now())
	assert.Equal(t, StatusMatched, res.Status)
	assert.Equal(t, local, res.Corrected)
}

func TestSizeDriftTakesExchangeValues(t *testing.T) {
	local := localPosition()
	exch := &exchange.PositionInfo{
		Symbol:     "BTCUSDT",
		Side:       types.Long,
		Size:       decimal.NewFromFloat(0.3), // partial fill
		EntryPrice: decimal.NewFromInt(50000),
	}

	res := newReconciler().Reconcile(local, exch, time.Now())
	require.Equal(t, StatusDrifted, res.Status)
	assert.False(t, res.SideChanged)
	assert.True(t, res.Corrected.Size.Equal(decimal.NewFromFloat(0.3)))
	// Locally computed levels survive when the side is unchanged.
	assert.True(t, res.Corrected.StopPrice.Equal(local.StopPrice))
	assert.True(t, res.Corrected.TargetPrice.Equal(local.TargetPrice))
}

func TestSideChangeInvalidatesStopAndTarget(t *testing.T) {
	local := localPosition()
	exch := &exchange.PositionInfo{
		Symbol:     "BTCUSDT",
		Side:       types.Short,
		Size:       decimal.NewFromFloat(0.5),
		EntryPrice: decimal.NewFromInt(50000),
	}

	res := newReconciler().Reconcile(local, exch, time.Now())
	require.Equal(t, StatusDrifted, res.Status)
	assert.True(t, res.SideChanged)
	assert.Equal(t, types.Short, res.Corrected.Side)
	assert.True(t, res.Corrected.TargetPrice.IsZero())
	// Conservative stop for a short sits above entry.
	assert.True(t, res.Corrected.StopPrice.GreaterThan(exch.EntryPrice))
	assert.True(t, res.Corrected.InitialRisk.IsPositive())
	assert.Equal(t, types.TrailingState{}, res.Corrected.Trailing)
}

func TestExchangeFlat(t *testing.T) {
	res := newReconciler().Reconcile(localPosition(), nil, time.Now())
	assert.Equal(t, StatusExchangeFlat, res.Status)
	assert.Nil(t, res.Corrected)
}

func TestLocalFlatAdoptsExchangePosition(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	exch := &exchange.PositionInfo{
		Symbol:     "BTCUSDT",
		Side:       types.Long,
		Size:       decimal.NewFromFloat(0.25),
		EntryPrice: decimal.NewFromInt(40000),
	}

	res := newReconciler().Reconcile(nil, exch, now)
	require.Equal(t, StatusLocalFlat, res.Status)
	require.NotNil(t, res.Corrected)
	assert.Contains(t, res.Corrected.TradeID, "adopted-")
	// 1% conservative stop under entry for a long.
	assert.True(t, res.Corrected.StopPrice.Equal(decimal.NewFromInt(39600)))
	assert.True(t, res.Corrected.InitialRisk.Equal(decimal.NewFromInt(400)))
}
