package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/overseer/internal/types"
)

func TestConvictionRequiresTwoConfirmations(t *testing.T) {
	tr := NewConvictionTracker(2, 2*time.Minute)
	cs := &types.ConvictionState{Symbol: "BTCUSDT", ProposedSide: types.Flat}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tr.Submit(cs, "sig-1", types.Long, now)
	assert.False(t, tr.Confirmed(cs, now))

	tr.Submit(cs, "sig-2", types.Long, now.Add(30*time.Second))
	assert.True(t, tr.Confirmed(cs, now.Add(30*time.Second)))
}

func TestDuplicateSignalDoesNotCount(t *testing.T) {
	tr := NewConvictionTracker(2, 2*time.Minute)
	cs := &types.ConvictionState{Symbol: "BTCUSDT", ProposedSide: types.Flat}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tr.Submit(cs, "sig-1", types.Long, now)
	count := tr.Submit(cs, "sig-1", types.Long, now.Add(10*time.Second))

	assert.Equal(t, 1, count)
	assert.False(t, tr.Confirmed(cs, now.Add(10*time.Second)))
}

func TestSideChangeResetsConviction(t *testing.T) {
	tr := NewConvictionTracker(2, 2*time.Minute)
	cs := &types.ConvictionState{Symbol: "BTCUSDT", ProposedSide: types.Flat}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tr.Submit(cs, "sig-1", types.Long, now)
	count := tr.Submit(cs, "sig-2", types.Short, now.Add(10*time.Second))

	assert.Equal(t, 1, count)
	assert.Equal(t, types.Short, cs.ProposedSide)
	assert.False(t, tr.Confirmed(cs, now.Add(10*time.Second)))
}

func TestConfirmationsAgeOut(t *testing.T) {
	tr := NewConvictionTracker(2, 2*time.Minute)
	cs := &types.ConvictionState{Symbol: "BTCUSDT", ProposedSide: types.Flat}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tr.Submit(cs, "sig-1", types.Long, now)
	// The second confirmation lands after the first has aged out.
	count := tr.Submit(cs, "sig-2", types.Long, now.Add(3*time.Minute))

	assert.Equal(t, 1, count)
	assert.False(t, tr.Confirmed(cs, now.Add(3*time.Minute)))
}

func TestResetClearsTracking(t *testing.T) {
	tr := NewConvictionTracker(2, 2*time.Minute)
	cs := &types.ConvictionState{Symbol: "BTCUSDT", ProposedSide: types.Flat}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tr.Submit(cs, "sig-1", types.Long, now)
	tr.Submit(cs, "sig-2", types.Long, now)
	tr.Reset(cs)

	assert.Equal(t, types.Flat, cs.ProposedSide)
	assert.Empty(t, cs.Confirmations)
	assert.False(t, tr.Confirmed(cs, now))
}
