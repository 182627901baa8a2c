package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/overseer/internal/types"
)

func TestCheckBeforeDeadline(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	po := &types.PendingOrder{OrderID: "o1", SubmittedAt: t0, ExpiryDeadline: t0.Add(300 * time.Second)}

	action, _ := NewMonitor().Check(po, t0.Add(299*time.Second))
	assert.Equal(t, ActionNone, action)

	// Exactly at the deadline the order still stands.
	action, _ = NewMonitor().Check(po, t0.Add(300*time.Second))
	assert.Equal(t, ActionNone, action)
}

func TestCheckPastDeadline(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	po := &types.PendingOrder{OrderID: "o1", SubmittedAt: t0, ExpiryDeadline: t0.Add(300 * time.Second)}

	action, reason := NewMonitor().Check(po, t0.Add(301*time.Second))
	assert.Equal(t, ActionCancel, action)
	assert.Equal(t, ReasonSetupTimeout, reason)
}

func TestCheckNilOrder(t *testing.T) {
	action, _ := NewMonitor().Check(nil, time.Now())
	assert.Equal(t, ActionNone, action)
}
