package orders

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER MONITOR - Entry order time budget
// ═══════════════════════════════════════════════════════════════════════════════
//
// A setup that has not triggered inside its time budget is a dead setup.
// The monitor only decides; the supervisor performs the cancel and must
// confirm the outcome with the exchange, because "cancel" can race a fill.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Action is the monitor's verdict on a pending order.
type Action string

const (
	ActionNone   Action = "NONE"
	ActionCancel Action = "CANCEL"
)

// CancelReason explains a cancel verdict.
type CancelReason string

const (
	ReasonSetupTimeout CancelReason = "SETUP_TIMEOUT"
)

// Monitor watches pending entry orders against their deadline.
type Monitor struct{}

// NewMonitor creates an order monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Check returns CANCEL once the order has outlived its expiry deadline.
func (m *Monitor) Check(po *types.PendingOrder, now time.Time) (Action, CancelReason) {
	if po == nil {
		return ActionNone, ""
	}
	if now.After(po.ExpiryDeadline) {
		log.Warn().
			Str("order_id", po.OrderID).
			Time("deadline", po.ExpiryDeadline).
			Msg("⏱️ Setup not triggered in time")
		return ActionCancel, ReasonSetupTimeout
	}
	return ActionNone, ""
}
