package notify

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// Notifier delivers operator-facing alerts. Every method is fire-and-forget:
// delivery failure is logged and never blocks or fails a tick.
type Notifier interface {
	NotifyStartup(mode string, symbols []string, balance decimal.Decimal)
	NotifyOrderPlaced(symbol string, po *types.PendingOrder)
	NotifyOrderCanceled(symbol, orderID, reason string)
	NotifyPositionOpened(symbol string, pos *types.Position)
	NotifyPositionClosed(symbol, tradeID string, pnl decimal.Decimal)
	NotifyCooldown(symbol, reason string)
	NotifyEscalation(symbol, detail string)
}

// Noop discards all notifications. Used when Telegram is not configured.
type Noop struct{}

func (Noop) NotifyStartup(string, []string, decimal.Decimal)      {}
func (Noop) NotifyOrderPlaced(string, *types.PendingOrder)        {}
func (Noop) NotifyOrderCanceled(string, string, string)           {}
func (Noop) NotifyPositionOpened(string, *types.Position)         {}
func (Noop) NotifyPositionClosed(string, string, decimal.Decimal) {}
func (Noop) NotifyCooldown(string, string)                        {}
func (Noop) NotifyEscalation(string, string)                      {}
