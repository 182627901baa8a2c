package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXCHANGE CLIENT - The only mutating surface to the account
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every call may fail transiently. A timeout means "unknown outcome": the
// caller must not assume failure, it reconciles against exchange truth on the
// next tick. Order placement takes a client-supplied idempotency key so a
// retried request cannot create two live orders.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrOrderNotFound is returned when the exchange does not know the order ID.
var ErrOrderNotFound = errors.New("exchange: order not found")

// OrderStatus is the exchange-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "OPEN"
	OrderFilled   OrderStatus = "FILLED"
	OrderCanceled OrderStatus = "CANCELED"
)

// OrderSpec describes an entry order to place.
type OrderSpec struct {
	Symbol     string
	Side       types.Side
	Size       decimal.Decimal
	LimitPrice decimal.Decimal
}

// OrderState is the exchange's answer to an order query or cancel attempt.
type OrderState struct {
	ID         string
	Status     OrderStatus
	FillPrice  decimal.Decimal
	FilledSize decimal.Decimal
}

// PositionInfo is the exchange's authoritative view of an open position.
type PositionInfo struct {
	Symbol     string
	Side       types.Side
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
}

// Client is the order/position surface the supervisor depends on.
type Client interface {
	// Balance returns the current account equity.
	Balance(ctx context.Context) (decimal.Decimal, error)

	// OpenPosition returns the position for symbol, or nil when flat.
	OpenPosition(ctx context.Context, symbol string) (*PositionInfo, error)

	// PlaceOrder submits an entry order. Resubmitting with the same
	// idempotency key returns the original order ID.
	PlaceOrder(ctx context.Context, spec OrderSpec, idempotencyKey string) (string, error)

	// Order returns the current state of an order.
	Order(ctx context.Context, orderID string) (OrderState, error)

	// CancelOrder attempts to cancel and returns the order's final state.
	// Cancelling an already-filled order reports OrderFilled, not an error.
	CancelOrder(ctx context.Context, orderID string) (OrderState, error)

	// ModifyStop replaces the protective stop for the symbol's position.
	ModifyStop(ctx context.Context, symbol string, newStop decimal.Decimal) error

	// ClosePosition market-closes the symbol's position. Closing an
	// already-flat symbol is not an error.
	ClosePosition(ctx context.Context, symbol string) error
}
