package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Session state aggregate and its parts. Avoid import cycles.
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the direction of a trade.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
	Flat  Side = "FLAT"
)

// Mode is the supervisory phase of a session.
type Mode string

const (
	ModeHunting      Mode = "HUNTING"
	ModeOrderPending Mode = "ORDER_PENDING"
	ModeManaging     Mode = "MANAGING"
	ModeCooldown     Mode = "COOLDOWN"
)

// Valid reports whether m is one of the four closed modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeHunting, ModeOrderPending, ModeManaging, ModeCooldown:
		return true
	}
	return false
}

// Bar is a single OHLCV candle.
type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// TrailingState tracks stop progression for an open position.
type TrailingState struct {
	BreakevenLocked bool      `json:"breakeven_locked"`
	LastBarTime     time.Time `json:"last_bar_time"`
}

// Position is an open trade. Owned by the supervisor; mutated only through
// the risk manager and the reconciler.
type Position struct {
	TradeID     string          `json:"trade_id"`
	Side        Side            `json:"side"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Size        decimal.Decimal `json:"size"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	InitialRisk decimal.Decimal `json:"initial_risk"` // entry-to-stop distance at open
	OpenedAt    time.Time       `json:"opened_at"`
	Trailing    TrailingState   `json:"trailing"`
}

// PendingOrder is an outstanding entry order.
type PendingOrder struct {
	OrderID        string          `json:"order_id"`
	ClientID       string          `json:"client_id"` // idempotency key
	SubmittedAt    time.Time       `json:"submitted_at"`
	ExpiryDeadline time.Time       `json:"expiry_deadline"`
	Side           Side            `json:"side"`
	Size           decimal.Decimal `json:"size"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	StopPrice      decimal.Decimal `json:"stop_price"`   // protective stop to apply on fill
	TargetPrice    decimal.Decimal `json:"target_price"` // measured-move target to apply on fill
	SignalID       string          `json:"signal_id"`
}

// EquitySnapshot is the equity protector's persisted view of the account.
type EquitySnapshot struct {
	Day               string          `json:"day"` // baseline day, "2006-01-02"
	DailyStartEquity  decimal.Decimal `json:"daily_start_equity"`
	CurrentEquity     decimal.Decimal `json:"current_equity"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	CooldownUntil     time.Time       `json:"cooldown_until"`
	RecordedTradeIDs  []string        `json:"recorded_trade_ids"` // replay guard, capped
}

// Confirmation is one timestamped analyst signal backing a proposal.
type Confirmation struct {
	SignalID string    `json:"signal_id"`
	At       time.Time `json:"at"`
}

// ConvictionState accumulates independent confirmations for one side.
type ConvictionState struct {
	Symbol        string         `json:"symbol"`
	ProposedSide  Side           `json:"proposed_side"`
	Confirmations []Confirmation `json:"confirmations"`
	FirstSeenAt   time.Time      `json:"first_seen_at"`
}

// Proposal is the analyst's trade suggestion. Untrusted input until the
// conviction tracker has seen it confirmed.
type Proposal struct {
	SignalID       string
	Side           Side
	SetupQuality   decimal.Decimal // 0..1
	Entry          decimal.Decimal
	StopDistance   decimal.Decimal
	TargetDistance decimal.Decimal
}

// SessionState is the full supervisor state for one symbol/timeframe pair.
// Exactly one tick mutates it at a time; it survives restarts through the
// checkpoint store.
type SessionState struct {
	SessionKey string          `json:"session_key"`
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Mode       Mode            `json:"mode"`
	Position   *Position       `json:"position,omitempty"`
	Pending    *PendingOrder   `json:"pending_order,omitempty"`
	Equity     EquitySnapshot  `json:"equity_snapshot"`
	Conviction ConvictionState `json:"conviction_state"`
	LastTickAt time.Time       `json:"last_tick_at"`
	TickCount  int64           `json:"tick_count"`
	Version    int64           `json:"version"`
	Halted     bool            `json:"halted"`
	HaltReason string          `json:"halt_reason,omitempty"`
}

// NewSessionState seeds a fresh session in hunting mode.
func NewSessionState(sessionKey, symbol, timeframe string, balance decimal.Decimal, now time.Time) *SessionState {
	return &SessionState{
		SessionKey: sessionKey,
		Symbol:     symbol,
		Timeframe:  timeframe,
		Mode:       ModeHunting,
		Equity: EquitySnapshot{
			Day:              now.Format("2006-01-02"),
			DailyStartEquity: balance,
			CurrentEquity:    balance,
		},
		Conviction: ConvictionState{Symbol: symbol, ProposedSide: Flat},
		LastTickAt: now,
	}
}

// Validate checks the structural invariants of the aggregate. A violation
// means checkpoint corruption or a concurrency bug, never a recoverable
// market condition.
func (s *SessionState) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if s.Position != nil && s.Pending != nil {
		return fmt.Errorf("position and pending order both set")
	}
	if (s.Mode == ModeManaging) != (s.Position != nil) {
		return fmt.Errorf("mode %s inconsistent with position=%v", s.Mode, s.Position != nil)
	}
	if (s.Mode == ModeOrderPending) != (s.Pending != nil) {
		return fmt.Errorf("mode %s inconsistent with pending=%v", s.Mode, s.Pending != nil)
	}
	return nil
}

// Clone returns a deep copy. Ticks mutate the copy and commit it only after
// the checkpoint write succeeds.
func (s *SessionState) Clone() *SessionState {
	out := *s
	if s.Position != nil {
		pos := *s.Position
		out.Position = &pos
	}
	if s.Pending != nil {
		po := *s.Pending
		out.Pending = &po
	}
	out.Equity.RecordedTradeIDs = append([]string(nil), s.Equity.RecordedTradeIDs...)
	out.Conviction.Confirmations = append([]Confirmation(nil), s.Conviction.Confirmations...)
	return &out
}

// Opposite returns the reverse side.
func (s Side) Opposite() Side {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	}
	return Flat
}
