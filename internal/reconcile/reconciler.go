package reconcile

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/exchange"
	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION RECONCILER - Exchange truth over local belief
// ═══════════════════════════════════════════════════════════════════════════════
//
// Runs at the start of every managing tick. Local state is never trusted to
// be in sync; it is rebuilt from the exchange each cycle. The exchange is
// authoritative for side, size and entry price. Locally computed stop and
// target survive unless the side changed, because only the local risk
// manager knows them.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Status classifies the divergence between local and exchange state.
type Status string

const (
	StatusMatched      Status = "MATCHED"
	StatusDrifted      Status = "DRIFTED"
	StatusExchangeFlat Status = "EXCHANGE_FLAT"
	StatusLocalFlat    Status = "LOCAL_FLAT"
)

// Result is the outcome of one reconciliation.
type Result struct {
	Status      Status
	Corrected   *types.Position // nil on EXCHANGE_FLAT
	SideChanged bool            // stop/target invalidated, risk manager must recompute
}

// Reconciler compares local belief against exchange truth.
type Reconciler struct {
	sizeEpsilon  decimal.Decimal
	priceEpsilon decimal.Decimal
}

// NewReconciler creates a reconciler with the given comparison tolerances.
func NewReconciler(sizeEpsilon, priceEpsilon decimal.Decimal) *Reconciler {
	return &Reconciler{sizeEpsilon: sizeEpsilon, priceEpsilon: priceEpsilon}
}

// Reconcile resolves local belief against the exchange's report. Either side
// may be nil (flat).
func (r *Reconciler) Reconcile(local *types.Position, exch *exchange.PositionInfo, now time.Time) Result {
	switch {
	case local == nil && exch == nil:
		return Result{Status: StatusMatched}

	case local != nil && exch == nil:
		// Position closed out from under us: stop, target or manual action.
		log.Warn().Msg("⚠️ Exchange reports flat, local position treated as closed")
		return Result{Status: StatusExchangeFlat}

	case local == nil && exch != nil:
		// Position the checkpoint never heard of. Adopt it with a
		// conservative stop until the risk manager runs.
		log.Error().
			Str("symbol", exch.Symbol).
			Str("side", string(exch.Side)).
			Str("size", exch.Size.String()).
			Msg("🚨 Unknown position on exchange, adopting as local truth")
		adopted := r.adopt(exch, now)
		return Result{Status: StatusLocalFlat, Corrected: adopted, SideChanged: true}
	}

	sideChanged := local.Side != exch.Side
	sizeDrift := exch.Size.Sub(local.Size).Abs().GreaterThan(r.sizeEpsilon)
	priceDrift := exch.EntryPrice.Sub(local.EntryPrice).Abs().GreaterThan(r.priceEpsilon)

	if !sideChanged && !sizeDrift && !priceDrift {
		return Result{Status: StatusMatched, Corrected: local}
	}

	// Partial fill or external intervention: take the exchange's values,
	// keep local stop/target unless the side flipped.
	corrected := *local
	corrected.Side = exch.Side
	corrected.Size = exch.Size
	corrected.EntryPrice = exch.EntryPrice
	if sideChanged {
		corrected.StopPrice = conservativeStop(exch)
		corrected.TargetPrice = decimal.Zero
		corrected.InitialRisk = exch.EntryPrice.Sub(corrected.StopPrice).Abs()
		corrected.Trailing = types.TrailingState{}
	}

	log.Warn().
		Bool("side_changed", sideChanged).
		Str("local_size", local.Size.String()).
		Str("exchange_size", exch.Size.String()).
		Msg("⚠️ Position drift corrected from exchange")
	return Result{Status: StatusDrifted, Corrected: &corrected, SideChanged: sideChanged}
}

// adopt builds a local position from an exchange report alone.
func (r *Reconciler) adopt(exch *exchange.PositionInfo, now time.Time) *types.Position {
	stop := conservativeStop(exch)
	return &types.Position{
		TradeID:     "adopted-" + now.Format("20060102T150405"),
		Side:        exch.Side,
		EntryPrice:  exch.EntryPrice,
		Size:        exch.Size,
		StopPrice:   stop,
		InitialRisk: exch.EntryPrice.Sub(stop).Abs(),
		OpenedAt:    now,
	}
}

// conservativeStop places a default protective stop 1% past entry, tightened
// later by the risk manager.
func conservativeStop(exch *exchange.PositionInfo) decimal.Decimal {
	buffer := exch.EntryPrice.Mul(decimal.NewFromFloat(0.01))
	if exch.Side == types.Long {
		return exch.EntryPrice.Sub(buffer)
	}
	return exch.EntryPrice.Add(buffer)
}
