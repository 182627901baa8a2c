package safety

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONVICTION TRACKER - Multi-signal confirmation gate
// ═══════════════════════════════════════════════════════════════════════════════
//
// A single analyst proposal is never enough to deploy capital: the same side
// must be proposed by independent signals within a time window. A proposal
// for the opposite side wipes the slate, so conviction never carries across
// a reversal.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ConvictionTracker gates proposals behind temporal agreement.
type ConvictionTracker struct {
	required int
	window   time.Duration
}

// NewConvictionTracker builds a tracker requiring `required` confirmations
// within `window`.
func NewConvictionTracker(required int, window time.Duration) *ConvictionTracker {
	return &ConvictionTracker{required: required, window: window}
}

// Submit records one confirmation and returns the current count for the
// tracked side. A side change resets tracking to this single confirmation.
// Duplicate signal sources and aged-out confirmations are not counted.
func (t *ConvictionTracker) Submit(cs *types.ConvictionState, signalID string, side types.Side, now time.Time) int {
	if side != cs.ProposedSide {
		if cs.ProposedSide != types.Flat && cs.ProposedSide != "" {
			log.Info().
				Str("from", string(cs.ProposedSide)).
				Str("to", string(side)).
				Msg("🔄 Proposal side changed, conviction reset")
		}
		cs.ProposedSide = side
		cs.Confirmations = nil
		cs.FirstSeenAt = now
	}

	t.purge(cs, now)

	for _, c := range cs.Confirmations {
		if c.SignalID == signalID {
			return len(cs.Confirmations)
		}
	}

	cs.Confirmations = append(cs.Confirmations, types.Confirmation{SignalID: signalID, At: now})
	log.Debug().
		Str("side", string(side)).
		Str("signal", signalID).
		Int("count", len(cs.Confirmations)).
		Int("required", t.required).
		Msg("Confirmation added")
	return len(cs.Confirmations)
}

// Confirmed reports whether the tracked side has enough live confirmations.
func (t *ConvictionTracker) Confirmed(cs *types.ConvictionState, now time.Time) bool {
	t.purge(cs, now)
	return cs.ProposedSide != types.Flat && cs.ProposedSide != "" &&
		len(cs.Confirmations) >= t.required
}

// Reset clears all tracking, used after an order is placed or a setup dies.
func (t *ConvictionTracker) Reset(cs *types.ConvictionState) {
	cs.ProposedSide = types.Flat
	cs.Confirmations = nil
	cs.FirstSeenAt = time.Time{}
}

// purge drops confirmations older than the window before counting.
func (t *ConvictionTracker) purge(cs *types.ConvictionState, now time.Time) {
	if len(cs.Confirmations) == 0 {
		return
	}
	cutoff := now.Add(-t.window)
	kept := cs.Confirmations[:0]
	for _, c := range cs.Confirmations {
		if c.At.After(cutoff) {
			kept = append(kept, c)
		}
	}
	cs.Confirmations = kept
}
