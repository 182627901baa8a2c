package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/analyst"
	"github.com/web3guy0/overseer/internal/checkpoint"
	"github.com/web3guy0/overseer/internal/config"
	"github.com/web3guy0/overseer/internal/exchange"
	"github.com/web3guy0/overseer/internal/feed"
	"github.com/web3guy0/overseer/internal/monitoring"
	"github.com/web3guy0/overseer/internal/notify"
	"github.com/web3guy0/overseer/internal/orders"
	"github.com/web3guy0/overseer/internal/reconcile"
	"github.com/web3guy0/overseer/internal/risk"
	"github.com/web3guy0/overseer/internal/safety"
	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SUPERVISOR - One session's state machine
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns the SessionState for a single symbol/timeframe pair. Each tick:
//
//   1. Clone the committed state
//   2. Evaluate at most one mode transition on the clone
//   3. Checkpoint the clone (optimistic version guard)
//   4. Swap the clone in as the committed state
//
// A failed external call aborts the tick before step 3, so the durable state
// only ever reflects completed work. The exchange is mutated before the
// checkpoint commits: on crash the next tick re-reads exchange truth and
// reconciles, which is why every exchange mutation is idempotent or
// re-discoverable.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Deps bundles the supervisor's collaborators.
type Deps struct {
	Store      checkpoint.Store
	Exchange   exchange.Client
	Analyst    analyst.Analyst
	Bars       feed.BarSource
	Notifier   notify.Notifier
	Protector  *safety.EquityProtector
	Conviction *safety.ConvictionTracker
	Monitor    *orders.Monitor
	Reconciler *reconcile.Reconciler
	Risk       *risk.Manager
	Metrics    *monitoring.Metrics
	Publish    func(*types.SessionState) // nil ok
}

// Supervisor drives one session.
type Supervisor struct {
	mu             sync.Mutex
	cfg            *config.Config
	deps           Deps
	key            string
	state          *types.SessionState
	clock          func() time.Time
	conflictStreak int
}

// SessionKey derives the durable key for a symbol/timeframe pair.
func SessionKey(symbol, timeframe string) string {
	return fmt.Sprintf("%s:%s", symbol, timeframe)
}

// New creates a supervisor for one symbol. Call Recover before Run.
func New(cfg *config.Config, symbol string, deps Deps) *Supervisor {
	return &Supervisor{
		cfg:   cfg,
		deps:  deps,
		key:   SessionKey(symbol, cfg.Timeframe),
		clock: time.Now,
	}
}

// Recover loads the last checkpoint or seeds a fresh session. A checkpoint
// that fails validation halts the session instead of guessing.
func (s *Supervisor) Recover(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.deps.Store.Load(s.key)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		balance, berr := s.balance(ctx)
		if berr != nil {
			return fmt.Errorf("seed %s: %w", s.key, berr)
		}
		state = types.NewSessionState(s.key, symbol, s.cfg.Timeframe, balance, s.clock())
		if serr := s.deps.Store.Save(state, 0); serr != nil {
			return fmt.Errorf("seed %s: %w", s.key, serr)
		}
		log.Info().Str("session", s.key).Str("balance", balance.StringFixed(2)).Msg("🌱 New session seeded")

	case err != nil:
		return fmt.Errorf("recover %s: %w", s.key, err)

	default:
		if verr := state.Validate(); verr != nil {
			state.Halted = true
			state.HaltReason = verr.Error()
			s.state = state
			s.deps.Notifier.NotifyEscalation(symbol, fmt.Sprintf("corrupt checkpoint: %v", verr))
			log.Error().Err(verr).Str("session", s.key).Msg("🆘 Checkpoint failed validation, session halted")
			return nil
		}
		log.Info().
			Str("session", s.key).
			Str("mode", string(state.Mode)).
			Int64("version", state.Version).
			Bool("has_position", state.Position != nil).
			Bool("has_pending", state.Pending != nil).
			Msg("♻️ Session recovered from checkpoint")
	}

	s.state = state
	return nil
}

// Run ticks the session until the context ends.
func (s *Supervisor) Run(ctx context.Context, heartbeat *safety.Heartbeat) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("session", s.key).Msg("Supervisor stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Error().Err(err).Str("session", s.key).Msg("Tick aborted")
			}
			if heartbeat != nil {
				heartbeat.Beat()
			}
		}
	}
}

// Tick runs one supervisory cycle. An error means the tick aborted with no
// state committed; the next tick starts over from the last checkpoint.
func (s *Supervisor) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return fmt.Errorf("tick %s: not recovered", s.key)
	}
	if s.state.Halted {
		log.Warn().Str("session", s.key).Str("reason", s.state.HaltReason).Msg("Session halted, tick skipped")
		return nil
	}

	started := s.clock()
	work := s.state.Clone()
	fromMode := work.Mode

	var reason string
	var err error
	switch work.Mode {
	case types.ModeHunting:
		reason, err = s.tickHunting(ctx, work)
	case types.ModeOrderPending:
		reason, err = s.tickOrderPending(ctx, work)
	case types.ModeManaging:
		reason, err = s.tickManaging(ctx, work)
	case types.ModeCooldown:
		reason, err = s.tickCooldown(ctx, work)
	default:
		err = fmt.Errorf("unknown mode %q", work.Mode)
	}
	if err != nil {
		s.deps.Metrics.TickFailures.WithLabelValues(s.key, failureCause(err)).Inc()
		return fmt.Errorf("tick %s [%s]: %w", s.key, fromMode, err)
	}

	work.TickCount++
	work.LastTickAt = s.clock()

	if verr := work.Validate(); verr != nil {
		// A handler produced an impossible aggregate. Halt rather than persist it.
		s.haltLocked(work, verr.Error())
		return verr
	}

	if err := s.commitLocked(work); err != nil {
		s.deps.Metrics.TickFailures.WithLabelValues(s.key, failureCause(err)).Inc()
		return err
	}

	if work.Mode != fromMode {
		s.auditTransition(fromMode, work.Mode, reason, work.Version)
	}

	s.deps.Metrics.Ticks.WithLabelValues(s.key).Inc()
	s.deps.Metrics.SetMode(s.key, string(work.Mode))
	s.deps.Metrics.TickDuration.Observe(s.clock().Sub(started).Seconds())
	if s.deps.Publish != nil {
		s.deps.Publish(work)
	}
	return nil
}

// commitLocked checkpoints work and swaps it in as the committed state.
// A version conflict means another writer advanced the stored state while
// this tick evaluated a stale clone, so the tick's work is invalid: adopt
// the stored state and abort rather than re-save over it. A bounded
// consecutive-conflict streak halts the session, because a persistent
// second writer on one session key is a deployment error, not a market
// condition.
func (s *Supervisor) commitLocked(work *types.SessionState) error {
	err := s.deps.Store.Save(work, s.state.Version)
	if err == nil {
		s.state = work
		s.conflictStreak = 0
		return nil
	}
	if !errors.Is(err, checkpoint.ErrVersionConflict) {
		return fmt.Errorf("checkpoint: %w", err)
	}

	s.deps.Metrics.VersionConflicts.Inc()
	s.conflictStreak++
	if s.conflictStreak >= s.cfg.VersionConflictRetries {
		s.haltLocked(work, "checkpoint version conflicts exhausted")
		return fmt.Errorf("checkpoint: %w", err)
	}

	time.Sleep(s.cfg.VersionConflictBackoff)
	latest, lerr := s.deps.Store.Load(s.key)
	if lerr != nil {
		return fmt.Errorf("checkpoint reload: %w", lerr)
	}
	s.state = latest
	log.Warn().
		Str("session", s.key).
		Int("streak", s.conflictStreak).
		Int64("stored_version", latest.Version).
		Msg("⚠️ Checkpoint version conflict, adopted stored state")
	return fmt.Errorf("checkpoint: %w", err)
}

// haltLocked latches the halted flag and escalates. Best-effort persist: the
// in-memory latch alone already stops future ticks.
func (s *Supervisor) haltLocked(work *types.SessionState, why string) {
	work.Halted = true
	work.HaltReason = why
	s.state = work
	if err := s.deps.Store.Save(work, work.Version); err != nil {
		log.Error().Err(err).Str("session", s.key).Msg("Failed to persist halt")
	}
	s.deps.Notifier.NotifyEscalation(s.state.Symbol, why)
	log.Error().Str("session", s.key).Str("reason", why).Msg("🆘 Session halted")
}

func (s *Supervisor) auditTransition(from, to types.Mode, reason string, version int64) {
	log.Info().
		Str("session", s.key).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("🔀 Mode transition")
	s.deps.Metrics.Transitions.WithLabelValues(s.key, string(from), string(to)).Inc()

	t := &checkpoint.Transition{
		SessionKey: s.key,
		FromMode:   string(from),
		ToMode:     string(to),
		Reason:     reason,
		Version:    version,
		At:         s.clock(),
	}
	if err := s.deps.Store.AppendTransition(t); err != nil {
		// Audit row loss is tolerable, the state itself is already durable.
		log.Error().Err(err).Str("session", s.key).Msg("Failed to append transition audit row")
	}
}

// ForceEnable clears the equity protector trips and releases a cooldown.
// Operator override, checkpointed immediately.
func (s *Supervisor) ForceEnable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return fmt.Errorf("force-enable %s: not recovered", s.key)
	}

	work := s.state.Clone()
	s.deps.Protector.ForceEnable(&work.Equity)
	from := work.Mode
	if work.Mode == types.ModeCooldown {
		work.Mode = types.ModeHunting
	}
	if err := s.commitLocked(work); err != nil {
		return err
	}
	if work.Mode != from {
		s.auditTransition(from, work.Mode, "OPERATOR_OVERRIDE", work.Version)
	}
	return nil
}

// Snapshot returns a copy of the committed state.
func (s *Supervisor) Snapshot() *types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return s.state.Clone()
}

// balance fetches account equity under the exchange timeout.
func (s *Supervisor) balance(ctx context.Context) (decimal.Decimal, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()
	return s.deps.Exchange.Balance(cctx)
}

// failureCause buckets tick errors for the failure counter.
func failureCause(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, checkpoint.ErrVersionConflict):
		return "version_conflict"
	default:
		return "external"
	}
}
