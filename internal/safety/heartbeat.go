package safety

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HEARTBEAT - Tick loop liveness witness
// ═══════════════════════════════════════════════════════════════════════════════

// HeartbeatStatus is a read-only view of the monitor.
type HeartbeatStatus struct {
	Running   bool
	BeatCount int64
	LastBeat  time.Time
	Healthy   bool
}

// Heartbeat raises an alert when the tick loop stalls past the timeout.
type Heartbeat struct {
	mu        sync.Mutex
	timeout   time.Duration
	lastBeat  time.Time
	beatCount int64
	running   bool
	stalled   bool
	stopCh    chan struct{}
	onStall   func(elapsed time.Duration)
}

// NewHeartbeat creates a monitor with the given stall timeout. onStall fires
// once per stall, not once per check.
func NewHeartbeat(timeout time.Duration, onStall func(elapsed time.Duration)) *Heartbeat {
	return &Heartbeat{
		timeout:  timeout,
		lastBeat: time.Now(),
		onStall:  onStall,
	}
}

// Start launches the watcher goroutine.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	go h.watch(h.stopCh)
	log.Info().Dur("timeout", h.timeout).Msg("💓 Heartbeat monitor started")
}

// Stop halts the watcher.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

// Beat records one liveness signal.
func (h *Heartbeat) Beat() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBeat = time.Now()
	h.beatCount++
	h.stalled = false
}

// Status returns the current liveness view.
func (h *Heartbeat) Status() HeartbeatStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HeartbeatStatus{
		Running:   h.running,
		BeatCount: h.beatCount,
		LastBeat:  h.lastBeat,
		Healthy:   time.Since(h.lastBeat) < h.timeout,
	}
}

func (h *Heartbeat) watch(stopCh chan struct{}) {
	interval := h.timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.mu.Lock()
			elapsed := time.Since(h.lastBeat)
			fire := elapsed > h.timeout && !h.stalled
			if fire {
				h.stalled = true
			}
			h.mu.Unlock()

			if fire {
				log.Error().
					Dur("elapsed", elapsed).
					Dur("timeout", h.timeout).
					Msg("🔴 No heartbeat, tick loop may be frozen")
				if h.onStall != nil {
					h.onStall(elapsed)
				}
			}
		}
	}
}
