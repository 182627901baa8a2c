package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MONITORING SERVER - /metrics and read-only session snapshots
// ═══════════════════════════════════════════════════════════════════════════════

// Server exposes Prometheus metrics and JSON session snapshots.
type Server struct {
	mu        sync.RWMutex
	snapshots map[string]*types.SessionState
	srv       *http.Server
}

// NewServer creates a monitoring server bound to addr.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	s := &Server{snapshots: make(map[string]*types.SessionState)}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("📊 Monitoring server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Monitoring server failed")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Publish stores a read-only snapshot of a session after a committed tick.
func (s *Server) Publish(state *types.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[state.SessionKey] = state.Clone()
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]*types.SessionState, 0, len(s.snapshots))
	for _, st := range s.snapshots {
		out = append(out, st)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Error().Err(err).Msg("Failed to encode session snapshots")
	}
}
