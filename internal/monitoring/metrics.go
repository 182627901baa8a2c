package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the supervisor.
type Metrics struct {
	Ticks              *prometheus.CounterVec
	TickFailures       *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	ReconcileAnomalies *prometheus.CounterVec
	VersionConflicts   prometheus.Counter
	Equity             *prometheus.GaugeVec
	Mode               *prometheus.GaugeVec
	TickDuration       prometheus.Histogram
}

// NewMetrics registers all collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_ticks_total",
			Help: "Completed supervisory ticks per session.",
		}, []string{"session"}),
		TickFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_tick_failures_total",
			Help: "Ticks aborted before checkpointing, by cause.",
		}, []string{"session", "cause"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_mode_transitions_total",
			Help: "Session mode transitions.",
		}, []string{"session", "from", "to"}),
		ReconcileAnomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_reconcile_anomalies_total",
			Help: "Non-matched reconciliation outcomes.",
		}, []string{"session", "status"}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "overseer_checkpoint_version_conflicts_total",
			Help: "Optimistic concurrency conflicts on checkpoint writes.",
		}),
		Equity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "overseer_equity",
			Help: "Last observed account equity per session.",
		}, []string{"session"}),
		Mode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "overseer_session_mode",
			Help: "Current session mode (1 for active mode, 0 otherwise).",
		}, []string{"session", "mode"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "overseer_tick_duration_seconds",
			Help:    "Wall time of one supervisory tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// SetMode flips the per-mode gauge so exactly one mode reads 1.
func (m *Metrics) SetMode(session, mode string) {
	for _, known := range []string{"HUNTING", "ORDER_PENDING", "MANAGING", "COOLDOWN"} {
		v := 0.0
		if known == mode {
			v = 1.0
		}
		m.Mode.WithLabelValues(session, known).Set(v)
	}
}
