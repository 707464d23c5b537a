package dispatch

import "github.com/prometheus/client_golang/prometheus"

// outcome labels for the scgid_dispatch_total counter.
const (
	outcomeHandoff           = "handoff"
	outcomeReap              = "reap"
	outcomeSpawn             = "spawn"
	outcomeProtocolViolation = "protocol_violation"
)

type metrics struct {
	workersLive    prometheus.Gauge
	dispatchTotal  *prometheus.CounterVec
	restartsTotal  prometheus.Counter
	handoffSeconds prometheus.Histogram
}

// newMetrics builds the pool's prometheus collectors and registers them
// against reg. A nil registry is accepted for tests that don't care about
// metrics wiring; the collectors are still created but never exposed.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		workersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scgid_workers_live",
			Help: "Number of worker processes currently tracked by the pool.",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scgid_dispatch_total",
			Help: "Count of dispatch loop outcomes by kind.",
		}, []string{"outcome"}),
		restartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scgid_restarts_total",
			Help: "Count of completed graceful restarts.",
		}),
		handoffSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scgid_handoff_duration_seconds",
			Help:    "Time spent in delegate_request from accept to successful hand-off.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.workersLive, m.dispatchTotal, m.restartsTotal, m.handoffSeconds)
	}

	return m
}
