// Package metrics exposes Prometheus collectors for scans, fetches, gate
// decisions and duplicate audits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orgwatch"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	FetchesTotal    *prometheus.CounterVec
	ScansTotal      *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
	GateDecisions   *prometheus.CounterVec
	DuplicatePairs  *prometheus.CounterVec
	ScanJobsRunning prometheus.Gauge
}

// New creates and registers all collectors on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "requests_total",
			Help:      "HTTP fetches by classified outcome",
		}, []string{"status"}),
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Organization scans by terminal outcome",
		}, []string{"outcome"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one organization scan",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Safety gate decisions",
		}, []string{"decision"}),
		DuplicatePairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duplicates",
			Name:      "pairs_total",
			Help:      "Duplicate pairs found by match type",
		}, []string{"match_type"}),
		ScanJobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_running",
			Help:      "Scan jobs currently being processed",
		}),
	}
}

func (m *Metrics) ObserveFetch(status string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveScan(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveGate(allowed bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.GateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveDuplicate(matchType string) {
	if m == nil {
		return
	}
	m.DuplicatePairs.WithLabelValues(matchType).Inc()
}

// JobStarted increments the running-jobs gauge and returns its decrement.
func (m *Metrics) JobStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ScanJobsRunning.Inc()
	return m.ScanJobsRunning.Dec
}
