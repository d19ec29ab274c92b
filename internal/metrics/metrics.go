// Package metrics exposes campaign counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwygoda/pitcher/internal/domain"
)

const namespace = "pitcher"

// Metrics holds the collectors. They are registered on the registry passed
// to New, so tests can use their own.
type Metrics struct {
	discovered     *prometheus.CounterVec
	sourceErrors   *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	inFlight       prometheus.Gauge
	waiting        prometheus.Gauge
	adjustments    *prometheus.CounterVec
	variantResults *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "items_total",
			Help:      "Items returned by each source before deduplication",
		}, []string{"source"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "errors_total",
			Help:      "Failed source queries",
		}, []string{"source"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempts",
			Name:      "outcomes_total",
			Help:      "Terminal attempt outcomes by strategy and state",
		}, []string{"strategy", "state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempts",
			Name:      "failures_total",
			Help:      "Failed attempts by failure kind and category",
		}, []string{"kind", "category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attempts",
			Name:      "duration_seconds",
			Help:      "Attempt wall time from admission to terminal state",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"strategy"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempts",
			Name:      "runs_total",
			Help:      "State machine runs per strategy, retries included",
		}, []string{"strategy"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "in_flight",
			Help:      "Attempts holding a capacity token",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "waiting",
			Help:      "Attempts waiting for a capacity token",
		}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "adjustments_total",
			Help:      "Strategy profile adjustments by parameter",
		}, []string{"strategy", "parameter"}),
		variantResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "speed",
			Name:      "results_total",
			Help:      "Attempt results per speed variant",
		}, []string{"variant", "result"}),
	}
	reg.MustRegister(
		m.discovered, m.sourceErrors, m.outcomes, m.failures, m.duration,
		m.runs, m.inFlight, m.waiting, m.adjustments, m.variantResults,
	)
	return m
}

// ObserveDiscovery implements discovery.Recorder.
func (m *Metrics) ObserveDiscovery(source string, found int, err error) {
	if err != nil {
		m.sourceErrors.WithLabelValues(source).Inc()
		return
	}
	m.discovered.WithLabelValues(source).Add(float64(found))
}

// ObserveOutcome records a terminal outcome.
func (m *Metrics) ObserveOutcome(o domain.Outcome) {
	strat := ""
	var d time.Duration
	runs := 0
	if o.Attempt != nil {
		strat = o.Attempt.Strategy
		d = o.Attempt.Duration()
		runs = o.Attempt.Count
	}
	m.outcomes.WithLabelValues(strat, string(o.State)).Inc()
	if !o.Success() && o.State != domain.StateSkipped {
		m.failures.WithLabelValues(string(o.Kind), string(o.Category)).Inc()
	}
	if o.State != domain.StateSkipped {
		m.duration.WithLabelValues(strat).Observe(d.Seconds())
		m.runs.WithLabelValues(strat).Add(float64(runs))
	}
}

// ObserveVariant records one variant result.
func (m *Metrics) ObserveVariant(variant string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.variantResults.WithLabelValues(variant, result).Inc()
}

// ObserveAdjustment counts one profile adjustment.
func (m *Metrics) ObserveAdjustment(strategy, parameter string) {
	m.adjustments.WithLabelValues(strategy, parameter).Inc()
}

// SetAdmission reports scheduler occupancy.
func (m *Metrics) SetAdmission(inFlight, waiting int) {
	m.inFlight.Set(float64(inFlight))
	m.waiting.Set(float64(waiting))
}
