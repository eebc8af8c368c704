// Package metrics exposes Prometheus collectors for statements, grading and
// connected sessions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sqlmission"

type Metrics struct {
	statements *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	diffs      *prometheus.CounterVec
	sessions   prometheus.Gauge
	resets     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_total",
			Help:      "Statements executed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statement_duration_seconds",
			Help:      "Statement execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"kind"}),
		diffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diffs_total",
			Help:      "Submissions graded, by verdict.",
		}, []string{"verdict"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently open.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Working table resets.",
		}),
	}
	reg.MustRegister(m.statements, m.latency, m.diffs, m.sessions, m.resets)
	return m
}

// ObserveStatement records one statement. kind is SELECT, INSERT, UPDATE,
// DELETE or UNKNOWN.
func (m *Metrics) ObserveStatement(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	kind = strings.ToUpper(kind)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.statements.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveDiff(correct bool) {
	if m == nil {
		return
	}
	verdict := "incorrect"
	if correct {
		verdict = "correct"
	}
	m.diffs.WithLabelValues(verdict).Inc()
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) Reset() {
	if m != nil {
		m.resets.Inc()
	}
}
