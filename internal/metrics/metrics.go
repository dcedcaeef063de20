// Package metrics exposes run counters in the Prometheus text format. A
// batch tool has no scrape endpoint, so the registry is written to a
// textfile for node_exporter's textfile collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leapstack-labs/harmonize/pkg/core"
)

const namespace = "harmonize"

// Study outcomes.
const (
	OutcomeClean    = "clean"
	OutcomeFindings = "findings"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors of one invocation. A nil *Metrics records
// nothing, so callers never need to check.
type Metrics struct {
	reg *prometheus.Registry

	studies   *prometheus.CounterVec
	findings  *prometheus.CounterVec
	rows      *prometheus.CounterVec
	published *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		studies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "studies_total",
			Help:      "Study phases processed, by phase and outcome.",
		}, []string{"phase", "outcome"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings written to error logs, by phase, code and severity.",
		}, []string{"phase", "code", "severity"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Data rows seen by the transformer, by result.",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_objects_total",
			Help:      "Artifacts handled by publish, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of one study phase.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"phase"}),
	}
	m.reg.MustRegister(m.studies, m.findings, m.rows, m.published, m.duration)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Study records the outcome of one study phase and how long it took.
func (m *Metrics) Study(phase core.Phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	p := strconv.Itoa(int(phase))
	m.studies.WithLabelValues(p, outcome).Inc()
	m.duration.WithLabelValues(p).Observe(d.Seconds())
}

// Findings counts logged findings.
func (m *Metrics) Findings(phase core.Phase, errs []core.HarmonizationError) {
	if m == nil {
		return
	}
	p := strconv.Itoa(int(phase))
	for _, e := range errs {
		m.findings.WithLabelValues(p, string(e.Code), e.Severity.String()).Inc()
	}
}

// Rows counts transformer output.
func (m *Metrics) Rows(written, omitted int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues("written").Add(float64(written))
	m.rows.WithLabelValues("omitted").Add(float64(omitted))
}

// Published counts one publish decision: "uploaded", "replaced" or "unchanged".
func (m *Metrics) Published(result string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(result).Inc()
}

// WriteTextfile writes the registry to path in the Prometheus text format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
