// Package metrics holds the prometheus instruments for bulk imports
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "graphbulk"

// Metrics groups the import counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecordsEncoded *prometheus.CounterVec
	RecordsFailed  *prometheus.CounterVec
	BytesWritten   *prometheus.CounterVec
	ImportDuration prometheus.Histogram
	ActiveSessions prometheus.Gauge
}

// New creates unregistered instruments
func New() *Metrics {
	return &Metrics{
		RecordsEncoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "encoded_total",
				Help:      "Total number of records encoded and written",
			},
			[]string{"kind"},
		),

		RecordsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "failed_total",
				Help:      "Total number of records rejected during encoding",
			},
			[]string{"kind", "reason"},
		),

		BytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "bytes_written_total",
				Help:      "Total encoded bytes handed to sinks",
			},
			[]string{"kind"},
		),

		ImportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "import",
				Name:      "duration_seconds",
				Help:      "Duration of whole import batches",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "import",
				Name:      "active_sessions",
				Help:      "Number of import sessions currently open",
			},
		),
	}
}

// Register adds every instrument to reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RecordsEncoded,
		m.RecordsFailed,
		m.BytesWritten,
		m.ImportDuration,
		m.ActiveSessions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering metric: %w", err)
		}
	}
	return nil
}

// Encoded counts one written record of the given kind and size
func (m *Metrics) Encoded(kind string, size int) {
	if m == nil {
		return
	}
	m.RecordsEncoded.WithLabelValues(kind).Inc()
	m.BytesWritten.WithLabelValues(kind).Add(float64(size))
}

// Failed counts one rejected record
func (m *Metrics) Failed(kind, reason string) {
	if m == nil {
		return
	}
	m.RecordsFailed.WithLabelValues(kind, reason).Inc()
}

// ObserveImport records the duration of an import started at start
func (m *Metrics) ObserveImport(start time.Time) {
	if m == nil {
		return
	}
	m.ImportDuration.Observe(time.Since(start).Seconds())
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
