package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cohenjo/connectors/pkg/connect"
)

// PrometheusMetrics implements connect.Metrics with per-mapping counters
// and a flush-latency histogram, replacing the teacher's
// OTLP-only TelemetryManager (pkg/metrics/telemetry.go) with the
// simpler client_golang registry the teacher also imports, since a
// connector binary just needs a local /metrics endpoint rather than a
// collector round-trip.
type PrometheusMetrics struct {
	recordsWritten *prometheus.CounterVec
	batchesFlushed *prometheus.CounterVec
	flushErrors    *prometheus.CounterVec
	flushDuration  *prometheus.HistogramVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		recordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_records_written_total",
			Help: "Total number of destination records successfully flushed, by mapping.",
		}, []string{"mapping"}),
		batchesFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_batches_flushed_total",
			Help: "Total number of batches successfully flushed, by mapping.",
		}, []string{"mapping"}),
		flushErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_flush_errors_total",
			Help: "Total number of flush errors, by mapping and error kind.",
		}, []string{"mapping", "kind"}),
		flushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connector_flush_duration_seconds",
			Help:    "Duration of a successful batch flush, by mapping.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mapping"}),
	}
}

// RecordFlush implements connect.Metrics.
func (m *PrometheusMetrics) RecordFlush(mapping string, batchSize int, duration float64) {
	m.batchesFlushed.WithLabelValues(mapping).Inc()
	m.recordsWritten.WithLabelValues(mapping).Add(float64(batchSize))
	m.flushDuration.WithLabelValues(mapping).Observe(duration)
}

// RecordError implements connect.Metrics.
func (m *PrometheusMetrics) RecordError(mapping string, kind connect.Kind) {
	m.flushErrors.WithLabelValues(mapping, string(kind)).Inc()
}

var _ connect.Metrics = (*PrometheusMetrics)(nil)
