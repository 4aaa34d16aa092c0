package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// TelemetryManager owns the OTel SDK wiring for one connector process:
// a MeterProvider backed by the Prometheus exporter (so OTel-recorded
// instruments land on the same /metrics endpoint PrometheusMetrics
// serves, rather than standing up a second scrape target) and a
// TracerProvider used to trace individual flush/transform/write spans.
// Adapted from the teacher's pkg/metrics/telemetry.go, which wired the
// OTLP gRPC exporter for a fleet of MongoDB replication streams; this
// generalizes the same SDK setup to one connector's flush pipeline and
// drops the OTLP collector dependency in favor of the exporter this
// repo already scrapes locally.
type TelemetryManager struct {
	config TelemetryConfig

	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	flushDuration  metric.Float64Histogram
	transformFails metric.Int64Counter
	activeMappings metric.Int64UpDownCounter
}

// TelemetryConfig names the connector process for OTel resource
// attribution and supplies the Prometheus registry its exporter writes
// into.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Registry       *stdprometheus.Registry
}

func NewTelemetryManager(config TelemetryConfig) (*TelemetryManager, error) {
	if config.ServiceName == "" {
		config.ServiceName = "connector"
	}
	if config.Registry == nil {
		config.Registry = stdprometheus.NewRegistry()
	}

	tm := &TelemetryManager{config: config}
	if err := tm.initialize(); err != nil {
		return nil, err
	}
	return tm, nil
}

func (tm *TelemetryManager) initialize() error {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(tm.config.ServiceName),
		semconv.ServiceVersionKey.String(tm.config.ServiceVersion),
	))
	if err != nil {
		return fmt.Errorf("build otel resource: %w", err)
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(tm.config.Registry))
	if err != nil {
		return fmt.Errorf("create otel prometheus exporter: %w", err)
	}

	tm.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(tm.meterProvider)
	tm.meter = tm.meterProvider.Meter("github.com/cohenjo/connectors")

	// Tracing is left on the global no-op TracerProvider unless a
	// collector is configured — spans are still created and attributed,
	// just not exported, so StartSpan call sites don't need a feature
	// flag of their own.
	tm.tracerProvider = otel.GetTracerProvider()
	tm.tracer = tm.tracerProvider.Tracer("github.com/cohenjo/connectors")

	return tm.createInstruments()
}

func (tm *TelemetryManager) createInstruments() error {
	var err error
	tm.flushDuration, err = tm.meter.Float64Histogram(
		"connector.otel.flush.duration",
		metric.WithDescription("Duration of destination flush operations, traced via OTel."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create flush duration histogram: %w", err)
	}

	tm.transformFails, err = tm.meter.Int64Counter(
		"connector.otel.transform.failures",
		metric.WithDescription("Count of payload transformation failures, by mapping."),
	)
	if err != nil {
		return fmt.Errorf("create transform failure counter: %w", err)
	}

	tm.activeMappings, err = tm.meter.Int64UpDownCounter(
		"connector.otel.mappings.active",
		metric.WithDescription("Number of mappings with an open destination handle."),
	)
	if err != nil {
		return fmt.Errorf("create active mappings gauge: %w", err)
	}

	return nil
}

// StartFlushSpan begins a span covering one mapping's flush call,
// returning the derived context and span so the caller can set its
// status and End it once the write completes.
func (tm *TelemetryManager) StartFlushSpan(ctx context.Context, mapping string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "connector.flush",
		trace.WithAttributes(attribute.String("mapping", mapping)))
}

// RecordFlushDuration records one successful flush's wall-clock
// duration against the OTel histogram, kept alongside (not instead of)
// connect.Metrics.RecordFlush's client_golang counters.
func (tm *TelemetryManager) RecordFlushDuration(ctx context.Context, mapping string, seconds float64) {
	tm.flushDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("mapping", mapping)))
}

// RecordTransformFailure increments the OTel transform-failure counter.
func (tm *TelemetryManager) RecordTransformFailure(ctx context.Context, mapping string) {
	tm.transformFails.Add(ctx, 1, metric.WithAttributes(attribute.String("mapping", mapping)))
}

// SetMappingOpened/SetMappingClosed track how many destination handles
// are currently open, surfaced as a gauge for operator dashboards.
func (tm *TelemetryManager) SetMappingOpened(ctx context.Context, mapping string) {
	tm.activeMappings.Add(ctx, 1, metric.WithAttributes(attribute.String("mapping", mapping)))
}

func (tm *TelemetryManager) SetMappingClosed(ctx context.Context, mapping string) {
	tm.activeMappings.Add(ctx, -1, metric.WithAttributes(attribute.String("mapping", mapping)))
}

// Shutdown flushes and releases the MeterProvider. Safe to call once at
// process exit.
func (tm *TelemetryManager) Shutdown(ctx context.Context) error {
	if tm.meterProvider == nil {
		return nil
	}
	return tm.meterProvider.Shutdown(ctx)
}
