// Package observe provides application-wide observability primitives for
// Cadence: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Cadence metrics.
const meterName = "github.com/MrWong99/cadence"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// EngineDuration tracks per-engine scoring latency. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	EngineDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end submission scoring latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// EngineRequests counts scoring engine invocations. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	EngineRequests metric.Int64Counter

	// EngineFallbacks counts fallback hops between engines. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	EngineFallbacks metric.Int64Counter

	// Submissions counts processed submissions. Use with attribute:
	//   attribute.String("status", ...)
	Submissions metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts engine failures. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("stage", ...)
	EngineErrors metric.Int64Counter

	// --- Score distribution ---

	// OverallScore records the weighted overall score of completed results.
	OverallScore metric.Float64Histogram

	// --- Gauges ---

	// QueueDepth tracks the number of submissions waiting to be scored.
	QueueDepth metric.Int64UpDownCounter

	// ActiveWorkers tracks the number of workers currently scoring.
	ActiveWorkers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Scoring a
// submission spans network engines and model inference, so the range runs
// longer than typical request-serving buckets.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// scoreBuckets covers the shared 0-100 score scale.
var scoreBuckets = []float64{
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EngineDuration, err = m.Float64Histogram("cadence.engine.duration",
		metric.WithDescription("Latency of one scoring engine invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("cadence.pipeline.duration",
		metric.WithDescription("End-to-end submission scoring latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EngineRequests, err = m.Int64Counter("cadence.engine.requests",
		metric.WithDescription("Total scoring engine invocations by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.EngineFallbacks, err = m.Int64Counter("cadence.engine.fallbacks",
		metric.WithDescription("Total fallback hops between engines."),
	); err != nil {
		return nil, err
	}
	if met.Submissions, err = m.Int64Counter("cadence.submissions",
		metric.WithDescription("Total processed submissions by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("cadence.engine.errors",
		metric.WithDescription("Total engine failures by engine and stage."),
	); err != nil {
		return nil, err
	}

	// Score distribution.
	if met.OverallScore, err = m.Float64Histogram("cadence.score.overall",
		metric.WithDescription("Distribution of overall scores for completed results."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("cadence.queue.depth",
		metric.WithDescription("Number of submissions waiting to be scored."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorkers, err = m.Int64UpDownCounter("cadence.workers.active",
		metric.WithDescription("Number of workers currently scoring."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("cadence.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordEngineAttempt records one engine invocation: its duration, the
// request counter, and (on failure) the error counter.
func (m *Metrics) RecordEngineAttempt(ctx context.Context, engine string, seconds float64, stage string) {
	status := "ok"
	if stage != "" {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.EngineDuration.Record(ctx, seconds, attrs)
	m.EngineRequests.Add(ctx, 1, attrs)
	if stage != "" {
		m.EngineErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("stage", stage),
		))
	}
}
