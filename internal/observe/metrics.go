// Package observe provides the observability primitives of phoneval:
// OpenTelemetry metrics, tracing helpers, trace-aware structured logging and
// the HTTP middleware for the /metrics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. A package-level [DefaultMetrics] instance is
// provided for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phoneval metrics.
const meterName = "github.com/MrWong99/phoneval"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// STTDuration tracks transcription latency per provider.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks narration latency per provider.
	LLMDuration metric.Float64Histogram

	// ErrorRate records the per-sample error rate. Use with attributes:
	//   attribute.String("metric", ...), attribute.String("task", ...)
	ErrorRate metric.Float64Histogram

	// SamplesScored, SamplesSkipped and SamplesFailed count batch samples
	// by outcome. Use with attributes:
	//   attribute.String("metric", ...), attribute.String("task", ...)
	SamplesScored  metric.Int64Counter
	SamplesSkipped metric.Int64Counter
	SamplesFailed  metric.Int64Counter

	// CacheHits counts samples whose score was served from the store.
	CacheHits metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// HTTPRequestDuration tracks request time on the metrics listener.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for provider calls,
// which range from a local whisper.cpp server to a remote LLM.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// rateBuckets cover error rates from perfect to well above one.
var rateBuckets = []float64{
	0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("phoneval.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("phoneval.llm.duration",
		metric.WithDescription("Latency of LLM narration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ErrorRate, err = m.Float64Histogram("phoneval.sample.error_rate",
		metric.WithDescription("Per-sample error rate by metric and task."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(rateBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SamplesScored, err = m.Int64Counter("phoneval.samples.scored",
		metric.WithDescription("Samples scored by metric and task."),
	); err != nil {
		return nil, err
	}
	if met.SamplesSkipped, err = m.Int64Counter("phoneval.samples.skipped",
		metric.WithDescription("Samples skipped for an empty reference."),
	); err != nil {
		return nil, err
	}
	if met.SamplesFailed, err = m.Int64Counter("phoneval.samples.failed",
		metric.WithDescription("Samples that could not be scored."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("phoneval.store.cache_hits",
		metric.WithDescription("Scores served from the result store."),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("phoneval.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phoneval.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("phoneval.http.request.duration",
		metric.WithDescription("Metrics listener request latency by route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the Prometheus bridge.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func sampleAttrs(kind, task string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("metric", kind),
		attribute.String("task", task),
	)
}

// RecordScore counts a scored sample and records its rate.
func (m *Metrics) RecordScore(ctx context.Context, kind, task string, rate float64) {
	attrs := sampleAttrs(kind, task)
	m.SamplesScored.Add(ctx, 1, attrs)
	m.ErrorRate.Record(ctx, rate, attrs)
}

// RecordSkipped counts a sample skipped for an empty reference.
func (m *Metrics) RecordSkipped(ctx context.Context, kind, task string) {
	m.SamplesSkipped.Add(ctx, 1, sampleAttrs(kind, task))
}

// RecordFailed counts a sample that failed at stage ("transcribe", "score").
func (m *Metrics) RecordFailed(ctx context.Context, task, stage string) {
	m.SamplesFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("stage", stage),
	))
}

// RecordProviderRequest records a provider request with its outcome status.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
