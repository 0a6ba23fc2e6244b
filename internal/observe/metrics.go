// Package observe provides observability primitives for the trntxt server:
// OpenTelemetry metrics, spans, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via the Prometheus bridge set up by [InitProvider], so the standard
// /metrics endpoint keeps working. A package-level default [Metrics]
// instance ([DefaultMetrics]) exists for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all trntxt metrics.
const meterName = "github.com/trntxt/trntxt"

// Pipeline stage labels for [Metrics.StageDuration].
const (
	StageFetch      = "fetch"
	StageTranscribe = "transcribe"
	StageExtract    = "extract"
	StageResolve    = "resolve"
	StageQuery      = "query"
	StageCompose    = "compose"
	StageNotify     = "notify"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// PipelineRuns counts completed pipelines. Use with attribute:
	//   attribute.String("status", ...) — "notified", "fallback",
	//   "transport_error", "transcription_error", "notify_miss",
	//   "delivery_failure"
	PipelineRuns metric.Int64Counter

	// SMSMessages counts SMS submissions by status ("accepted", "rejected",
	// "error").
	SMSMessages metric.Int64Counter

	// SessionLookups counts cache lookups by result ("hit", "miss").
	SessionLookups metric.Int64Counter

	// HTTPRequestDuration tracks webhook request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The
// pipeline's slow stages are network transfers and batch inference, so the
// buckets stretch further than typical request-serving histograms.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("trntxt.pipeline.stage.duration",
		metric.WithDescription("Latency of each notification pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineRuns, err = m.Int64Counter("trntxt.pipeline.runs",
		metric.WithDescription("Completed notification pipelines by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.SMSMessages, err = m.Int64Counter("trntxt.sms.messages",
		metric.WithDescription("SMS gateway submissions by status."),
	); err != nil {
		return nil, err
	}
	if met.SessionLookups, err = m.Int64Counter("trntxt.session.lookups",
		metric.WithDescription("Session cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("trntxt.http.request.duration",
		metric.WithDescription("Webhook request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordStage records one pipeline stage's latency.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordPipelineRun records a pipeline reaching a terminal status.
func (m *Metrics) RecordPipelineRun(ctx context.Context, status string) {
	m.PipelineRuns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSMS records an SMS submission outcome.
func (m *Metrics) RecordSMS(ctx context.Context, status string) {
	m.SMSMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSessionLookup records a session cache lookup result.
func (m *Metrics) RecordSessionLookup(ctx context.Context, result string) {
	m.SessionLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}
