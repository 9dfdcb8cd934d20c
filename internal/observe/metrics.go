// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing, trace-aware structured logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider] so they can be scraped from /metrics. Tests
// should build their own [Metrics] with [NewMetrics] and a manual reader
// instead of touching [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/voicenotes"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// --- Latency histograms ---

	// PipelineStageDuration tracks each transcription pipeline stage. Use with
	// attribute.String("stage", ...) and attribute.String("status", ...).
	PipelineStageDuration metric.Float64Histogram

	// LLMDuration tracks model request latency by provider and kind
	// ("complete" or "stream").
	LLMDuration metric.Float64Histogram

	// STTDuration tracks dictation latency from first audio to final result.
	STTDuration metric.Float64Histogram

	// RecordingDuration tracks the length of finished recordings.
	RecordingDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by provider,
	// kind and the state entered.
	BreakerTransitions metric.Int64Counter

	// Recordings counts finished recordings by outcome
	// ("saved", "failed", "empty", "capture_error").
	Recordings metric.Int64Counter

	// ChatMessages counts assistant turns by status.
	ChatMessages metric.Int64Counter

	// Exports counts DOCX exports by kind ("notes" or "answer") and status.
	Exports metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings is 1 while the microphone is being captured.
	ActiveRecordings metric.Int64UpDownCounter

	// ActiveSubscribers tracks connected event-stream clients.
	ActiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers everything from a local call to a long transcription.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineStageDuration, err = m.Float64Histogram("voicenotes.pipeline.stage.duration",
		metric.WithDescription("Latency of each transcription pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voicenotes.llm.duration",
		metric.WithDescription("Latency of model requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voicenotes.stt.duration",
		metric.WithDescription("Latency of dictation transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("voicenotes.recording.duration",
		metric.WithDescription("Length of finished recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("voicenotes.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voicenotes.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("voicenotes.provider.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider, kind, and state."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("voicenotes.recordings",
		metric.WithDescription("Finished recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ChatMessages, err = m.Int64Counter("voicenotes.chat.messages",
		metric.WithDescription("Assistant turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Exports, err = m.Int64Counter("voicenotes.exports",
		metric.WithDescription("Document exports by kind and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveRecordings, err = m.Int64UpDownCounter("voicenotes.active_recordings",
		metric.WithDescription("Number of recordings in progress."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("voicenotes.active_subscribers",
		metric.WithDescription("Number of connected event-stream clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicenotes.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard attribute set.
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

// RecordBreakerTransition records a provider's circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, kind, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("state", state),
		),
	)
}

// RecordStage records the latency and outcome of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.PipelineStageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", statusOf(err)),
		),
	)
}

// RecordRecording records a finished recording.
func (m *Metrics) RecordRecording(ctx context.Context, outcome string, d time.Duration) {
	m.Recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if d > 0 {
		m.RecordingDuration.Record(ctx, d.Seconds())
	}
}

// RecordChatMessage records an assistant turn.
func (m *Metrics) RecordChatMessage(ctx context.Context, err error) {
	m.ChatMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("status", statusOf(err))))
}

// RecordExport records a document export.
func (m *Metrics) RecordExport(ctx context.Context, kind string, err error) {
	m.Exports.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", statusOf(err)),
		),
	)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
