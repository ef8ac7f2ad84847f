// Package observe provides the observability primitives of voxpipe:
// OpenTelemetry metrics and traces for the voice pipeline, trace-aware
// structured logging, and HTTP middleware for the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxpipe metrics.
const meterName = "github.com/MrWong99/voxpipe"

// Metrics holds the OpenTelemetry instruments of the assistant.
// All fields are safe for concurrent use.
type Metrics struct {
	// WakeWords counts wake word detections.
	WakeWords metric.Int64Counter

	// Interruptions counts wake words that cut a response short.
	Interruptions metric.Int64Counter

	// Requests counts completed user requests sent to the LLM.
	Requests metric.Int64Counter

	// TurnDuration tracks the time from the end of a request until playback
	// of the answer finished.
	TurnDuration metric.Float64Histogram

	// FirstAudioDelay tracks the time from the end of a request until the
	// first synthesized sample. Only recorded while profiling.
	FirstAudioDelay metric.Float64Histogram

	// RealTimeFactor tracks processing time per second of audio. Use with
	// attribute.String("stage", ...).
	RealTimeFactor metric.Float64Histogram

	// TokenRate tracks LLM tokens per second.
	TokenRate metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Speaking is 1 while a response turn is active and 0 otherwise.
	Speaking metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// conversational latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2.5, 5, 10, 30,
}

// rtfBuckets covers faster-than-real-time engines down to 1% of real time.
var rtfBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.75, 1, 2,
}

var tokenRateBuckets = []float64{
	5, 10, 20, 40, 60, 80, 120, 200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WakeWords, err = m.Int64Counter("voxpipe.wake_words",
		metric.WithDescription("Total wake word detections."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxpipe.interruptions",
		metric.WithDescription("Total responses interrupted by the wake word."),
	); err != nil {
		return nil, err
	}
	if met.Requests, err = m.Int64Counter("voxpipe.requests",
		metric.WithDescription("Total user requests sent to the LLM."),
	); err != nil {
		return nil, err
	}

	if met.TurnDuration, err = m.Float64Histogram("voxpipe.turn.duration",
		metric.WithDescription("Time from the end of a request until the answer was played."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FirstAudioDelay, err = m.Float64Histogram("voxpipe.first_audio.delay",
		metric.WithDescription("Time from the end of a request until the first synthesized audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RealTimeFactor, err = m.Float64Histogram("voxpipe.real_time_factor",
		metric.WithDescription("Processing time per second of audio by pipeline stage."),
		metric.WithExplicitBucketBoundaries(rtfBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TokenRate, err = m.Float64Histogram("voxpipe.llm.token_rate",
		metric.WithDescription("LLM completion tokens per second."),
		metric.WithUnit("{token}/s"),
		metric.WithExplicitBucketBoundaries(tokenRateBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("voxpipe.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxpipe.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.Speaking, err = m.Int64UpDownCounter("voxpipe.speaking",
		metric.WithDescription("1 while a response turn is active."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxpipe.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Call it after [InitProvider].
// Panics if instrument creation fails.
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

// RecordProviderRequest records one provider call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRTF records a real-time factor sample for stage.
func (m *Metrics) RecordRTF(ctx context.Context, stage string, rtf float64) {
	m.RealTimeFactor.Record(ctx, rtf, metric.WithAttributes(attribute.String("stage", stage)))
}
