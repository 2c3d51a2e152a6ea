// Package observe provides application-wide observability primitives for the
// Lahn Avatar backend: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all avatar metrics.
const meterName = "github.com/dnllvrvz/Lahn-Avatar"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per voice-pipeline stage ---

	// NormalizeDuration tracks ffmpeg transcode latency for uploaded audio.
	NormalizeDuration metric.Float64Histogram

	// ModelTurnDuration tracks the realtime model portion of a voice turn:
	// configure through response.done.
	ModelTurnDuration metric.Float64Histogram

	// VoiceTurnDuration tracks end-to-end voice turn latency.
	VoiceTurnDuration metric.Float64Histogram

	// --- Collaborator latencies ---

	// CompletionDuration tracks plain chat completion latency.
	CompletionDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding API latency per batch.
	EmbeddingDuration metric.Float64Histogram

	// TranscribeDuration tracks whisper transcription latency for uploads.
	TranscribeDuration metric.Float64Histogram

	// --- Counters ---

	// VoiceTurns counts completed voice turns. Use with attribute:
	//   attribute.String("status", ...)
	VoiceTurns metric.Int64Counter

	// Completions counts chat completions. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	Completions metric.Int64Counter

	// IndexRebuilds counts document index rebuilds by status.
	IndexRebuilds metric.Int64Counter

	// SensorFetches counts ThingSpeak channel fetches by status.
	SensorFetches metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceTurns tracks voice turns currently in flight.
	ActiveVoiceTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.NormalizeDuration, err = m.Float64Histogram("lahn.voice.normalize.duration",
		metric.WithDescription("Latency of ffmpeg audio normalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelTurnDuration, err = m.Float64Histogram("lahn.voice.model_turn.duration",
		metric.WithDescription("Latency of the realtime model portion of a voice turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VoiceTurnDuration, err = m.Float64Histogram("lahn.voice.turn.duration",
		metric.WithDescription("End-to-end voice turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionDuration, err = m.Float64Histogram("lahn.llm.completion.duration",
		metric.WithDescription("Latency of chat completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("lahn.index.embedding.duration",
		metric.WithDescription("Latency of embedding API calls per batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("lahn.stt.transcribe.duration",
		metric.WithDescription("Latency of whisper transcription for uploads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VoiceTurns, err = m.Int64Counter("lahn.voice.turns",
		metric.WithDescription("Total voice turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("lahn.llm.completions",
		metric.WithDescription("Total chat completions by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.IndexRebuilds, err = m.Int64Counter("lahn.index.rebuilds",
		metric.WithDescription("Total document index rebuilds by status."),
	); err != nil {
		return nil, err
	}
	if met.SensorFetches, err = m.Int64Counter("lahn.sensors.fetches",
		metric.WithDescription("Total sensor channel fetches by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveVoiceTurns, err = m.Int64UpDownCounter("lahn.voice.active_turns",
		metric.WithDescription("Voice turns currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lahn.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVoiceTurn records a completed voice turn with its status.
func (m *Metrics) RecordVoiceTurn(ctx context.Context, status string) {
	m.VoiceTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCompletion records a chat completion with its kind and status.
func (m *Metrics) RecordCompletion(ctx context.Context, kind, status string) {
	m.Completions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordSensorFetch records a sensor channel fetch with its status.
func (m *Metrics) RecordSensorFetch(ctx context.Context, status string) {
	m.SensorFetches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordIndexRebuild records a document index rebuild with its status.
func (m *Metrics) RecordIndexRebuild(ctx context.Context, status string) {
	m.IndexRebuilds.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
