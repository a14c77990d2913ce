// Package observe provides application-wide observability primitives for
// Voxtrace: OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint set up by [InitProvider]. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxtrace metrics.
const meterName = "github.com/voxtrace/voxtrace"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SynthesisDuration tracks one-shot narration synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// TraceGenDuration tracks trace generation latency.
	TraceGenDuration metric.Float64Histogram

	// --- Counters ---

	// AudioBlocksSent counts microphone blocks streamed to the session.
	AudioBlocksSent metric.Int64Counter

	// FramesSent counts screen frames streamed to the session.
	FramesSent metric.Int64Counter

	// ChunksScheduled counts playback chunks handed to the scheduler.
	ChunksScheduled metric.Int64Counter

	// Interruptions counts barge-in events reported by the session.
	Interruptions metric.Int64Counter

	// NarrationRequests counts narration attempts. Use with attribute:
	//   attribute.String("status", "completed"|"superseded"|"cancelled"|"failed_open")
	NarrationRequests metric.Int64Counter

	// --- Error counters ---

	// DecodeErrors counts malformed inbound audio chunks that were dropped.
	DecodeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live tutoring sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for speech-synthesis latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("voxtrace.synthesis.duration",
		metric.WithDescription("Latency of one-shot narration synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TraceGenDuration, err = m.Float64Histogram("voxtrace.tracegen.duration",
		metric.WithDescription("Latency of execution trace generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioBlocksSent, err = m.Int64Counter("voxtrace.audio.blocks_sent",
		metric.WithDescription("Total microphone audio blocks streamed upstream."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voxtrace.screen.frames_sent",
		metric.WithDescription("Total screen frames streamed upstream."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("voxtrace.playback.chunks_scheduled",
		metric.WithDescription("Total audio chunks handed to the playback scheduler."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxtrace.session.interruptions",
		metric.WithDescription("Total barge-in interruptions reported by the session."),
	); err != nil {
		return nil, err
	}
	if met.NarrationRequests, err = m.Int64Counter("voxtrace.narration.requests",
		metric.WithDescription("Total narration attempts by outcome status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DecodeErrors, err = m.Int64Counter("voxtrace.audio.decode_errors",
		metric.WithDescription("Total malformed inbound audio chunks dropped."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxtrace.active_sessions",
		metric.WithDescription("Number of live tutoring sessions."),
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

// Narration outcome statuses for [Metrics.RecordNarration].
const (
	NarrationCompleted  = "completed"
	NarrationSuperseded = "superseded"
	NarrationCancelled  = "cancelled"
	NarrationFailedOpen = "failed_open"
)

// RecordNarration is a convenience method that records a narration attempt
// with its outcome status.
func (m *Metrics) RecordNarration(ctx context.Context, status string) {
	m.NarrationRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
