// Package observe provides application-wide observability primitives for
// voxengine: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all voxengine metrics.
const meterName = "github.com/corvidlabs/voxcore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveCalls tracks the number of currently active calls across all
	// contexts and campaigns.
	ActiveCalls metric.Int64UpDownCounter

	// --- Latency histograms ---

	// TurnLatency tracks conversational turn latency: time from the last
	// user-audio frame to the first agent-audio frame. Use with attribute:
	//   attribute.String("provider", ...)
	TurnLatency metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency. Use with
	// attributes:
	//   attribute.String("phase", ...), attribute.String("tool", ...)
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// PlaybackUnderflows counts playback buffer underflow events.
	PlaybackUnderflows metric.Int64Counter

	// BargeInEvents counts caller barge-in interruptions of agent speech.
	BargeInEvents metric.Int64Counter

	// OutboundCalls counts completed outbound dial attempts. Use with
	// attribute:
	//   attribute.String("outcome", ...) — answered, no_answer, busy,
	//   voicemail, failed
	OutboundCalls metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in milliseconds)
// optimised for voice-pipeline and call-turn latencies.
var latencyBuckets = []float64{
	10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveCalls, err = m.Int64UpDownCounter("active_calls",
		metric.WithDescription("Number of currently active calls."),
	); err != nil {
		return nil, err
	}

	if met.TurnLatency, err = m.Float64Histogram("turn_latency_ms",
		metric.WithDescription("Conversational turn latency: last user-audio frame to first agent-audio frame."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("tool_execution_duration_ms",
		metric.WithDescription("Latency of tool execution by phase and tool name."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.PlaybackUnderflows, err = m.Int64Counter("playback_underflows_total",
		metric.WithDescription("Total playback buffer underflow events."),
	); err != nil {
		return nil, err
	}
	if met.BargeInEvents, err = m.Int64Counter("barge_in_events_total",
		metric.WithDescription("Total caller barge-in interruptions of agent speech."),
	); err != nil {
		return nil, err
	}
	if met.OutboundCalls, err = m.Int64Counter("outbound_calls_total",
		metric.WithDescription("Total outbound dial attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("provider_requests_total",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("tool_calls_total",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("provider_errors_total",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("http_request_duration_seconds",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordToolExecutionDuration records the duration of a single tool
// execution, tagged by call phase and tool name.
func (m *Metrics) RecordToolExecutionDuration(ctx context.Context, phase, tool string, ms float64) {
	m.ToolExecutionDuration.Record(ctx, ms,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("tool", tool),
		),
	)
}

// RecordTurnLatency records the latency of a single conversational turn,
// tagged by provider name.
func (m *Metrics) RecordTurnLatency(ctx context.Context, provider string, ms float64) {
	m.TurnLatency.Record(ctx, ms,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordOutboundCall records a completed outbound dial attempt, tagged by
// outcome (answered, no_answer, busy, voicemail, failed).
func (m *Metrics) RecordOutboundCall(ctx context.Context, outcome string) {
	m.OutboundCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBargeIn records a single caller barge-in event.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeInEvents.Add(ctx, 1)
}

// RecordPlaybackUnderflow records a single playback buffer underflow event.
func (m *Metrics) RecordPlaybackUnderflow(ctx context.Context) {
	m.PlaybackUnderflows.Add(ctx, 1)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
