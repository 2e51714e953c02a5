// Package observe provides application-wide observability primitives for
// scrivener: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics can be scraped
// from /metrics. A package-level default [Metrics] instance ([DefaultMetrics])
// is provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all scrivener metrics.
const meterName = "github.com/MrWong99/scrivener"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// Corrections counts applied substitutions. Attribute: method
	// ("fuzzy", "tense", "grammar").
	Corrections metric.Int64Counter

	// ThrottleDecisions counts remote-check gate decisions. Attribute:
	// decision ("accepted", "rejected").
	ThrottleDecisions metric.Int64Counter

	// RemoteDuration tracks grammar backend latency. Attribute: checker.
	RemoteDuration metric.Float64Histogram

	// RemoteErrors counts failed grammar backend calls. Attributes: checker,
	// kind ("unavailable", "timeout", "out_of_range", "circuit_open").
	RemoteErrors metric.Int64Counter

	// EditsDropped counts grammar edits discarded by checker and reason
	// ("overlap" or "out_of_range").
	EditsDropped metric.Int64Counter

	// PipelineDuration tracks end-to-end correction latency. Attribute:
	// path ("keystroke", "sentence").
	PipelineDuration metric.Float64Histogram

	// HistoryErrors counts failed history writes.
	HistoryErrors metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// ActiveStreams tracks open keystroke WebSocket streams.
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds, tuned for an
// interactive typing path.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Corrections, err = m.Int64Counter("scrivener.corrections",
		metric.WithDescription("Applied corrections by method."),
	); err != nil {
		return nil, err
	}
	if met.ThrottleDecisions, err = m.Int64Counter("scrivener.throttle.decisions",
		metric.WithDescription("Remote grammar check gate decisions."),
	); err != nil {
		return nil, err
	}
	if met.RemoteDuration, err = m.Float64Histogram("scrivener.remote.duration",
		metric.WithDescription("Latency of remote grammar checks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RemoteErrors, err = m.Int64Counter("scrivener.remote.errors",
		metric.WithDescription("Failed remote grammar checks by checker and kind."),
	); err != nil {
		return nil, err
	}
	if met.EditsDropped, err = m.Int64Counter("scrivener.edits.dropped",
		metric.WithDescription("Grammar edits discarded instead of applied, by checker and reason."),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("scrivener.pipeline.duration",
		metric.WithDescription("End-to-end correction latency by path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HistoryErrors, err = m.Int64Counter("scrivener.history.errors",
		metric.WithDescription("Failed correction history writes."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("scrivener.tool.calls",
		metric.WithDescription("MCP tool invocations by tool and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("scrivener.active_streams",
		metric.WithDescription("Open keystroke WebSocket streams."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("scrivener.http.request.duration",
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
// fails, which does not happen with the global provider.
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

// RecordCorrection counts one applied correction.
func (m *Metrics) RecordCorrection(ctx context.Context, method string) {
	m.Corrections.Add(ctx, 1, metric.WithAttributes(Attr("method", method)))
}

// RecordThrottle counts one gate decision.
func (m *Metrics) RecordThrottle(ctx context.Context, accepted bool) {
	decision := "rejected"
	if accepted {
		decision = "accepted"
	}
	m.ThrottleDecisions.Add(ctx, 1, metric.WithAttributes(Attr("decision", decision)))
}

// RecordRemoteCall records the latency of a grammar backend call and, when
// kind is non-empty, counts it as an error of that kind.
func (m *Metrics) RecordRemoteCall(ctx context.Context, checker string, d time.Duration, kind string) {
	m.RemoteDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("checker", checker)))
	if kind != "" {
		m.RemoteErrors.Add(ctx, 1, metric.WithAttributes(Attr("checker", checker), Attr("kind", kind)))
	}
}

// RecordEditsDropped counts n grammar edits discarded for reason.
func (m *Metrics) RecordEditsDropped(ctx context.Context, checker, reason string, n int) {
	m.EditsDropped.Add(ctx, int64(n), metric.WithAttributes(Attr("checker", checker), Attr("reason", reason)))
}

// RecordPipeline records end-to-end latency for a correction path.
func (m *Metrics) RecordPipeline(ctx context.Context, path string, d time.Duration) {
	m.PipelineDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("path", path)))
}

// RecordToolCall counts one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
}
