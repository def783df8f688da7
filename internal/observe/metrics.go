// Package observe provides application-wide observability primitives for
// the realm runtime: OpenTelemetry metrics, distributed tracing, structured
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

// meterName is the instrumentation scope name used for all realm-runtime metrics.
const meterName = "github.com/openworld-client/realm-runtime"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SceneTickDuration tracks one scene's per-frame tick: CRDT drain,
	// host-component gather, inbound send.
	SceneTickDuration metric.Float64Histogram

	// ContentFetchDuration tracks one content-addressed resource fetch,
	// cache hit or miss.
	ContentFetchDuration metric.Float64Histogram

	// CommsPacketSize tracks the size in bytes of encoded rfc4 packets sent
	// or received over the comms fabric.
	CommsPacketSize metric.Int64Histogram

	// --- Counters ---

	// CacheHits counts content cache lookups resolved from an existing entry.
	CacheHits metric.Int64Counter

	// CacheMisses counts content cache lookups that required a fresh fetch.
	CacheMisses metric.Int64Counter

	// CacheEvictions counts entries evicted for idling past their TTL or for
	// exceeding the on-disk size bound.
	CacheEvictions metric.Int64Counter

	// RPCCallsDispatched counts scene-to-host RPC calls routed by
	// scene.ToolDispatcher, by method name and outcome.
	RPCCallsDispatched metric.Int64Counter

	// --- Gauges ---

	// LiveScenes tracks the number of scenes currently in the orchestrator's
	// Alive lifecycle state.
	LiveScenes metric.Int64UpDownCounter

	// ConnectedPeers tracks the number of peers currently joined to any
	// comms room.
	ConnectedPeers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time for the
	// diagnostics server. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both a single 8.3ms scene tick and a multi-second cold content fetch.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.008333, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SceneTickDuration, err = m.Float64Histogram("realm_runtime.scene.tick.duration",
		metric.WithDescription("Duration of one scene's per-frame tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ContentFetchDuration, err = m.Float64Histogram("realm_runtime.content.fetch.duration",
		metric.WithDescription("Duration of one content-addressed resource fetch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommsPacketSize, err = m.Int64Histogram("realm_runtime.comms.packet.size",
		metric.WithDescription("Size of encoded rfc4 packets sent or received."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if met.CacheHits, err = m.Int64Counter("realm_runtime.content.cache.hits",
		metric.WithDescription("Content cache lookups resolved from an existing entry."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("realm_runtime.content.cache.misses",
		metric.WithDescription("Content cache lookups that required a fresh fetch."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("realm_runtime.content.cache.evictions",
		metric.WithDescription("Content cache entries evicted by idle TTL or size bound."),
	); err != nil {
		return nil, err
	}
	if met.RPCCallsDispatched, err = m.Int64Counter("realm_runtime.scene.rpc.dispatched",
		metric.WithDescription("Scene-to-host RPC calls dispatched, by method and outcome."),
	); err != nil {
		return nil, err
	}

	if met.LiveScenes, err = m.Int64UpDownCounter("realm_runtime.scene.live",
		metric.WithDescription("Number of scenes currently in the Alive lifecycle state."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedPeers, err = m.Int64UpDownCounter("realm_runtime.comms.peers.connected",
		metric.WithDescription("Number of peers currently joined to any comms room."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("realm_runtime.http.request.duration",
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

// RecordCacheHit is a convenience method for a content cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	m.CacheHits.Add(ctx, 1)
}

// RecordCacheMiss is a convenience method for a content cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	m.CacheMisses.Add(ctx, 1)
}

// RecordCacheEviction is a convenience method for a content cache eviction.
func (m *Metrics) RecordCacheEviction(ctx context.Context, reason string) {
	m.CacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRPCDispatched is a convenience method that records a scene RPC
// dispatch outcome.
func (m *Metrics) RecordRPCDispatched(ctx context.Context, method, status string) {
	m.RPCCallsDispatched.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", status),
		),
	)
}
