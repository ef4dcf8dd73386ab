// Package observe provides the observability primitives of soundstage:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and
// HTTP middleware for the ops endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus scraping by [InitProvider]. A package-level [DefaultMetrics]
// instance is available; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all soundstage metrics.
const meterName = "github.com/MrWong99/soundstage"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// Commands counts dispatched protocol commands. Use with attributes:
	//   attribute.String("verb", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// CommandDuration tracks command dispatch latency by verb.
	CommandDuration metric.Float64Histogram

	// BackendErrors counts audio backend failures surfaced to a command. Use
	// with attribute:
	//   attribute.String("op", ...)
	BackendErrors metric.Int64Counter

	// ChannelsReclaimed counts channels the maintenance tick found finished.
	ChannelsReclaimed metric.Int64Counter

	// HTTPRequestDuration tracks ops HTTP request latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// The observable gauges read these values. The control loop publishes
	// them with [Metrics.SetGauges] so collectors never touch manager state.
	sources  atomic.Int64
	channels atomic.Int64
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// command dispatch, which is expected to stay well below a frame.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Commands, err = m.Int64Counter("soundstage.commands",
		metric.WithDescription("Total protocol commands by verb and status."),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("soundstage.command.duration",
		metric.WithDescription("Latency of protocol command dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("soundstage.backend.errors",
		metric.WithDescription("Total audio backend errors by operation."),
	); err != nil {
		return nil, err
	}
	if met.ChannelsReclaimed, err = m.Int64Counter("soundstage.channels.reclaimed",
		metric.WithDescription("Total channels reclaimed after finishing on their own."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("soundstage.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	sources, err := m.Int64ObservableGauge("soundstage.sources",
		metric.WithDescription("Number of registered audio sources."),
	)
	if err != nil {
		return nil, err
	}
	channels, err := m.Int64ObservableGauge("soundstage.channels.active",
		metric.WithDescription("Number of sources holding a live channel."),
	)
	if err != nil {
		return nil, err
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(sources, met.sources.Load())
		o.ObserveInt64(channels, met.channels.Load())
		return nil
	}, sources, channels); err != nil {
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand records one dispatched command and its latency.
func (m *Metrics) RecordCommand(ctx context.Context, verb, status string, d time.Duration) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.String("status", status),
		),
	)
	m.CommandDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("verb", verb)),
	)
}

// RecordBackendError records a backend failure for op.
func (m *Metrics) RecordBackendError(ctx context.Context, op string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordReclaimed records n reclaimed channels. Zero is not recorded.
func (m *Metrics) RecordReclaimed(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.ChannelsReclaimed.Add(ctx, int64(n))
}

// SetGauges publishes the values reported by the source and channel gauges.
func (m *Metrics) SetGauges(sources, channels int) {
	m.sources.Store(int64(sources))
	m.channels.Store(int64(channels))
}
