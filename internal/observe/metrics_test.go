package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue returns the value of the sum data point carrying key=value.
func sumValue(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", met.Name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCommand(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, "PLAY", "ok", 2*time.Millisecond)
	m.RecordCommand(ctx, "PLAY", "ok", 3*time.Millisecond)
	m.RecordCommand(ctx, "PLAY", "error", time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "soundstage.commands")
	if met == nil {
		t.Fatal("metric soundstage.commands not found")
	}
	if got := sumValue(t, met, "status", "ok"); got != 2 {
		t.Errorf("ok commands = %d, want 2", got)
	}

	dur := findMetric(rm, "soundstage.command.duration")
	if dur == nil {
		t.Fatal("metric soundstage.command.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (one verb)", len(hist.DataPoints))
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("sample count = %d, want 3", got)
	}
}

func TestRecordBackendError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBackendError(ctx, "PITCH")

	rm := collect(t, reader)
	met := findMetric(rm, "soundstage.backend.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumValue(t, met, "op", "PITCH"); got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestRecordReclaimed(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordReclaimed(ctx, 0)
	m.RecordReclaimed(ctx, 3)

	rm := collect(t, reader)
	met := findMetric(rm, "soundstage.channels.reclaimed")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 3 {
		t.Errorf("data points = %+v, want a single value of 3", sum.DataPoints)
	}
}

func TestObservableGauges(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.SetGauges(4, 2)
	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"soundstage.sources", 4},
		{"soundstage.channels.active", 2},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			g, ok := met.Data.(metricdata.Gauge[int64])
			if !ok {
				t.Fatalf("metric %q is not a gauge", tc.name)
			}
			if len(g.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := g.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}

	m.SetGauges(0, 0)
	rm = collect(t, reader)
	met := findMetric(rm, "soundstage.sources")
	if g := met.Data.(metricdata.Gauge[int64]); g.DataPoints[0].Value != 0 {
		t.Errorf("gauge after reset = %d, want 0", g.DataPoints[0].Value)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "soundstage.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
