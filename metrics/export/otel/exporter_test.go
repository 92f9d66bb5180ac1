package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	otpauth "github.com/MrEthical07/otpauth"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot otpauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() otpauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := otpauth.MetricsSnapshot{
		Counters:   make(map[otpauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[otpauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) BackgroundDropped() uint64 { return 0 }

func newMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				return data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				return data.DataPoints[0].Value
			default:
				t.Fatalf("unexpected data type %T for %s", m.Data, name)
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newMeter(t)
	meter := provider.Meter("otpauth-test")

	src := &fakeSource{
		snapshot: otpauth.MetricsSnapshot{
			Counters: map[otpauth.MetricID]uint64{
				otpauth.MetricLoginStep2Success: 3,
			},
			Histograms: map[otpauth.MetricID][]uint64{
				otpauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if got := sumValue(t, rm, "otpauth_login_step2_success_total"); got != 3 {
		t.Fatalf("expected 3 step2 successes, got %d", got)
	}
	if got := sumValue(t, rm, "otpauth_validate_latency_seconds_bucket_le_inf"); got != 8 {
		t.Fatalf("expected cumulative +Inf bucket 8, got %d", got)
	}
	if got := sumValue(t, rm, "otpauth_audit_dropped_total"); got != 1 {
		t.Fatalf("expected audit dropped 1, got %d", got)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newMeter(t)
	meter := provider.Meter("otpauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter(t)
	meter := provider.Meter("otpauth-test")

	src := &fakeSource{
		snapshot: otpauth.MetricsSnapshot{
			Counters: map[otpauth.MetricID]uint64{
				otpauth.MetricLoginStep1Success: 1,
			},
			Histograms: map[otpauth.MetricID][]uint64{
				otpauth.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[otpauth.MetricLoginStep1Success] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
