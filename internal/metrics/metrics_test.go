package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(MetricLoginStep1Success)

	if got := m.Value(MetricLoginStep1Success); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %d counters", len(snap.Counters))
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricLoginStep2Success)
	m.Inc(MetricLoginStep2Success)
	m.Inc(MetricLoginStep2Success)

	if got := m.Value(MetricLoginStep2Success); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricRefreshSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Enabled() || m.Value(MetricRefreshSuccess) != 0 {
		t.Fatal("nil metrics must record nothing")
	}
}

func TestMetricsUnknownIDIgnored(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricIDCount + 3)
	if got := m.Value(MetricIDCount + 3); got != 0 {
		t.Fatalf("expected 0 for unknown id, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := New(Config{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRateLimitFailOpen)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRateLimitFailOpen); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}
	m.Observe(MetricRefreshSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricRefreshSuccess]; ok {
		t.Fatal("only validate latency carries a histogram")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricLoginStep1Success)
	m.Inc(MetricLoginStep1Failure)
	m.Inc(MetricLoginStep1Failure)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricLoginStep1Success] != 1 {
		t.Fatalf("expected MetricLoginStep1Success=1 got %d", snap.Counters[MetricLoginStep1Success])
	}
	if snap.Counters[MetricLoginStep1Failure] != 2 {
		t.Fatalf("expected MetricLoginStep1Failure=2 got %d", snap.Counters[MetricLoginStep1Failure])
	}
	if _, ok := snap.Counters[MetricValidateLatency]; ok {
		t.Fatal("histogram id must not appear as a counter")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := New(Config{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginStep1Success)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := New(Config{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricValidateSuccess)
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricValidateLatency, d)
		}
	})
}
