package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hwlegacy/portalauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.Mutex
	counters map[portalauth.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() portalauth.MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := portalauth.MetricsSnapshot{
		Counters:   make(map[portalauth.MetricID]uint64, len(f.counters)),
		Histograms: map[portalauth.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		snap.Counters[k] = v
	}
	if f.latency != nil {
		snap.Histograms[portalauth.MetricInitializeLatency] = append([]uint64(nil), f.latency...)
	}
	return snap
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters: map[portalauth.MetricID]uint64{portalauth.MetricSignInSuccess: 3, portalauth.MetricRedirect: 2},
		latency:  []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped:  4,
	}
	exp, err := New(provider.Meter("portalauth-test"), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := exp.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	got := collect(t, reader)
	want := map[string]int64{
		"portalauth_sign_in_success_total":                      3,
		"portalauth_redirect_total":                             2,
		"portalauth_sign_out_total":                             0,
		"portalauth_initialize_latency_seconds_bucket_le_0_005": 1,
		"portalauth_initialize_latency_seconds_bucket_le_inf":   8,
		"portalauth_initialize_latency_seconds_count":           8,
		"portalauth_audit_dropped_total":                        4,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s = %d, want %d (all: %v)", name, got[name], v, got)
		}
	}
}

func TestNewRejectsNilArguments(t *testing.T) {
	_, provider := newReader()
	if _, err := New(provider.Meter("x"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := New(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestConcurrentCollect(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[portalauth.MetricID]uint64{}}
	exp, err := New(provider.Meter("portalauth-test"), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[portalauth.MetricAuthEvent] = v
			src.mu.Unlock()
			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestCloseNilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
}

var _ Source = (*portalauth.Engine)(nil)
