package observability

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
)

func TestSimCollectorRecordsTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveAction("brake")
	collector.ObserveAction("brake")
	collector.ObserveAction("increase")
	collector.ObserveGridlockGrant()
	collector.ObserveTransfer()
	collector.ObserveTick(7, 2*time.Millisecond)

	if got := testutil.ToFloat64(collector.Actions.WithLabelValues("brake")); got != 2 {
		t.Fatalf("lanesim_actions_total{action=brake} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Actions.WithLabelValues("increase")); got != 1 {
		t.Fatalf("lanesim_actions_total{action=increase} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.GridlockGrant); got != 1 {
		t.Fatalf("lanesim_gridlock_grants_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Transfers); got != 1 {
		t.Fatalf("lanesim_transfers_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.LivePackets); got != 7 {
		t.Fatalf("lanesim_live_packets = %v, want 7", got)
	}
	if count := histogramSampleCount(t, reg, "lanesim_tick_duration_seconds"); count != 1 {
		t.Fatalf("lanesim_tick_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestSimCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}

	first.ObserveTransfer()
	second.ObserveTransfer()

	if got := testutil.ToFloat64(first.Transfers); got != 2 {
		t.Fatalf("lanesim_transfers_total = %v, want 2", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.ObserveTick(3, time.Millisecond)

	filename := filepath.Join(t.TempDir(), "lanesim.prom")
	if err := collector.WriteTextfile(filename); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), "lanesim_live_packets 3") {
		t.Fatalf("textfile missing live packet gauge:\n%s", raw)
	}
}

func TestInitTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: true, ServiceName: "test", SampleRatio: 1, Output: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer InitTracing(ctx, TracingConfig{}, nil)

	_, span := otel.Tracer("lanesim-test").Start(ctx, "tick")
	span.End()
	ShutdownWithTimeout(ctx, shutdown, nil)

	if !strings.Contains(buf.String(), "\"Name\": \"tick\"") {
		t.Fatalf("exported spans missing tick span:\n%s", buf.String())
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}
