package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"telinv/internal/capability"
)

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarRecorder("")
	rec.ObserveCall("people", capability.ResultOK, 20*time.Millisecond)
	rec.ObserveCall("people", capability.ResultOK, 30*time.Millisecond)
	rec.ObserveCall("people", capability.ResultForbidden, 5*time.Millisecond)
	rec.ObserveCall("", capability.ResultOK, time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["people"] != 55 {
		t.Fatalf("expected 55ms total, got %v", snap.DurationsMS["people"])
	}
	if snap.Results["people"]["ok"] != 2 || snap.Results["people"]["forbidden"] != 1 {
		t.Fatalf("unexpected result counters %v", snap.Results)
	}
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("construct recorder: %v", err)
	}
	rec.ObserveCall("queues", capability.ResultNotFound, 10*time.Millisecond)
	rec.ObserveCall("queues", capability.ResultNotFound, 10*time.Millisecond)

	got := testutil.ToFloat64(rec.calls.WithLabelValues("queues", "not_found"))
	if got != 2 {
		t.Fatalf("expected counter 2, got %v", got)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("TELINV_METRICS_DRIVER", "")
	rec, err := Open()
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := rec.(*ExpvarRecorder); !ok {
		t.Fatalf("default driver = %T, want *ExpvarRecorder", rec)
	}

	t.Setenv("TELINV_METRICS_DRIVER", "noop")
	rec, err = Open()
	if err != nil {
		t.Fatalf("noop driver: %v", err)
	}
	if _, ok := rec.(Noop); !ok {
		t.Fatalf("noop driver = %T, want Noop", rec)
	}

	t.Setenv("TELINV_METRICS_DRIVER", "prometheus")
	rec, err = Open()
	if err != nil {
		t.Fatalf("prometheus driver: %v", err)
	}
	if _, ok := rec.(*PrometheusRecorder); !ok {
		t.Fatalf("prometheus driver = %T, want *PrometheusRecorder", rec)
	}

	t.Setenv("TELINV_METRICS_DRIVER", "statsd")
	if _, err := Open(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestPrometheusRecorderDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusRecorder(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
