// Package metrics records per-call timing and outcome counters for the
// resolver and apply engine. Deployments choose between process-local expvar
// publication and a Prometheus registry.
package metrics

import (
	"expvar"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"telinv/internal/capability"
)

// Recorder observes the outcome of one capability call.
type Recorder interface {
	ObserveCall(module string, result capability.Result, elapsed time.Duration)
}

// Noop discards all observations.
type Noop struct{}

// ObserveCall implements Recorder.
func (Noop) ObserveCall(string, capability.Result, time.Duration) {}

// Open selects a Recorder implementation using environment variables.
//
//	TELINV_METRICS_DRIVER: expvar|prometheus|noop (default expvar)
//
// The prometheus driver registers its collectors with the default registry.
func Open() (Recorder, error) {
	driver := os.Getenv("TELINV_METRICS_DRIVER")
	if driver == "" {
		driver = "expvar"
	}
	switch driver {
	case "expvar":
		return NewExpvarRecorder(""), nil
	case "prometheus":
		return NewPrometheusRecorder(nil)
	case "noop":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown metrics driver %s", driver)
	}
}

var expvarSeq uint64

// ExpvarRecorder publishes aggregate timing and result counters via expvar
// for deployments that prefer process-local metrics. Totals are milliseconds
// per module plus result-kind counters.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
}

// ExpvarSnapshot is a read-only view of the recorded metrics.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder published under the
// supplied name. When name is empty a unique identifier is generated.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("telinv_call_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string { return r.name }

// ObserveCall implements Recorder.
func (r *ExpvarRecorder) ObserveCall(module string, result capability.Result, elapsed time.Duration) {
	if module == "" {
		return
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	r.mu.Lock()
	r.durations[module] += ms
	if _, ok := r.results[module]; !ok {
		r.results[module] = make(map[string]int64, 4)
	}
	r.results[module][string(result)]++
	r.mu.Unlock()
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[string]float64, len(r.durations))
	for module, total := range r.durations {
		durations[module] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for module, kinds := range r.results {
		cpy := make(map[string]int64, len(kinds))
		for kind, count := range kinds {
			cpy[kind] = count
		}
		results[module] = cpy
	}
	return ExpvarSnapshot{DurationsMS: durations, Results: results, RecordedAt: time.Now().UTC()}
}
