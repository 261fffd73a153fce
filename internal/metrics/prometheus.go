package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"telinv/internal/capability"
)

// PrometheusRecorder exposes call outcomes as Prometheus counters and a
// duration histogram, labeled by module and result kind.
type PrometheusRecorder struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusRecorder constructs a recorder and registers its collectors
// with the supplied registerer. A nil registerer falls back to the default
// registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusRecorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telinv",
			Name:      "api_calls_total",
			Help:      "API calls attempted, labeled by module and result kind.",
		}, []string{"module", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telinv",
			Name:      "api_call_duration_seconds",
			Help:      "API call latency by module.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
	}
	if err := reg.Register(rec.calls); err != nil {
		return nil, err
	}
	if err := reg.Register(rec.duration); err != nil {
		return nil, err
	}
	return rec, nil
}

// ObserveCall implements Recorder.
func (r *PrometheusRecorder) ObserveCall(module string, result capability.Result, elapsed time.Duration) {
	if module == "" {
		return
	}
	r.calls.WithLabelValues(module, string(result)).Inc()
	r.duration.WithLabelValues(module).Observe(elapsed.Seconds())
}
