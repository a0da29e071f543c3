// Package metrics implements ports.Metrics with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

// Recorder implements ports.Metrics. Every Recorder owns its registry, so sessions
// and tests never share counters.
type Recorder struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	reuse    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_query_events_total",
			Help: "Query requests by kind and outcome",
		}, []string{"kind", "event"}),
		reuse: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_query_reuse_total",
			Help: "Query requests answered without running a provider",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quarry_provider_duration_seconds",
			Help:    "Time spent running query providers",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}, []string{"kind"}),
	}
}

// RecordEvent counts one event for a query kind.
func (r *Recorder) RecordEvent(kind string, event domain.QueryEvent) {
	r.events.WithLabelValues(kind, string(event)).Inc()
	if event.IsReuse() {
		r.reuse.WithLabelValues(kind).Inc()
	}
}

// ObserveDuration records how long a provider ran.
func (r *Recorder) ObserveDuration(kind string, d time.Duration) {
	r.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// Registry exposes the collectors, for serving them or gathering in tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format, for
// pickup by the node exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrMetricsWriteFailed.Error()), "path", path)
	}
	return nil
}
