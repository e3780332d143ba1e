package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	activeSignals prometheus.Gauge
	statuses      *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "sigtrack_ticks_total",
			Help: "Total number of evaluation ticks",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigtrack_tick_duration_seconds",
			Help:    "Duration of one evaluation tick",
			Buckets: prometheus.DefBuckets,
		}),
		activeSignals: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigtrack_active_signals",
			Help: "Signals evaluated in the last tick",
		}),
		statuses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrack_signal_status_total",
				Help: "Per-signal classifications by status",
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrack_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigtrack_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records a finished tick.
func (r *Recorder) RecordTick(seconds float64, signals int) {
	r.ticks.Inc()
	r.tickDuration.Observe(seconds)
	r.activeSignals.Set(float64(signals))
}

// RecordStatus counts one signal classification.
func (r *Recorder) RecordStatus(status string) {
	r.statuses.WithLabelValues(status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
