package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/depositd/pkg/metrics"
	"github.com/marmos91/depositd/pkg/status"
)

// statusMetrics is the Prometheus implementation of status.Metrics.
type statusMetrics struct {
	pollsTotal    *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	sweepsTotal   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// NewStatusMetrics creates a Prometheus-backed status.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStatusMetrics() status.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &statusMetrics{
		pollsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositd_status_polls_total",
				Help: "Total number of status document polls by outcome and status",
			},
			[]string{"outcome", "status"},
		),
		pollDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "depositd_status_poll_duration_seconds",
				Help:    "Duration of status document polls",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		sweepsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositd_aggregation_sweeps_total",
				Help: "Total number of aggregation sweeps by status",
			},
			[]string{"status"},
		),
		sweepDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "depositd_aggregation_sweep_duration_seconds",
				Help:    "Duration of aggregation sweeps",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
		),
	}
}

func (m *statusMetrics) ObservePoll(outcome status.Outcome, duration time.Duration, err error) {
	if m == nil {
		return
	}

	st := "success"
	if err != nil {
		st = "error"
	}

	m.pollsTotal.WithLabelValues(string(outcome), st).Inc()
	m.pollDuration.Observe(duration.Seconds())
}

func (m *statusMetrics) ObserveSweep(duration time.Duration, err error) {
	if m == nil {
		return
	}

	st := "success"
	if err != nil {
		st = "error"
	}

	m.sweepsTotal.WithLabelValues(st).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}
