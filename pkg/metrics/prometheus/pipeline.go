// Package prometheus holds the Prometheus-backed implementations of the
// instrumentation interfaces declared by the pipeline packages.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/depositd/pkg/deposit"
	"github.com/marmos91/depositd/pkg/metrics"
)

// pipelineMetrics is the Prometheus implementation of deposit.Metrics.
type pipelineMetrics struct {
	depositsTotal    *prometheus.CounterVec
	depositDuration  *prometheus.HistogramVec
	transfersTotal   *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
}

// NewPipelineMetrics creates a Prometheus-backed deposit.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). A nil
// value is accepted everywhere and results in zero overhead.
func NewPipelineMetrics() deposit.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &pipelineMetrics{
		depositsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositd_deposits_total",
				Help: "Total number of finished deposit attempts by outcome",
			},
			[]string{"outcome"},
		),
		depositDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "depositd_deposit_duration_seconds",
				Help: "Wall-clock duration of deposit attempts",
				Buckets: []float64{
					0.1,  // cached config, fast failure
					0.5,  // small package, local target
					1,    // 1s
					5,    // 5s - typical SWORD deposit
					15,   // 15s
					60,   // 1m - large packages
					300,  // 5m
					1800, // 30m - worst case over slow links
				},
			},
			[]string{"outcome"},
		),
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depositd_transfers_total",
				Help: "Total number of package transmissions by protocol and status",
			},
			[]string{"protocol", "status"},
		),
		transferDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "depositd_transfer_duration_seconds",
				Help: "Duration of package transmissions by protocol",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 15, 60, 300, 1800,
				},
			},
			[]string{"protocol"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "depositd_deposit_queue_depth",
				Help: "Current number of queued, unprocessed deposits",
			},
		),
	}
}

func (m *pipelineMetrics) ObserveDeposit(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.depositsTotal.WithLabelValues(outcome).Inc()
	m.depositDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *pipelineMetrics) ObserveTransfer(protocol string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.transfersTotal.WithLabelValues(protocol, status).Inc()
	m.transferDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

func (m *pipelineMetrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
