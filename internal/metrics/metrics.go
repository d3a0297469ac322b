// Package metrics exposes reconciliation counters and pass latency to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reconciliation passes.
type Metrics struct {
	// Records by outcome: UpToDate, Updated, Ignored, Deleted.
	Records *prometheus.CounterVec

	// Annotated record failures by state machine stage.
	Failures *prometheus.CounterVec

	// Passes that ended early, by reason ("list", "api", "canceled").
	Aborted *prometheus.CounterVec

	PassDuration prometheus.Histogram

	// Unix time of the last pass that ran to completion.
	LastSuccess prometheus.Gauge
}

// New registers all metrics with reg. A nil reg registers with the default
// registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emmsync_records_total",
			Help: "Total reconciled policy records by outcome",
		}, []string{"outcome"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emmsync_record_failures_total",
			Help: "Total record failures by reconciliation stage",
		}, []string{"stage"}),

		Aborted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emmsync_passes_aborted_total",
			Help: "Total passes that ended before listing completed",
		}, []string{"reason"}),

		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emmsync_pass_duration_seconds",
			Help:    "Duration of a full reconciliation pass",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "emmsync_last_success_timestamp_seconds",
			Help: "Unix time of the last completed pass",
		}),
	}
}

// IncrementOutcome records one reconciled record.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Records.WithLabelValues(outcome).Inc()
	}
}

// IncrementFailure records a record failure annotated at stage.
func (m *Metrics) IncrementFailure(stage string) {
	if m != nil {
		m.Failures.WithLabelValues(stage).Inc()
	}
}

// IncrementAborted records a pass that ended early.
func (m *Metrics) IncrementAborted(reason string) {
	if m != nil {
		m.Aborted.WithLabelValues(reason).Inc()
	}
}

// ObservePass records the duration of a pass and, when it completed, its
// finish time.
func (m *Metrics) ObservePass(d time.Duration, finished time.Time, completed bool) {
	if m == nil {
		return
	}
	m.PassDuration.Observe(d.Seconds())
	if completed {
		m.LastSuccess.Set(float64(finished.Unix()))
	}
}
