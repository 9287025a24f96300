package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the maintenance scheduler.
type Metrics struct {
	RecordsPurged prometheus.Counter
	PurgeFailures prometheus.Counter
	ClientsPruned prometheus.Counter
	PurgeDuration prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RecordsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "scheduler",
			Name:      "records_purged_total",
			Help:      "Total command history records purged.",
		}),
		PurgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "scheduler",
			Name:      "purge_failures_total",
			Help:      "Total history purge runs that failed.",
		}),
		ClientsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "scheduler",
			Name:      "clients_pruned_total",
			Help:      "Total idle rate limiter entries dropped.",
		}),
		PurgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pyguard",
			Subsystem: "scheduler",
			Name:      "purge_duration_seconds",
			Help:      "Duration of each history purge run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	reg.MustRegister(
		m.RecordsPurged,
		m.PurgeFailures,
		m.ClientsPruned,
		m.PurgeDuration,
	)

	return m
}
