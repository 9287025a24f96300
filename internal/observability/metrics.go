package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for PyGuard Terminal.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Command pipeline metrics.
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Admission metrics.
	SecurityChecksTotal      *prometheus.CounterVec
	RateLimitRejectionsTotal prometheus.Counter

	// Validator metrics.
	ValidationIssuesTotal *prometheus.CounterVec
	ValidationBlocksTotal prometheus.Counter

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveConnections prometheus.Gauge
	ActiveRequests    prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "terminal",
			Name:      "commands_total",
			Help:      "Total commands received, by admission verdict and outcome.",
		}, []string{"verdict", "outcome"}),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pyguard",
			Subsystem: "terminal",
			Name:      "command_duration_seconds",
			Help:      "Command execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"outcome"}),

		SecurityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "security",
			Name:      "checks_total",
			Help:      "Total admission checks performed.",
		}, []string{"result"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total commands rejected by the rate limiter.",
		}),

		ValidationIssuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "validator",
			Name:      "issues_total",
			Help:      "Total validation issues found, by kind.",
		}, []string{"kind"}),

		ValidationBlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "validator",
			Name:      "blocks_total",
			Help:      "Total executions blocked by pre-runtime validation.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pyguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pyguard",
			Name:      "active_connections",
			Help:      "Number of currently connected terminal sessions.",
		}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pyguard",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.SecurityChecksTotal,
		m.RateLimitRejectionsTotal,
		m.ValidationIssuesTotal,
		m.ValidationBlocksTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveConnections,
		m.ActiveRequests,
	)

	return m
}

// ConnectionOpened records a new terminal session.
func (m *MetricsCollector) ConnectionOpened() {
	m.ActiveConnections.Inc()
}

// ConnectionClosed records a terminal session ending.
func (m *MetricsCollector) ConnectionClosed() {
	m.ActiveConnections.Dec()
}

// CommandObserved records one command by admission verdict and outcome.
// outcome is empty for commands that never reached execution.
func (m *MetricsCollector) CommandObserved(verdict, outcome string) {
	m.CommandsTotal.WithLabelValues(verdict, outcome).Inc()
}

// RateLimitRejected records one rate limiter rejection.
func (m *MetricsCollector) RateLimitRejected() {
	m.RateLimitRejectionsTotal.Inc()
}
