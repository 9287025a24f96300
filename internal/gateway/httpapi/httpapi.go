// Package httpapi implements the HTTP surface of the terminal gateway.
//
// Routes:
//   - GET /         service info (name, version, WebSocket endpoint)
//   - GET /health   combined health report with connection count
//   - GET /healthz  liveness probe
//   - GET /readyz   readiness probe (checks registered dependencies)
//   - GET /metrics  Prometheus exposition (when a registry is configured)
//
// The WebSocket terminal endpoint is mounted via WithHandler so the ws
// package stays independent of the HTTP framework. TLS is expected via
// a reverse proxy and is not handled here.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"
	"github.com/jkaninda/pyguard-terminal/internal/observability"
)

const serviceName = "PyGuard Terminal"

const defaultMaxRequestSize = 1 << 20 // 1 MB

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	Version        string // Reported by the service-info endpoint.
	TerminalPath   string // WebSocket mount path, reported by the service-info endpoint.
	EnableDocs     bool
	MaxRequestSize int64 // Request body limit in bytes. 0 = 1 MB.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// ConnectionCounter reports the number of live terminal sessions.
// Satisfied by the ws terminal server.
type ConnectionCounter interface {
	ActiveConnections() int
}

// Gateway is the HTTP gateway. It serves the service-info and health
// endpoints and hosts the WebSocket terminal handler.
type Gateway struct {
	config     Config
	credential func() bool // Reports whether the CLI credential is set. Checked per request.
	conns      ConnectionCounter
	logger     *slog.Logger
	server     *http.Server

	// Extra handlers mounted on the HTTP mux (the WebSocket terminal endpoint).
	extraRoutes []extraRoute
	okapi       *okapi.Okapi
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP gateway. credential is evaluated on every
// health request so key rotation is visible without a restart; nil means
// never configured. conns may be nil when no terminal server is mounted.
func NewGateway(cfg Config, credential func() bool, conns ConnectionCounter, logger *slog.Logger) *Gateway {
	if credential == nil {
		credential = func() bool { return false }
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:     cfg,
		credential: credential,
		conns:      conns,
		logger:     logger,
		okapi:      okapi.New(okapi.WithMaxMultipartMemory(cfg.MaxRequestSize)),
	}
}

// WithHandler mounts an additional handler on the HTTP mux at the given
// pattern. Used for the WebSocket terminal endpoint.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   serviceName,
			Version: g.config.Version,
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	g.okapi.Get("/", g.handleServiceInfo,
		okapi.DocSummary("Service information"),
		okapi.DocTags("Service"),
		okapi.DocResponse(ServiceInfoResponse{}),
	)
	g.okapi.Get("/health", g.handleHealth,
		okapi.DocSummary("Health report with connection count"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Probes.
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	// WebSocket terminal endpoint.
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// ServiceInfoResponse is the JSON response for GET /.
type ServiceInfoResponse struct {
	Service           string `json:"service"`
	Version           string `json:"version"`
	Status            string `json:"status"`
	WebSocketEndpoint string `json:"websocket_endpoint"`
}

func (g *Gateway) handleServiceInfo(c *okapi.Context) error {
	return c.OK(ServiceInfoResponse{
		Service:           serviceName,
		Version:           g.config.Version,
		Status:            "running",
		WebSocketEndpoint: g.config.TerminalPath,
	})
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	APIKeyConfigured  bool   `json:"api_key_configured"`
	ActiveConnections int    `json:"active_connections"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	active := 0
	if g.conns != nil {
		active = g.conns.ActiveConnections()
	}
	return c.OK(HealthResponse{
		Status:            "healthy",
		APIKeyConfigured:  g.credential(),
		ActiveConnections: active,
	})
}

// ProbeResponse is the JSON response for the liveness probe.
type ProbeResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&ProbeResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&ProbeResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
