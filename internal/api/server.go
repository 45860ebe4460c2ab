// Package api exposes the catalog, screening, alert, planner, ephemeris and
// history operations over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitrisk/internal/alerts"
	"github.com/star/orbitrisk/internal/auth"
	"github.com/star/orbitrisk/internal/ephemeris"
	"github.com/star/orbitrisk/internal/health"
	"github.com/star/orbitrisk/internal/history"
	"github.com/star/orbitrisk/internal/httputil"
	"github.com/star/orbitrisk/internal/logging"
	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/passes"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/stream"
	"github.com/star/orbitrisk/internal/tle"
)

// Config holds HTTP settings.
type Config struct {
	Addr string
	Auth auth.Config
	// MaxScreensPerIP bounds concurrent on-demand screenings per client.
	MaxScreensPerIP int
	// ScreenBudget bounds pairs × samples of one on-demand screening.
	ScreenBudget  int64
	ScreenTimeout time.Duration
	// ScreenDefaults fills options a screening request leaves out.
	ScreenDefaults screening.Options
	TrustProxy     bool
}

// Deps are the services behind the routes. History and Stream may be nil.
type Deps struct {
	Loader    *tle.Loader
	Engine    *propagation.Engine
	Screener  *screening.Screener
	Alerts    *alerts.Service
	Ephemeris *ephemeris.Builder
	Passes    *passes.Predictor
	History   *history.Store
	Stream    *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	cfg        Config
	deps       Deps
	screens    *httputil.Limiter
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.MaxScreensPerIP <= 0 {
		cfg.MaxScreensPerIP = 2
	}
	if cfg.ScreenTimeout <= 0 {
		cfg.ScreenTimeout = time.Minute
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		screens: httputil.NewLimiter(cfg.MaxScreensPerIP, 0),
		logger:  logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Loader.Store()))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/v1/catalog", s.handleCatalogUpload)
	mux.HandleFunc("POST /api/v1/catalog/fetch", s.handleCatalogFetch)
	mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/alerts/stream", deps.Stream.HandleAlerts)
	}
	mux.HandleFunc("POST /api/v1/screen", s.handleScreen)
	mux.HandleFunc("POST /api/v1/planner", s.handlePlanner)
	mux.HandleFunc("GET /api/v1/ephemeris/{catalog_id}", s.handleEphemeris)
	mux.HandleFunc("GET /api/v1/passes/{catalog_id}", s.handlePasses)
	mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/v1/history/runs", s.handleHistoryRuns)
	mux.HandleFunc("GET /api/v1/history/runs/{id}", s.handleHistoryRun)

	// Build middleware chain: metrics -> request id -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = logging.Middleware(logger, handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("api configured",
		"addr", cfg.Addr,
		"auth", cfg.Auth.Enabled(),
		"history", deps.History != nil,
		"stream", deps.Stream != nil,
		"max_screens_per_ip", cfg.MaxScreensPerIP,
		"screen_budget", cfg.ScreenBudget,
	)
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// healthCheckPath returns true for health/readiness check paths that should not log at INFO.
func healthCheckPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func loggingMiddleware(fallback *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if healthCheckPath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logging.FromContext(r.Context(), fallback).Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
