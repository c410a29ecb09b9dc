// Package server provides the HTTP surface of the relay.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"classrelay/config"
	"classrelay/internal/admin"
	"classrelay/internal/cache"
	"classrelay/internal/chunk"
	"classrelay/internal/core"
)

// Relay paths. /api/gas is where the web client has always called.
const (
	RelayPath      = "/relay"
	RelayAliasPath = "/api/gas"
	AdminAPIPrefix = "/admin/api/v1"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   int64  // Max request body size in bytes (default: 10MB)
	SwaggerEnabled  bool   // Whether to serve Swagger UI at /swagger

	// Uploader drives uploadRefMaterial (default: an uploader over the relay)
	Uploader Uploader
	// RefCache caches getRefImage answers (default: no caching)
	RefCache cache.Cache

	AdminEndpointsEnabled bool           // Whether to serve the call log admin API
	AdminHandler          *admin.Handler // Admin API handler (nil disables the routes)
	AdminKey              string         // Bearer key for the admin API (empty: open)
}

// New creates a new HTTP server
func New(relayer core.Relayer, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}

	uploader := cfg.Uploader
	if uploader == nil {
		u, err := chunk.NewUploader(relayer, chunk.Config{})
		if err != nil {
			slog.Error("failed to create default uploader", "error", err)
		} else {
			uploader = u
		}
	}
	refCache := cfg.RefCache
	if refCache == nil {
		refCache = cache.Noop{}
	}

	handler := NewHandler(relayer, uploader, refCache, bodySizeLimit)

	// Global middleware stack (order matters)
	e.Use(middleware.Recover())
	e.Use(RequestIDMiddleware())
	e.Use(RequestLoggerMiddleware())
	e.Use(CORSMiddleware())

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath(cfg.MetricsEndpoint), echo.WrapHandler(promhttp.Handler()))
	}
	if cfg.SwaggerEnabled {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	// Admin API routes
	if cfg.AdminEndpointsEnabled && cfg.AdminHandler != nil {
		adminAPI := e.Group(AdminAPIPrefix, AuthMiddleware(cfg.AdminKey))
		adminAPI.GET("/calls/summary", cfg.AdminHandler.Summary)
		adminAPI.GET("/calls/outcomes", cfg.AdminHandler.Outcomes)
		adminAPI.GET("/calls/recent", cfg.AdminHandler.Recent)
	}

	// Relay routes
	for _, p := range []string{RelayPath, RelayAliasPath} {
		e.GET(p, handler.RelayGet)
		e.POST(p, handler.RelayPost)
		e.OPTIONS(p, handler.Preflight)
	}

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// metricsPath normalizes the configured endpoint. A path that would shadow a
// relay, health, admin or swagger route falls back to /metrics.
func metricsPath(endpoint string) string {
	const fallback = "/metrics"
	if endpoint == "" {
		return fallback
	}
	// Normalize path to prevent traversal attacks
	p := path.Clean("/" + endpoint)
	switch {
	case p == "/" || p == "/health" || p == RelayPath || p == RelayAliasPath:
		slog.Warn("metrics endpoint conflicts with a public route, using default", "configured", endpoint, "default", fallback)
		return fallback
	case strings.HasPrefix(p, "/swagger"), strings.HasPrefix(p, "/admin"),
		strings.HasPrefix(p, RelayPath+"/"), strings.HasPrefix(p, RelayAliasPath+"/"):
		slog.Warn("metrics endpoint conflicts with a public route, using default", "configured", endpoint, "default", fallback)
		return fallback
	}
	return p
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
