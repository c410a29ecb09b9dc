// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the relay server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"classrelay/config"
	"classrelay/internal/admin"
	"classrelay/internal/cache"
	"classrelay/internal/calllog"
	"classrelay/internal/chunk"
	"classrelay/internal/httpclient"
	"classrelay/internal/observability"
	"classrelay/internal/relay"
	"classrelay/internal/server"
	"classrelay/internal/storage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	relay    *relay.Client
	uploader *chunk.Uploader
	refCache cache.Cache
	calllog  *calllog.Result
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// HTTPClient overrides the outbound client (optional). It must not follow
	// redirects.
	HTTPClient *http.Client
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	bodySizeLimit, err := config.ParseBodySizeLimit(appCfg.Server.BodySizeLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid body size limit: %w", err)
	}

	// Initialize call logging
	callLogResult, err := calllog.New(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize call logging: %w", err)
	}
	app.calllog = callLogResult

	// Initialize the reference cache
	refCache, err := buildRefCache(appCfg.Cache)
	if err != nil {
		closeErr := app.calllog.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize reference cache: %w (also: call log close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize reference cache: %w", err)
	}
	app.refCache = refCache

	// Hooks: metrics first so in-flight tracking brackets the call log write
	relayHooks := []relay.Hooks{}
	uploadHooks := []func(context.Context, chunk.UploadInfo){}
	if appCfg.Metrics.Enabled {
		metrics := observability.NewPrometheusMetrics()
		relayHooks = append(relayHooks, metrics.RelayHooks())
		uploadHooks = append(uploadHooks, metrics.UploadHook())
	}
	relayHooks = append(relayHooks, calllog.RelayHooks(callLogResult.Logger))
	uploadHooks = append(uploadHooks, calllog.UploadHook(callLogResult.Logger))

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.Timeout = time.Duration(appCfg.HTTP.Timeout) * time.Second
		clientCfg.ResponseHeaderTimeout = time.Duration(appCfg.HTTP.ResponseHeaderTimeout) * time.Second
		httpClient = httpclient.NewHTTPClient(&clientCfg)
	}

	relayClient, err := relay.New(httpClient, relay.Config{
		BackendURL:      appCfg.Backend.URL,
		MaxPayloadBytes: bodySizeLimit,
		Hooks:           relay.Chain(relayHooks...),
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create relay: %w", err), app.closeResources())
	}
	app.relay = relayClient

	uploader, err := chunk.NewUploader(relayClient, chunk.Config{
		MaxChunkLength: appCfg.Backend.MaxChunkLength,
		Concurrency:    appCfg.Backend.UploadConcurrency,
		OnUploadEnd: func(ctx context.Context, info chunk.UploadInfo) {
			for _, hook := range uploadHooks {
				hook(ctx, info)
			}
		},
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create uploader: %w", err), app.closeResources())
	}
	app.uploader = uploader

	app.logStartupInfo(bodySizeLimit)

	serverCfg := &server.Config{
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   bodySizeLimit,
		SwaggerEnabled:  appCfg.Server.SwaggerEnabled,
		Uploader:        uploader,
		RefCache:        refCache,
	}

	if appCfg.Server.AdminEndpointsEnabled {
		adminHandler, adminErr := initAdmin(callLogResult.Storage)
		if adminErr != nil {
			slog.Warn("failed to initialize admin", "error", adminErr)
		} else {
			serverCfg.AdminEndpointsEnabled = true
			serverCfg.AdminHandler = adminHandler
			serverCfg.AdminKey = appCfg.Server.AdminKey
			slog.Info("admin API enabled", "api", server.AdminAPIPrefix)
		}
	} else {
		slog.Info("admin API disabled")
	}

	app.server = server.New(relayClient, serverCfg)

	return app, nil
}

// initAdmin builds the admin API over the call log storage. Without storage
// the API still answers, with empty results.
func initAdmin(store storage.Storage) (*admin.Handler, error) {
	if store == nil {
		return admin.NewHandler(nil), nil
	}
	reader, err := calllog.NewReader(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create call log reader: %w", err)
	}
	return admin.NewHandler(reader), nil
}

// Relay returns the relay client.
func (a *App) Relay() *relay.Client {
	return a.relay
}

// Uploader returns the chunk uploader.
func (a *App) Uploader() *chunk.Uploader {
	return a.uploader
}

// CallLogger returns the call logger interface.
func (a *App) CallLogger() calllog.LoggerInterface {
	if a.calllog == nil {
		return nil
	}
	return a.calllog.Logger
}

// Handler returns the HTTP handler, for serving without a listener.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, then the reference cache, then the call logger
// (which flushes pending entries).
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) closeResources() error {
	var errs []error
	if a.refCache != nil {
		if err := a.refCache.Close(); err != nil {
			slog.Error("reference cache close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
		a.refCache = nil
	}
	if a.calllog != nil {
		if err := a.calllog.Close(); err != nil {
			slog.Error("call log close error", "error", err)
			errs = append(errs, fmt.Errorf("call log close: %w", err))
		}
		a.calllog = nil
	}
	return errors.Join(errs...)
}

func buildRefCache(cfg config.CacheConfig) (cache.Cache, error) {
	ttl := time.Duration(cfg.TTL) * time.Second
	switch cfg.Type {
	case "", "local":
		return cache.NewLocalCache(ttl, cfg.MaxEntries), nil
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			URL:    cfg.Redis.URL,
			Prefix: cfg.Redis.Key,
			TTL:    ttl,
		})
	case "none":
		return cache.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(bodySizeLimit int64) {
	cfg := a.config

	slog.Info("relay configured",
		"backend", a.relay.BackendURL(),
		"body_size_limit", bodySizeLimit,
		"max_chunk_length", a.uploader.MaxChunkLength(),
	)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("reference cache configured", "type", cfg.Cache.Type, "ttl_seconds", cfg.Cache.TTL)

	if cfg.CallLog.Enabled {
		slog.Info("call logging enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.CallLog.BufferSize,
			"flush_interval", cfg.CallLog.FlushInterval,
			"retention_days", cfg.CallLog.RetentionDays,
		)
	} else {
		slog.Info("call logging disabled")
	}

	if cfg.Server.SwaggerEnabled {
		slog.Info("swagger UI enabled", "path", "/swagger/index.html")
	}

	if cfg.Server.AdminEndpointsEnabled && cfg.Server.AdminKey == "" {
		slog.Warn("ADMIN_KEY not set - admin API is unauthenticated")
	}
}
