package main

import (
	"context"
	"log/slog"
	"time"

	"catalog-platform/seeder/internal/api"
	"catalog-platform/seeder/internal/bootstrap"
	"catalog-platform/seeder/internal/clients"
	"catalog-platform/seeder/internal/config"
	"catalog-platform/seeder/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	closeLog     func() error
	bootstrapper *bootstrap.Bootstrapper
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates the infrastructure clients, each with its own circuit breaker
//  3. Creates the bootstrapper
//  4. Creates the HTTP router
func buildAppContext(ctx context.Context, cfg *config.Config, closeLog func() error) *AppContext {
	app := &AppContext{cfg: cfg, closeLog: closeLog}

	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx, cfg.Telemetry)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	pg := clients.NewPostgresClient(cfg.Bootstrap.Database, clients.NewCircuitBreaker("postgres"))

	// Interfaces stay nil when a dependency is not configured so its phase
	// is skipped.
	var cache bootstrap.CacheInvalidator
	if cfg.Bootstrap.Redis.Enabled() {
		cache = clients.NewRedisClient(cfg.Bootstrap.Redis, clients.NewCircuitBreaker("redis"))
	}
	var events bootstrap.EventPublisher
	if cfg.Bootstrap.NATS.Enabled() {
		events = clients.NewNATSClient(cfg.Bootstrap.NATS, clients.NewCircuitBreaker("nats"))
	}

	app.bootstrapper = bootstrap.New(pg, cache, events, cfg.Bootstrap.Seed)
	app.router = api.NewRouter(app.bootstrapper, pg, api.RouterConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		BootstrapTimeout: cfg.Bootstrap.Timeout,
	})

	return app
}

// Close flushes telemetry and releases the log file.
func (a *AppContext) Close() {
	if a.otelProvider != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelProvider.Shutdown(shutCtx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
	releaseLog(a.closeLog)
}
