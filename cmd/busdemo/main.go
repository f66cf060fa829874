// Command busdemo wires the message bus's real infrastructure — a
// Postgres pool, a Watermill-backed event stream, a Redis idempotency
// guard, and Prometheus-exported metrics — and dispatches one command
// through it end to end, then serves /health and /metrics until
// terminated.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ghuser/txbus/adapters/postgresstore"
	"github.com/ghuser/txbus/adapters/redisdep"
	"github.com/ghuser/txbus/adapters/watermillstream"
	"github.com/ghuser/txbus/bus"
	"github.com/ghuser/txbus/eventstream"
	"github.com/ghuser/txbus/examples/dummy"
	"github.com/ghuser/txbus/metrics/prometheusmetrics"
	"github.com/ghuser/txbus/pkg/app"
	"github.com/ghuser/txbus/pkg/cache"
	"github.com/ghuser/txbus/pkg/config"
	"github.com/ghuser/txbus/pkg/database"
	"github.com/ghuser/txbus/pkg/events"
	"github.com/ghuser/txbus/pkg/httpx"
	"github.com/ghuser/txbus/pkg/logger"
	"github.com/ghuser/txbus/pkg/telemetry"
	"github.com/ghuser/txbus/uow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)
	ctx := context.Background()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DefinitionDatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close()
	log.Info("database pool connected")

	eventBus, err := events.NewEventBusWithForwarder(cfg, log)
	if err != nil {
		log.Error("failed to setup event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer eventBus.Close() //nolint:errcheck

	if err := eventBus.StartForwarder(ctx); err != nil {
		log.Error("failed to start event forwarder", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	metricsStore, err := prometheusmetrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error("failed to register bus metrics", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	transport := watermillstream.New(eventBus, cfg.EventStreamTopic)
	publisher := eventstream.NewPublisher(transport)

	dispatchBus := bus.New(map[string]bus.DependencyFactory{
		"notifier": func() uow.Dependency { return &dummy.Notifier{} },
		"cache":    func() uow.Dependency { return redisdep.NewCacheWarmer(redisClient)() },
	}, metricsStore)
	if err := dummy.Register(dispatchBus); err != nil {
		log.Error("failed to register demo handlers", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	appConfig := &app.Application{
		Db:       pool,
		Logger:   log,
		EventBus: eventBus,
		Redis:    redisClient,
		Bus:      dispatchBus,
		Metrics:  metricsStore,
	}

	runDemoDispatch(ctx, appConfig, publisher, redisClient)
	runStorageTransactionProbe(ctx, appConfig, pool, publisher)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)
	r.Get("/health", httpx.HealthHandler(httpx.HealthChecks{
		Database: pool,
		Redis:    redisClient,
		EventBus: eventBus,
	}))
	r.Get("/metrics", metricsHandler.ServeHTTP)

	srv := httpx.NewServer(":8080", r)

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// runDemoDispatch dispatches one IncrementCommand through the in-memory
// dummy unit of work, proving the full command → follow-up-event →
// dependency-hook → publish contract against the real Redis-backed
// idempotency guard and the real Watermill-backed publisher.
func runDemoDispatch(ctx context.Context, a *app.Application, publisher *eventstream.Publisher, redisClient *cache.RedisClient) {
	demoUOW := dummy.NewUnitOfWork()
	demoUOW.Models().Add(&dummy.Model{ID: "demo-1"})

	guard := redisdep.NewIdempotencyGuard(redisClient, "busdemo:increment:demo-1", 10*time.Minute)()

	result, err := uow.Run(ctx, demoUOW, publisher, a.Metrics, func(ctx context.Context, tx *uow.Transaction) (any, error) {
		tx.AddHook(guard)
		reserved, err := guard.Reserve(ctx)
		if err != nil {
			return nil, err
		}
		if !reserved {
			a.Logger.WarnContext(ctx, "demo command already reserved, skipping", "key", "busdemo:increment:demo-1")
			return nil, tx.Commit(ctx)
		}
		res, err := a.Bus.Handle(ctx, tx, dummy.NewIncrementCommand("demo-1", 1), nil)
		if err != nil {
			return nil, err
		}
		return res, tx.Commit(ctx)
	})
	if err != nil {
		a.Logger.ErrorContext(ctx, "demo dispatch failed", "error", err)
		return
	}
	a.Logger.InfoContext(ctx, "demo dispatch committed", "new_counter", result)
}

// runStorageTransactionProbe runs an empty transaction through the
// Postgres-backed unit of work, proving it satisfies uow.UnitOfWork and
// participates in the same Begin/Commit/MessageBackend lifecycle as the
// in-memory one used above, against a real SQL transaction.
func runStorageTransactionProbe(ctx context.Context, a *app.Application, pool *database.Database, publisher *eventstream.Publisher) {
	storageUOW := postgresstore.New(pool)
	_, err := uow.Run(ctx, storageUOW, publisher, a.Metrics, func(ctx context.Context, tx *uow.Transaction) (any, error) {
		return nil, tx.Commit(ctx)
	})
	if err != nil {
		a.Logger.WarnContext(ctx, "storage transaction probe failed", "error", err)
		return
	}
	a.Logger.InfoContext(ctx, "storage transaction probe committed")
}
