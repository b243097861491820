/**
 * @description
 * This is the main entry point for the subscription-edit-service.
 * It initializes configuration and logging, connects the optional infrastructure
 * (PostgreSQL audit store, Redis in-flight guard, RabbitMQ producer), wires the
 * subscription backend client, edit service, scheduler and HTTP router, then
 * serves until a termination signal arrives.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver for the audit store.
 * - github.com/redis/go-redis/v9: Shared in-flight flags across instances.
 * - pkg/rabbitmq: Producer for edit events.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tiffinbox/subscription-edit-service/internal/api"
	"github.com/tiffinbox/subscription-edit-service/internal/app"
	"github.com/tiffinbox/subscription-edit-service/internal/config"
	"github.com/tiffinbox/subscription-edit-service/internal/store"
	"github.com/tiffinbox/subscription-edit-service/pkg/mealclient"
	"github.com/tiffinbox/subscription-edit-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audit := connectAuditStore(ctx, cfg, logger)
	if closer, ok := audit.(interface{ Close() }); ok {
		defer closer.Close()
	}

	guard, redisClient := connectInFlightGuard(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url missing; edit events will not be published", "env", "RABBITMQ_URL")
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	} else {
		logger.Info("rabbitmq producer connected")
		publisher = producer
	}
	defer publisher.Close()

	backend := mealclient.NewClient(cfg.SubscriptionAPIURL, cfg.SubscriptionAPIKey, cfg.BackendTimeout())
	catalog := app.NewCatalog(backend, logger)
	sessions := app.NewEditSessions(cfg.EditSessionTTL())

	service := app.NewService(app.Deps{
		Backend:   backend,
		Catalog:   catalog,
		Guard:     guard,
		Sessions:  sessions,
		Publisher: publisher,
		Audit:     audit,
		Logger:    logger,
		Location:  cfg.Location(),
	})

	jobs := app.NewJobs(catalog, sessions, logger, cfg.BackendTimeout())
	jobs.RefreshCatalog()
	scheduler := app.NewScheduler(jobs, logger, cfg.CatalogRefreshSchedule, cfg.SessionPruneSchedule)
	scheduler.Start()
	logger.Info("scheduler started", "jobs", scheduler.Entries())

	handler := api.NewHandler(service)
	router := api.NewRouter(handler, api.ClerkAuthMiddleware(cfg.ClerkJWKSURL))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	<-scheduler.Stop().Done()
	logger.Info("server stopped")
}

// auditStore is an AuditRecorder backed by a pool that main must close.
type auditStore struct {
	*store.Repository
	pool *pgxpool.Pool
}

func (s auditStore) Close() {
	s.pool.Close()
}

func connectAuditStore(ctx context.Context, cfg config.Config, logger *slog.Logger) app.AuditRecorder {
	if cfg.DatabaseURL == "" {
		logger.Warn("database url missing; edit audit disabled", "env", "DATABASE_URL")
		return app.NoopAuditRecorder{}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps PgBouncer transaction pooling working.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}

	repository := store.NewRepository(dbpool)
	if err := repository.EnsureSchema(ctx); err != nil {
		logger.Error("unable to prepare audit schema", "error", err)
		dbpool.Close()
		os.Exit(1)
	}
	logger.Info("database connection established")
	return auditStore{Repository: repository, pool: dbpool}
}

// connectInFlightGuard prefers Redis so every instance sees the same flags and
// falls back to a per-process guard.
func connectInFlightGuard(ctx context.Context, cfg config.Config, logger *slog.Logger) (app.InFlightGuard, *redis.Client) {
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; using in-process in-flight guard", "env", "REDIS_URL")
		return app.NewMemoryInFlightGuard(), nil
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process in-flight guard", "error", err)
		return app.NewMemoryInFlightGuard(), nil
	}

	redisClient := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process in-flight guard", "error", err)
		redisClient.Close()
		return app.NewMemoryInFlightGuard(), nil
	}

	logger.Info("redis connected")
	return app.NewRedisInFlightGuard(redisClient, cfg.RedisKeyPrefix, cfg.InFlightTTL(), logger), redisClient
}
