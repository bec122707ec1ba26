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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	pfhttp "github.com/planforge/planforge/internal/adapter/http"
	"github.com/planforge/planforge/internal/adapter/inference"
	"github.com/planforge/planforge/internal/adapter/jira"
	"github.com/planforge/planforge/internal/adapter/memory"
	"github.com/planforge/planforge/internal/adapter/memrag"
	pfnats "github.com/planforge/planforge/internal/adapter/nats"
	"github.com/planforge/planforge/internal/adapter/otel"
	"github.com/planforge/planforge/internal/adapter/postgres"
	"github.com/planforge/planforge/internal/adapter/ristretto"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/logger"
	"github.com/planforge/planforge/internal/middleware"
	"github.com/planforge/planforge/internal/port/database"
	"github.com/planforge/planforge/internal/port/issuetracker"
	"github.com/planforge/planforge/internal/port/messagequeue"
	"github.com/planforge/planforge/internal/port/ragstore"
	"github.com/planforge/planforge/internal/resilience"
	"github.com/planforge/planforge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"turn_budget", cfg.Planner.TurnBudget,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(context.Background()) }()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---

	var store database.Store
	var pool *pgxpool.Pool
	if cfg.Postgres.DSN == "" {
		slog.Info("no database configured, using in-memory store")
		store = memory.NewStore()
	} else {
		pool, err = postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		store = postgres.NewStore(pool)
	}

	// --- Messaging ---

	var queue *pfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = pfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()
	} else {
		slog.Info("no nats configured, event publishing disabled")
	}

	pub := service.NewPublisher(queueOrNil(queue), log)
	eventing := service.NewEventingStore(store, pub)

	// --- Retrieval ---

	registry := ragstore.NewRegistry()
	registry.Register(memrag.New("default", cfg.Ingestion.ChunkSize))

	queryCache, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer queryCache.Close()

	broker := service.NewRAGBroker(registry, queryCache, cfg.Cache.QueryTTL, log, metrics)

	// --- Outbound clients ---

	executor, err := inference.New(cfg.Inference,
		resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}

	var tracker issuetracker.Tracker
	if cfg.Jira.BaseURL != "" {
		tracker = jira.New(cfg.Jira,
			resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	} else {
		slog.Info("no jira configured, planning from issue keys only")
	}

	// --- Services ---

	artifacts := service.NewArtifactService(eventing, log)
	gateway := service.NewToolGateway(eventing, artifacts, broker, log)
	planner := service.NewPlanner(eventing, executor, gateway, tracker, broker, cfg.Planner, log, metrics)
	supervisor := service.NewSupervisor(ctx, eventing, planner, pub, cfg.Planner, log, metrics)
	ingestion := service.NewIngestionService(ctx, registry, pub, cfg.Ingestion, log, metrics)

	// --- HTTP ---

	handlers := &pfhttp.Handlers{
		Supervisor: supervisor,
		Artifacts:  artifacts,
		Broker:     broker,
		Ingestion:  ingestion,
		Registry:   registry,
	}
	if pool != nil {
		handlers.DBPing = func() error { return pool.Ping(context.Background()) }
	}
	if queue != nil {
		handlers.NATSAlive = queue.IsConnected
	}

	limiter := middleware.NewRateLimiter(50, 100)
	stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(pfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(pfhttp.Logger)
	r.Use(pfhttp.SecurityHeaders)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(limiter.Handler)
	r.Use(chimw.Recoverer)

	pfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// queueOrNil converts a possibly-nil *Queue into the port interface without
// producing a non-nil interface wrapping a nil pointer.
func queueOrNil(q *pfnats.Queue) messagequeue.Queue {
	if q == nil {
		return nil
	}
	return q
}
