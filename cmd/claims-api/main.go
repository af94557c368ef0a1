// Package main provides the claims API service entry point: pharmacy-claim
// lookup, HIV registry checks, treatment-cycle classification and
// substitution resolution for the authorization workflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/api/handlers"
	"github.com/andesalud/hiv-auth/internal/api/middleware"
	"github.com/andesalud/hiv-auth/internal/config"
	"github.com/andesalud/hiv-auth/internal/domain/claims"
	"github.com/andesalud/hiv-auth/internal/domain/cycle"
	"github.com/andesalud/hiv-auth/internal/infrastructure/postgres"
	"github.com/andesalud/hiv-auth/internal/infrastructure/redpanda"
	"github.com/andesalud/hiv-auth/internal/observability/metrics"
	"github.com/andesalud/hiv-auth/internal/observability/tracing"
	"github.com/andesalud/hiv-auth/pkg/circuitbreaker"
	"github.com/andesalud/hiv-auth/pkg/workerpool"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	// Tracing is optional: without an OTLP endpoint the global no-op
	// tracer provider stays in place.
	if cfg.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("claims-api")
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
		tcfg.Environment = cfg.Environment

		provider, err := tracing.Init(context.Background(), tcfg)
		if err != nil {
			logger.Warn("tracing init failed, continuing without traces", zap.Error(err))
		} else {
			defer provider.Shutdown(context.Background())
		}
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Stores, optionally guarded by circuit breakers. Domain outcomes
	// (NotFound, Validation) never count against a circuit.
	var (
		registry cycle.MedicationRegistry = postgres.NewMedicationRegistry(pool, logger)
		history  cycle.DispensingHistory  = postgres.NewDispensingHistory(pool, logger)
		table    cycle.SubstitutionTable  = postgres.NewSubstitutionTable(pool, logger)
	)

	if cfg.BreakersEnabled {
		manager := circuitbreaker.NewManager(logger)
		registry = postgres.NewBreakerRegistry(registry, mustBreaker(manager, "hiv-registry", logger))
		history = postgres.NewBreakerHistory(history, mustBreaker(manager, "dispensing-history", logger))
		table = postgres.NewBreakerSubstitutionTable(table, mustBreaker(manager, "substitution-table", logger))
	}

	classifier := cycle.NewClassifier(registry, history, table, logger)
	resolver := cycle.NewResolver(table, logger)
	audit := postgres.NewAuditLog(pool, redpanda.TopicCycleVerdicts, logger)

	m := metrics.New()

	// Worker pool for batch classification.
	poolCfg := workerpool.DefaultConfig()
	workerPool, err := workerpool.New(poolCfg, handlers.CycleWorker(classifier), logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workerPool.Start()
	defer workerPool.Stop()

	claimsHandler := handlers.NewClaimsHandler(classifier, resolver, history, audit, workerPool, m, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("claims-api"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	claimsHandler.Register(r, middleware.BasicAuth(cfg.APIUsername, cfg.APIPassword))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting claims API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func mustBreaker(manager *circuitbreaker.Manager, name string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	cfg := circuitbreaker.DefaultConfig(name)
	cfg.IsSuccessful = func(err error) bool {
		return err == nil ||
			errors.Is(err, claims.ErrNotFound) ||
			errors.Is(err, claims.ErrValidation)
	}

	cb, err := manager.GetOrCreate(cfg)
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.String("name", name), zap.Error(err))
	}
	return cb
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"claims-api","version":"1.0.0"}`)
}
