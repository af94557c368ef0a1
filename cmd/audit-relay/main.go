// Package main provides the audit relay entry point. It drains the verdict
// outbox and publishes each entry to the audit topic, so the authorization
// workflow downstream sees every classification exactly once.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/config"
	"github.com/andesalud/hiv-auth/internal/infrastructure/postgres"
	"github.com/andesalud/hiv-auth/internal/infrastructure/redpanda"
	"github.com/andesalud/hiv-auth/pkg/circuitbreaker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	logger.Info("connected to database")

	// Make sure the audit topic exists before relaying into it.
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(context.Background()); err != nil {
		logger.Warn("topic bootstrap failed, relying on broker auto-create", zap.Error(err))
	}
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to broker", zap.Strings("brokers", cfg.KafkaBrokers))

	// A broker outage should back the relay off instead of hammering it;
	// unpublished entries stay in the outbox and retry later.
	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("audit-publisher"), logger)
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}

	outbox := postgres.NewOutbox(pool, &guardedPublisher{producer: producer, breaker: breaker}, postgres.DefaultOutboxConfig(), logger)

	outbox.Start()
	logger.Info("audit relay started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	outbox.Stop()
	logger.Info("audit relay stopped")
}

// guardedPublisher adapts the producer to the outbox publisher interface,
// routing every publish through the circuit breaker.
type guardedPublisher struct {
	producer *redpanda.Producer
	breaker  *circuitbreaker.CircuitBreaker
}

func (g *guardedPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	_, err := g.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, g.producer.ProduceMessage(ctx, topic, key, value)
	})
	return err
}
