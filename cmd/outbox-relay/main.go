// Package main provides the outbox relay service entry point.
// Ships committed outbox entries to the Redpanda event topics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/config"
	"github.com/medly/go-clinic/internal/infrastructure/postgres"
	"github.com/medly/go-clinic/internal/infrastructure/redpanda"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	logger.Info("connected to database")

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers

	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	// Make sure the event topics exist before relaying into them.
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(context.Background()); err != nil {
		logger.Warn("topic creation failed", zap.Error(err))
	}
	admin.Close()

	outboxCfg := postgres.DefaultOutboxConfig()
	outboxCfg.DeadLetterTopic = redpanda.TopicDeadLetter
	outbox := postgres.NewOutbox(pool, &producerAdapter{producer}, outboxCfg, logger)

	outbox.Start()
	logger.Info("outbox relay started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	outbox.Stop()
	logger.Info("outbox relay stopped")
}

// producerAdapter adapts the Redpanda producer to OutboxPublisher interface
type producerAdapter struct {
	producer *redpanda.Producer
}

func (a *producerAdapter) Publish(ctx context.Context, topic, key string, value []byte) error {
	return a.producer.ProduceMessage(ctx, topic, key, value)
}
