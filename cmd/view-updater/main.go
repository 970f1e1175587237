// Package main provides the view updater service entry point.
// Consumes the clinic event topics and folds them into the read models.
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
	"github.com/medly/go-clinic/internal/infrastructure/redpanda"
	"github.com/medly/go-clinic/internal/views"
	"github.com/medly/go-clinic/pkg/workerpool"
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

	updater := views.NewUpdater(views.NewStore(pool, logger), logger)

	// The worker pool supplies retry-with-backoff around each fold; the
	// consumer commits an offset only after its message was applied.
	workers, err := workerpool.New(workerpool.DefaultConfig(), func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
		msg := task.Payload.(*redpanda.ConsumedMessage)
		if err := updater.Handle(ctx, msg); err != nil {
			return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
		}
		return &workerpool.Result{TaskID: task.ID, Success: true}
	}, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	workers.Start()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.Topics = []string{redpanda.TopicAppointmentEvents, redpanda.TopicScheduleEvents}

	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
		result, err := workers.SubmitWait(ctx, &workerpool.Task{
			ID:      fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset),
			Payload: msg,
			Context: ctx,
		})
		if err != nil {
			return err
		}
		return result.Error
	}, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("view updater started",
		zap.Strings("topics", consumerCfg.Topics),
		zap.String("group", consumerCfg.GroupID))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	if err := consumer.Stop(); err != nil {
		logger.Warn("consumer stop failed", zap.Error(err))
	}
	if err := workers.Stop(); err != nil {
		logger.Warn("worker pool stop failed", zap.Error(err))
	}
	logger.Info("view updater stopped")
}
