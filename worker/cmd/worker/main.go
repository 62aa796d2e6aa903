package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"audioDiarizer/admission"
	"audioDiarizer/registry"
	"audioDiarizer/storage"
	"audioDiarizer/worker/analysis"
	"audioDiarizer/worker/callback"
	"audioDiarizer/worker/config"
	"audioDiarizer/worker/executor"
	"audioDiarizer/worker/kafka"
	"audioDiarizer/worker/pool"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	logger.Info("Worker Service starting",
		zap.String("topic", cfg.KafkaTopic),
		zap.Int("workers", cfg.WorkerCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := registry.Connect(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	store := registry.NewRedisStore(redisClient, logger)

	files, err := storage.NewManager(cfg.StoragePath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	gate := admission.NewController(store, cfg.MaxConcurrentTasks)
	analyzer := analysis.NewCommandAnalyzer(cfg.AnalyzerCommand, files, logger)
	notifier := callback.NewNotifier(logger)
	exec := executor.New(store, files, gate, analyzer, notifier, cfg.AdmissionPollInterval, logger)

	consumer, err := kafka.NewConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaGroupID)
	if err != nil {
		logger.Fatal("Failed to connect to kafka", zap.Error(err))
	}
	defer consumer.Close()

	workers := pool.NewWorkerPool(cfg.WorkerCount)

	// Retention sweep runs on a fixed schedule alongside the consumers.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := files.SweepExpired(cfg.RetentionDays); err != nil {
					logger.Error("Retention sweep failed", zap.Error(err))
				}
			}
		}
	}()

	// Submit blocks until a slot frees, so the consumer only marks a message
	// once its task actually holds a worker slot.
	handler := func(ctx context.Context, msg *kafka.TaskMessage) error {
		workers.Submit(ctx, msg, func(ctx context.Context, msg *kafka.TaskMessage) error {
			if err := exec.Execute(ctx, msg); err != nil {
				logger.Error("Task execution failed",
					zap.String("task_id", msg.TaskID),
					zap.Error(err),
				)
			}
			return nil
		})
		return nil
	}

	for ctx.Err() == nil {
		if err := consumer.Consume(ctx, cfg.KafkaTopic, handler); err != nil {
			logger.Error("Consumer error", zap.Error(err))
		}
	}

	logger.Info("Shutting down, draining workers")
	workers.Wait()
}
