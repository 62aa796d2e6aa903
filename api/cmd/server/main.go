package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"audioDiarizer/admission"
	"audioDiarizer/api/config"
	"audioDiarizer/api/handlers"
	"audioDiarizer/api/kafka"
	"audioDiarizer/api/middleware"
	"audioDiarizer/api/service"
	"audioDiarizer/registry"
	"audioDiarizer/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	logger.Info("API Service starting", zap.String("port", cfg.Port))

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

	producer, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
	if err != nil {
		logger.Fatal("Failed to connect to kafka", zap.Error(err))
	}
	defer producer.Close()

	gate := admission.NewController(store, cfg.MaxConcurrentTasks)
	taskService := service.NewTaskService(store, files, gate, producer, cfg.KafkaTopic, logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger, cfg.MaxFileSizeBytes(), cfg.SupportedFormats)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/diarize/upload", taskHandler.Upload)
	mux.HandleFunc("/api/v1/diarize/status/", taskHandler.Status)
	mux.HandleFunc("/api/v1/diarize/download/", taskHandler.Download)
	mux.HandleFunc("/api/v1/diarize/metadata/", taskHandler.Metadata)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware.TraceID(middleware.Logging(logger)(middleware.Recovery(logger)(mux)))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		logger.Info("Server started", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}
