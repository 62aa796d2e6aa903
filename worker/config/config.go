package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	KafkaBrokers          string
	KafkaTopic            string
	KafkaGroupID          string
	RedisAddr             string
	StoragePath           string
	WorkerCount           int
	MaxConcurrentTasks    int
	AdmissionPollInterval time.Duration
	RetentionDays         int
	SweepInterval         time.Duration
	AnalyzerCommand       string
}

func Load() *Config {
	return &Config{
		KafkaBrokers:          getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "diarize_tasks"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "diarize-worker-group"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		StoragePath:           getEnv("STORAGE_PATH", "./storage"),
		WorkerCount:           getEnvAsInt("WORKER_COUNT", 5),
		MaxConcurrentTasks:    getEnvAsInt("MAX_CONCURRENT_TASKS", 500),
		AdmissionPollInterval: time.Duration(getEnvAsInt("ADMISSION_POLL_SECONDS", 5)) * time.Second,
		RetentionDays:         getEnvAsInt("RESULT_RETENTION_DAYS", 7),
		SweepInterval:         time.Duration(getEnvAsInt("SWEEP_INTERVAL_HOURS", 24)) * time.Hour,
		AnalyzerCommand:       getEnv("ANALYZER_COMMAND", "diarize-engine"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
