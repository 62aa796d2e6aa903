package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port               string
	Env                string
	KafkaBrokers       string
	KafkaTopic         string
	RedisAddr          string
	StoragePath        string
	MaxFileSizeMB      int64
	SupportedFormats   []string
	MaxConcurrentTasks int
}

func Load() *Config {
	return &Config{
		Port:               getEnv("SERVICE_PORT", "8081"),
		Env:                getEnv("ENV", "development"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "diarize_tasks"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		MaxFileSizeMB:      getEnvAsInt64("MAX_FILE_SIZE_MB", 500),
		SupportedFormats:   splitList(getEnv("SUPPORTED_FORMATS", "wav,mp3,flac,m4a,ogg")),
		MaxConcurrentTasks: getEnvAsInt("MAX_CONCURRENT_TASKS", 500),
	}
}

func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
