package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	MetricsAddr  string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	RequestTopic string
	KafkaGroupID string
	JWTSecret    string

	SystemMemberID     int64
	BalanceCacheTTL    time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	TxMaxRetries       int

	OTLPEndpoint string
	ServiceName  string
	LogLevel     string
	// StorageBackend is "postgres" or "memory".
	StorageBackend string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		MetricsAddr:  getenv("METRICS_ADDR", ":9090"),
		PostgresDSN:  getenv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=timebank sslmode=disable"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: splitList(getenv("KAFKA_BROKER", "localhost:9092")),
		RequestTopic: getenv("KAFKA_TOPIC_REQUESTS", "skill-requests"),
		KafkaGroupID: getenv("KAFKA_GROUP_ID", "skillswap-matching"),
		JWTSecret:    getenv("JWT_SECRET", "supersecret"),

		SystemMemberID:     getInt64("SYSTEM_MEMBER_ID", 1),
		BalanceCacheTTL:    getDuration("BALANCE_CACHE_TTL", 5*time.Minute),
		OutboxPollInterval: getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    int(getInt64("OUTBOX_BATCH_SIZE", 50)),
		OutboxMaxAttempts:  int(getInt64("OUTBOX_MAX_ATTEMPTS", 10)),
		TxMaxRetries:       int(getInt64("TX_MAX_RETRIES", 3)),

		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:    getenv("SERVICE_NAME", "skillswap-timebank"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		StorageBackend: strings.ToLower(getenv("STORAGE_BACKEND", "postgres")),
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"storage_backend", cfg.StorageBackend,
		"system_member_id", cfg.SystemMemberID)
	return cfg
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
