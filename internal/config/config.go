// Package config loads the ingestor's environment-driven configuration.
// The API command layers viper/cobra on top of this pattern for its
// operator-facing flags (see cmd/api); the ingestor has none, so it
// keeps the plain getenv style.
package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Broker
	BrokerKind string // "nats" or "rabbitmq"
	BrokerURL  string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis (durable queue backend)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Batch writer tuning, per stream
	BatchSize        int
	FlushIntervalMS  int
	TxTimeoutSeconds int

	// Operator auth
	AuthCacheTTLSeconds int
	ValidAPIKeys        []string

	// HTTP
	HTTPPort string
}

func Load() *Config {
	return &Config{
		BrokerKind:          getEnv("BROKER_KIND", "nats"),
		BrokerURL:           getEnv("BROKER_URL", "nats://localhost:4222"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "ev_user"),
		DBPassword:          getEnv("DB_PASSWORD", "ev_password"),
		DBName:              getEnv("DB_NAME", "ev_analytics"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 50)),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		BatchSize:           getEnvInt("BATCH_SIZE", 1000),
		FlushIntervalMS:     getEnvInt("FLUSH_INTERVAL_MS", 10000),
		TxTimeoutSeconds:    getEnvInt("TX_TIMEOUT_SECONDS", 30),
		AuthCacheTTLSeconds: getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		ValidAPIKeys:        splitNonEmpty(getEnv("VALID_OPERATOR_KEYS", "")),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
