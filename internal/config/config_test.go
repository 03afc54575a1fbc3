package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenEnvUnset(t *testing.T) {
	clearEVEnv(t)

	cfg := Load()

	assert.Equal(t, "nats", cfg.BrokerKind)
	assert.Equal(t, "nats://localhost:4222", cfg.BrokerURL)
	assert.Equal(t, "ev_user", cfg.DBUser)
	assert.Equal(t, "ev_analytics", cfg.DBName)
	assert.EqualValues(t, 50, cfg.DBMaxConns)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 10000, cfg.FlushIntervalMS)
	assert.Equal(t, 30, cfg.TxTimeoutSeconds)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Nil(t, cfg.ValidAPIKeys)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEVEnv(t)
	t.Setenv("BROKER_KIND", "rabbitmq")
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("VALID_OPERATOR_KEYS", "key-a,key-b,")

	cfg := Load()

	assert.Equal(t, "rabbitmq", cfg.BrokerKind)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.ValidAPIKeys)
}

func TestLoad_MalformedIntFallsBackToDefault(t *testing.T) {
	clearEVEnv(t)
	t.Setenv("BATCH_SIZE", "not-a-number")

	cfg := Load()

	assert.Equal(t, 1000, cfg.BatchSize)
}

func clearEVEnv(t *testing.T) {
	for _, key := range []string{
		"BROKER_KIND", "BROKER_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"DB_MAX_CONNS", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "BATCH_SIZE", "FLUSH_INTERVAL_MS",
		"TX_TIMEOUT_SECONDS", "AUTH_CACHE_TTL_SECONDS", "VALID_OPERATOR_KEYS", "HTTP_PORT",
	} {
		_ = os.Unsetenv(key)
	}
}
