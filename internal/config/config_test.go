package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SCHEDULER_INTERVAL", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "0s")

	_, err := Load()
	require.Error(t, err)
}
