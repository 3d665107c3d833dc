package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.Allocation.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Allocation.TxTimeout)
	assert.Equal(t, 30, cfg.Allocation.ExpiringDefaultDays)
	assert.Equal(t, 30*time.Second, cfg.Stats.CacheTTL)
	assert.Equal(t, "housing:audit", cfg.Audit.Stream)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("ALLOC_MAX_RETRIES", "5")
	t.Setenv("ALLOC_TX_TIMEOUT", "250ms")
	t.Setenv("STATS_CACHE_TTL", "-1s")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")

	cfg := Load()

	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "pg", cfg.Database.Host)
	assert.Equal(t, 5, cfg.Allocation.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Allocation.TxTimeout)
	assert.Equal(t, 30*time.Second, cfg.Stats.CacheTTL, "non-positive durations fall back to the default")
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}
