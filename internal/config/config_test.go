package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WEBHOOK_SECRET", "whsec")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "payouts.events", cfg.KafkaTopic)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
	assert.False(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.AutoMigrate)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WEBHOOK_SECRET", "whsec")

	_, err := Load()
	require.Error(t, err)
}
