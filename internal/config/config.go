package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL   string        `env:"DATABASE_URL,required"`
	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTExpiry     time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	WebhookSecret string        `env:"WEBHOOK_SECRET,required"`
	Port          int           `env:"PORT" envDefault:"8080"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv        string        `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
	// AutoMigrate applies pending migrations before serving.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"false"`

	// Optional. Redis backs the idempotency cache and, without Kafka, the
	// outbox publisher.
	RedisURL     string   `env:"REDIS_URL"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"payouts.events"`
	RedisStream  string   `env:"REDIS_STREAM" envDefault:"payouts.events"`

	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	OutboxMaxAttempts   int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"`
	WebhookPollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"2s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
