package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config captures environment driven configuration values for the appointment service.
type Config struct {
	HTTPPort         int           `env:"APPOINTMENTS_HTTP_PORT" envDefault:"8080"`
	DatabasePath     string        `env:"APPOINTMENTS_DB_PATH" envDefault:"appointments.db"`
	BulkThreshold    int           `env:"APPOINTMENTS_BULK_THRESHOLD" envDefault:"500"`
	JobRetries       int           `env:"APPOINTMENTS_JOB_RETRIES" envDefault:"1"`
	NightlySpec      string        `env:"APPOINTMENTS_NIGHTLY_SPEC" envDefault:"0 1 * * *"`
	JobRetention     time.Duration `env:"APPOINTMENTS_JOB_RETENTION" envDefault:"720h"`
	RefdataCacheSize int           `env:"APPOINTMENTS_REFDATA_CACHE_SIZE" envDefault:"256"`
	RefdataPath      string        `env:"APPOINTMENTS_REFDATA_PATH"`
	AMQPURL          string        `env:"APPOINTMENTS_AMQP_URL"`
	AMQPExchange     string        `env:"APPOINTMENTS_AMQP_EXCHANGE" envDefault:"appointment-events"`
}

// Load parses configuration values from the current process environment,
// applying defaults for optional fields and validating the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.HTTPPort <= 0 {
		return Config{}, fmt.Errorf("APPOINTMENTS_HTTP_PORT must be positive, got %d", cfg.HTTPPort)
	}
	if cfg.BulkThreshold <= 0 {
		return Config{}, fmt.Errorf("APPOINTMENTS_BULK_THRESHOLD must be positive, got %d", cfg.BulkThreshold)
	}
	if cfg.JobRetries < 0 {
		return Config{}, fmt.Errorf("APPOINTMENTS_JOB_RETRIES must not be negative, got %d", cfg.JobRetries)
	}
	if cfg.JobRetention <= 0 {
		return Config{}, fmt.Errorf("APPOINTMENTS_JOB_RETENTION must be positive, got %s", cfg.JobRetention)
	}
	if cfg.RefdataCacheSize <= 0 {
		return Config{}, fmt.Errorf("APPOINTMENTS_REFDATA_CACHE_SIZE must be positive, got %d", cfg.RefdataCacheSize)
	}

	return cfg, nil
}
