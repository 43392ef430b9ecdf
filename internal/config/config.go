// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tallybook/internal/core/storecall"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Port     string `envconfig:"APP_PORT" default:"8080"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`

	Store struct {
		Timeout     time.Duration `envconfig:"STORE_TIMEOUT" default:"2s"`
		ReadRetries uint          `envconfig:"STORE_READ_RETRIES" default:"3"`
	}

	ConflictRetries int `envconfig:"CONFLICT_RETRIES" default:"3"`

	Idempotency struct {
		Enabled bool          `envconfig:"IDEMPOTENCY_ENABLED" default:"false"`
		TTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	}

	Realtime Realtime

	Outbox struct {
		PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
		BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	}
}

// Realtime configures the push connection. An empty URL disables it.
type Realtime struct {
	URL            string        `envconfig:"REALTIME_URL"`
	InitialBackoff time.Duration `envconfig:"REALTIME_INITIAL_BACKOFF" default:"5s"`
	MaxBackoff     time.Duration `envconfig:"REALTIME_MAX_BACKOFF" default:"30s"`
	MaxAttempts    uint          `envconfig:"REALTIME_MAX_ATTEMPTS" default:"10"`
	WriteTimeout   time.Duration `envconfig:"REALTIME_WRITE_TIMEOUT" default:"5s"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that envconfig cannot.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.ConflictRetries < 0 {
		errs = append(errs, errors.New("CONFLICT_RETRIES must not be negative"))
	}
	if c.Realtime.URL != "" && c.Realtime.InitialBackoff > c.Realtime.MaxBackoff {
		errs = append(errs, errors.New("REALTIME_INITIAL_BACKOFF must not exceed REALTIME_MAX_BACKOFF"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// Development reports whether the service runs with developer logging.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// StorePolicy returns the store call policy.
func (c *Config) StorePolicy() storecall.Policy {
	p := storecall.DefaultPolicy()
	p.Timeout = c.Store.Timeout
	p.ReadRetries = c.Store.ReadRetries
	return p
}
