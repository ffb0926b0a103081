// Package config loads application configuration from defaults, an optional
// YAML file and OPSQUEUE_-prefixed environment variables, in that order of
// precedence (later sources win).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "OPSQUEUE_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Queue    QueueConfig    `koanf:"queue"`
	Jobs     JobsConfig     `koanf:"jobs"`
	Delivery DeliveryConfig `koanf:"delivery"`
	CORS     CORSConfig     `koanf:"cors"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
}

// QueueConfig contains queue dispatcher settings.
type QueueConfig struct {
	BatchSize    int           `koanf:"batch_size" validate:"min=1"`
	ClaimTimeout time.Duration `koanf:"claim_timeout" validate:"required"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"min=1"`
}

// JobsConfig contains job runner settings.
type JobsConfig struct {
	BatchSize    int           `koanf:"batch_size" validate:"min=1"`
	ClaimTimeout time.Duration `koanf:"claim_timeout" validate:"required"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"min=1"`
}

// DeliveryConfig contains outbound delivery settings.
type DeliveryConfig struct {
	Webhooks []WebhookConfig `koanf:"webhooks" validate:"dive"`
}

// WebhookConfig describes one webhook gateway bound to a queue work type.
type WebhookConfig struct {
	WorkType  string        `koanf:"work_type" validate:"required"`
	URL       string        `koanf:"url" validate:"required,url"`
	RateLimit float64       `koanf:"rate_limit" validate:"min=0"`
	Timeout   time.Duration `koanf:"timeout"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        "10s",
		"server.read_header_timeout": "5s",
		"server.write_timeout":       "30s",
		"server.idle_timeout":        "120s",

		"database.max_open_conns":    10,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "30m",
		"database.connect_timeout":   "30s",
		"database.connect_attempts":  5,

		"queue.batch_size":    25,
		"queue.claim_timeout": "5m",
		"queue.max_attempts":  3,

		"jobs.batch_size":    10,
		"jobs.claim_timeout": "15m",
		"jobs.max_attempts":  3,

		"cors.allowed_origins": []string{},

		"log.level":  "info",
		"log.format": "text",
	}
}

// Load reads configuration from defaults, the YAML file at path (skipped
// if path is empty or the file does not exist) and the environment.
// Environment keys map to config keys with a double underscore as the
// nesting separator, e.g. OPSQUEUE_DATABASE__MAX_OPEN_CONNS.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
