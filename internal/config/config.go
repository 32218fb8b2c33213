// Package config loads bot configuration from a YAML file with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// CatalogConfig holds the catalog API connection settings.
type CatalogConfig struct {
	BaseURL  string `yaml:"base_url" envconfig:"CATALOG_BASE_URL"`
	Email    string `yaml:"email" envconfig:"CATALOG_EMAIL"`
	Password string `yaml:"password" envconfig:"CATALOG_PASSWORD"`
	// CacheTTLSeconds sets the catalog cache bucket width.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" envconfig:"CATALOG_CACHE_TTL_SECONDS"`
	// RatePerSecond bounds outbound catalog requests; 0 -> default.
	RatePerSecond float64 `yaml:"rate_per_second" envconfig:"CATALOG_RATE_PER_SECOND"`
	ShopListLimit int     `yaml:"shop_list_limit" envconfig:"CATALOG_SHOP_LIST_LIMIT"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// SchedulerConfig holds digest scheduling defaults.
type SchedulerConfig struct {
	DefaultTimezone string `yaml:"default_timezone" envconfig:"SCHEDULER_DEFAULT_TIMEZONE"`
}

// MetricsConfig configures the optional metrics listener.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// RateLimitConfig throttles inbound updates per user.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

// Config aggregates all bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// CacheTTL returns the configured cache bucket width as a duration.
func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}

	if strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		cfg.Catalog.BaseURL = "https://bosko.getloyalty.me"
	}
	cfg.Catalog.BaseURL = strings.TrimRight(cfg.Catalog.BaseURL, "/")
	if cfg.Catalog.Email == "" || cfg.Catalog.Password == "" {
		return fmt.Errorf("catalog.email and catalog.password are required")
	}
	if cfg.Catalog.CacheTTLSeconds <= 0 {
		cfg.Catalog.CacheTTLSeconds = 21600
	}
	if cfg.Catalog.RatePerSecond <= 0 {
		cfg.Catalog.RatePerSecond = 5
	}
	if cfg.Catalog.ShopListLimit <= 0 {
		cfg.Catalog.ShopListLimit = 999
	}

	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}

	if cfg.Scheduler.DefaultTimezone == "" {
		cfg.Scheduler.DefaultTimezone = "Europe/Warsaw"
	}
	if _, err := time.LoadLocation(cfg.Scheduler.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid scheduler.default_timezone %q: %w", cfg.Scheduler.DefaultTimezone, err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "json":
		cfg.Logging.Format = "json"
	case "text", "kv", "pretty":
		cfg.Logging.Format = "text"
	default:
		return fmt.Errorf("invalid logging.format %q; allowed: json, text", cfg.Logging.Format)
	}

	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	return nil
}
