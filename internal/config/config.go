package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mailchimp MailchimpConfig `yaml:"mailchimp"`
	Flusher   FlusherConfig   `yaml:"flusher"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings for the analytics cache and the
// flusher lock. Disabled means both fall back gracefully (no cache,
// PG advisory lock).
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// MailchimpConfig holds Mailchimp API configuration. The datacenter is
// embedded in the API key suffix; no separate base URL is needed.
type MailchimpConfig struct {
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailchimpConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether an account key is present at all.
func (c MailchimpConfig) Configured() bool {
	return c.APIKey != ""
}

// FlusherConfig holds batch flusher tuning
type FlusherConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
	MaxAttempts     int `yaml:"max_attempts"`
	RetentionDays   int `yaml:"retention_days"`
}

// Interval returns the flush interval as a duration
func (c FlusherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// WebhookConfig holds inbound webhook settings. PublicURL is the
// externally reachable endpoint registered with Mailchimp.
type WebhookConfig struct {
	PublicURL string `yaml:"public_url"`
}

// AnalyticsConfig holds analytics cache and retention tuning
type AnalyticsConfig struct {
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
	RetentionDays   int `yaml:"retention_days"`
}

// CacheTTL returns the read-cache TTL as a duration
func (c AnalyticsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Mailchimp.TimeoutSeconds == 0 {
		cfg.Mailchimp.TimeoutSeconds = 10
	}
	if cfg.Flusher.IntervalSeconds == 0 {
		cfg.Flusher.IntervalSeconds = 300
	}
	if cfg.Flusher.BatchSize == 0 {
		cfg.Flusher.BatchSize = 100
	}
	if cfg.Flusher.MaxAttempts == 0 {
		cfg.Flusher.MaxAttempts = 3
	}
	if cfg.Flusher.RetentionDays == 0 {
		cfg.Flusher.RetentionDays = 7
	}
	if cfg.Analytics.CacheTTLMinutes == 0 {
		cfg.Analytics.CacheTTLMinutes = 30
	}
	if cfg.Analytics.RetentionDays == 0 {
		cfg.Analytics.RetentionDays = 90
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MAILCHIMP_API_KEY"); v != "" {
		cfg.Mailchimp.APIKey = v
	}
	if v := os.Getenv("WEBHOOK_PUBLIC_URL"); v != "" {
		cfg.Webhook.PublicURL = v
	}
	if v := os.Getenv("FLUSHER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Flusher.BatchSize = n
		}
	}
	if v := os.Getenv("FLUSHER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Flusher.IntervalSeconds = n
		}
	}

	return cfg, nil
}
