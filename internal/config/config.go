package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment selects one of the known backend deployments
type Environment string

const (
	EnvLocal  Environment = "local"
	EnvDocker Environment = "docker"
)

// backendURIs maps each deployment to the backend collection root
var backendURIs = map[Environment]string{
	EnvLocal:  "http://localhost:5001/api",
	EnvDocker: "http://backend:8080/api",
}

// ImagePolicy decides which images of a property are shown in the catalog
type ImagePolicy string

const (
	ImagePolicyEnabledOnly ImagePolicy = "enabled_only"
	ImagePolicyAll         ImagePolicy = "all"
)

// Config represents the application configuration
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Images    ImagesConfig    `yaml:"images"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BackendConfig contains settings for the upstream REST API
type BackendConfig struct {
	Environment           Environment       `yaml:"environment"`
	BaseURI               string            `yaml:"base_uri"` // overrides Environment when set
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds"`
	MaxRetries            int               `yaml:"max_retries"`
	RetryDelayMillis      int               `yaml:"retry_delay_ms"`
	RequestsPerSecond     float64           `yaml:"requests_per_second"` // 0 disables pacing
	Burst                 int               `yaml:"burst"`
	BreakerThreshold      int               `yaml:"breaker_threshold"` // 0 disables the circuit breaker
	BreakerResetSeconds   int               `yaml:"breaker_reset_seconds"`
	Headers               map[string]string `yaml:"headers"`
}

// ImagesConfig contains settings for the per-property image fan-out
type ImagesConfig struct {
	Policy      ImagePolicy `yaml:"policy"`
	Concurrency int         `yaml:"concurrency"`
}

// ServerConfig contains settings for the catalog HTTP API
type ServerConfig struct {
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// RateLimitConfig contains inbound rate limiting settings for write routes
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// DatabaseConfig contains snapshot database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"` // mysql, postgres, sqlite or empty to disable
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig contains SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"` // empty disables indexing
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// SchedulerConfig contains periodic catalog refresh settings
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CronSpec string `yaml:"cron_spec"`
}

// SnapshotsConfig contains snapshot retention settings
type SnapshotsConfig struct {
	RetentionDays    int  `yaml:"retention_days"`
	MaxDeletionCount int  `yaml:"max_deletion_count"`
	DryRun           bool `yaml:"dry_run"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	LogRequests bool   `yaml:"log_requests"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Environment:           EnvLocal,
			RequestTimeoutSeconds: 10,
			MaxRetries:            0,
			RetryDelayMillis:      500,
			RequestsPerSecond:     0,
			Burst:                 1,
			BreakerThreshold:      0,
			BreakerResetSeconds:   60,
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
		},
		Images: ImagesConfig{
			Policy:      ImagePolicyEnabledOnly,
			Concurrency: 8,
		},
		Server: ServerConfig{
			Port:         8084,
			AllowOrigins: []string{"http://localhost:5173"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			RequestsPerHour:   1800,
			RequestsPerDay:    0,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			CronSpec: "0 2 * * *",
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Index: "properties",
			},
		},
		Snapshots: SnapshotsConfig{
			RetentionDays:    90,
			MaxDeletionCount: 10000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			LogRequests: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides configuration values with environment variables when set
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BACKEND_ENV"); v != "" {
		c.Backend.Environment = Environment(v)
	}
	if v := os.Getenv("BACKEND_BASE_URI"); v != "" {
		c.Backend.BaseURI = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DB_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.MySQL.Host = v
		c.Database.Postgres.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.MySQL.User = v
		c.Database.Postgres.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.MySQL.Password = v
		c.Database.Postgres.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.MySQL.Database = v
		c.Database.Postgres.Database = v
	}
	if v := os.Getenv("MEILISEARCH_HOST"); v != "" {
		c.Search.Meilisearch.Host = v
	}
	if v := os.Getenv("MEILISEARCH_KEY"); v != "" {
		c.Search.Meilisearch.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports configuration values that cannot work
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Backend.ResolveBaseURI(); err != nil {
		errs = append(errs, err)
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("backend.request_timeout_seconds must be positive"))
	}
	if c.Backend.MaxRetries < 0 {
		errs = append(errs, errors.New("backend.max_retries must not be negative"))
	}
	switch c.Images.Policy {
	case ImagePolicyEnabledOnly, ImagePolicyAll:
	default:
		errs = append(errs, fmt.Errorf("images.policy %q is not one of %q, %q", c.Images.Policy, ImagePolicyEnabledOnly, ImagePolicyAll))
	}
	if c.Images.Concurrency <= 0 {
		errs = append(errs, errors.New("images.concurrency must be positive"))
	}
	switch c.Database.Type {
	case "", "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not supported", c.Database.Type))
	}
	return errors.Join(errs...)
}

// ResolveBaseURI returns the backend root address, preferring the explicit
// base_uri over the environment preset.
func (c *BackendConfig) ResolveBaseURI() (string, error) {
	raw := c.BaseURI
	if raw == "" {
		preset, ok := backendURIs[c.Environment]
		if !ok {
			return "", fmt.Errorf("backend.environment %q is not one of %q, %q", c.Environment, EnvLocal, EnvDocker)
		}
		raw = preset
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("backend base uri %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("backend base uri %q must be an absolute http(s) address", raw)
	}
	return raw, nil
}

// GetRequestTimeout returns the per-request timeout as a duration
func (c *BackendConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// GetRetryDelay returns the base retry delay as a duration
func (c *BackendConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

// GetBreakerReset returns the circuit breaker reset timeout as a duration
func (c *BackendConfig) GetBreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}
