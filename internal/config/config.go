package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tracebase-eu/tracebase/internal/observability"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig               `mapstructure:"server"`
	Remote       RemoteConfig               `mapstructure:"remote"`
	Cache        CacheConfig                `mapstructure:"cache"`
	RateLimit    RateLimitConfig            `mapstructure:"rate_limit"`
	Orchestrator OrchestratorConfig         `mapstructure:"orchestrator"`
	Query        QueryConfig                `mapstructure:"query"`
	Tracing      observability.TracerConfig `mapstructure:"tracing"`
	Metrics      MetricsConfig              `mapstructure:"metrics"`
	Debug        bool                       `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// RemoteConfig points at the remote data service that executes queries and computes metrics
type RemoteConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	OutbreakID string        `mapstructure:"outbreak_id"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls caching of resolved metric ID sets
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"` // memory or redis
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig limits /api/v1 requests per client
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"` // memory or redis
	RedisURL string        `mapstructure:"redis_url"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// OrchestratorConfig controls preset application cycles
type OrchestratorConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	AsyncWorkers int           `mapstructure:"async_workers"`
	// DiscardStale drops async results of superseded cycles. Disabling it restores
	// last-writer-wins behavior where a slow cycle can overwrite a newer one.
	DiscardStale bool `mapstructure:"discard_stale"`
}

// QueryConfig contains page-level query parsing settings
type QueryConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"` // 0 = no default limit
	MaxPageSize     int `mapstructure:"max_page_size"`     // 0 = unlimited
}

// MetricsConfig contains Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("tracebase")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tracebase")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TRACEBASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 1*1024*1024) // 1MB

	// Remote data service defaults
	viper.SetDefault("remote.base_url", "http://localhost:3000/api")
	viper.SetDefault("remote.outbreak_id", "")
	viper.SetDefault("remote.token", "")
	viper.SetDefault("remote.timeout", "30s")

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.provider", "memory")
	viper.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	viper.SetDefault("cache.ttl", "1m")

	// Rate limit defaults
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.provider", "memory")
	viper.SetDefault("rate_limit.redis_url", "redis://localhost:6379/0")
	viper.SetDefault("rate_limit.requests", 120)
	viper.SetDefault("rate_limit.window", "1m")

	// Orchestrator defaults
	viper.SetDefault("orchestrator.debounce", "0s")
	viper.SetDefault("orchestrator.async_workers", 8)
	viper.SetDefault("orchestrator.discard_stale", true)

	// Query defaults
	viper.SetDefault("query.default_page_size", 50)
	viper.SetDefault("query.max_page_size", 500)

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	viper.SetDefault("tracing.enabled", tracing.Enabled)
	viper.SetDefault("tracing.endpoint", tracing.Endpoint)
	viper.SetDefault("tracing.service_name", tracing.ServiceName)
	viper.SetDefault("tracing.environment", tracing.Environment)
	viper.SetDefault("tracing.sample_rate", tracing.SampleRate)
	viper.SetDefault("tracing.insecure", tracing.Insecure)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote configuration error: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator configuration error: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query configuration error: %w", err)
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}
	return nil
}

// Validate validates remote data service configuration
func (rc *RemoteConfig) Validate() error {
	if rc.BaseURL == "" {
		return fmt.Errorf("remote base_url cannot be empty")
	}
	u, err := url.Parse(rc.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote base_url must be an http(s) URL: %s", rc.BaseURL)
	}
	if rc.Timeout <= 0 {
		return fmt.Errorf("remote timeout must be positive")
	}
	return nil
}

// Validate validates cache configuration
func (cc *CacheConfig) Validate() error {
	if !cc.Enabled {
		return nil
	}
	switch cc.Provider {
	case "memory":
	case "redis":
		if cc.RedisURL == "" {
			return fmt.Errorf("redis_url is required when using the redis cache provider")
		}
	default:
		return fmt.Errorf("cache provider must be 'memory' or 'redis'")
	}
	if cc.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	return nil
}

// Validate validates rate limit configuration
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	switch rc.Provider {
	case "memory":
	case "redis":
		if rc.RedisURL == "" {
			return fmt.Errorf("redis_url is required when using the redis rate limit provider")
		}
	default:
		return fmt.Errorf("rate limit provider must be 'memory' or 'redis'")
	}
	if rc.Requests < 1 {
		return fmt.Errorf("rate limit requests must be at least 1")
	}
	if rc.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	return nil
}

// Validate validates orchestrator configuration
func (oc *OrchestratorConfig) Validate() error {
	if oc.Debounce < 0 {
		return fmt.Errorf("orchestrator debounce cannot be negative")
	}
	if oc.AsyncWorkers < 1 {
		return fmt.Errorf("orchestrator async_workers must be at least 1")
	}
	return nil
}

// Validate validates query configuration
func (qc *QueryConfig) Validate() error {
	if qc.DefaultPageSize < 0 {
		return fmt.Errorf("default_page_size cannot be negative")
	}
	if qc.MaxPageSize < 0 {
		return fmt.Errorf("max_page_size cannot be negative")
	}
	if qc.MaxPageSize > 0 && qc.DefaultPageSize > qc.MaxPageSize {
		return fmt.Errorf("default_page_size cannot exceed max_page_size")
	}
	return nil
}
