package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/submitter"
)

// DefaultRegistryURL is the registry's create-document endpoint.
const DefaultRegistryURL = "https://ismp.crpt.ru/api/v3/lk/documents/create"

// Config represents the complete application configuration.
// Precedence, lowest first: built-in defaults, config file, .env file,
// environment variables, command flags and runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Workers   int             `mapstructure:"workers"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RegistryConfig describes the submission target and payload shape.
type RegistryConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	// SignatureMode is one of header, envelope, none.
	SignatureMode   string `mapstructure:"signature_mode"`
	SignatureHeader string `mapstructure:"signature_header"`

	// DocumentFormat and DocumentType fill the envelope body.
	DocumentFormat string `mapstructure:"document_format"`
	DocumentType   string `mapstructure:"document_type"`
}

// RateLimitConfig sizes the shared limiter. It is read once at startup.
type RateLimitConfig struct {
	// Policy is fixed_window (default) or token_bucket.
	Policy string `mapstructure:"policy"`

	// Capacity is the number of submissions admitted per interval.
	Capacity int `mapstructure:"capacity"`

	Interval time.Duration `mapstructure:"interval"`

	// TimeUnit, when set (SECONDS, MINUTES, ...), replaces Interval with one
	// unit of that length.
	TimeUnit string `mapstructure:"time_unit"`
}

// StatsConfig selects where submission counters go.
type StatsConfig struct {
	// Backend is memory (default), redis, or none.
	Backend string        `mapstructure:"backend"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
	Bucket  string        `mapstructure:"bucket"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains connection settings for the redis stats backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LimiterConfig resolves the rate limit section into a limiter configuration.
func (r RateLimitConfig) LimiterConfig() (ratelimit.Config, error) {
	policy, err := ratelimit.ParsePolicy(r.Policy)
	if err != nil {
		return ratelimit.Config{}, err
	}

	interval := r.Interval
	if strings.TrimSpace(r.TimeUnit) != "" {
		unit, err := ratelimit.ParseTimeUnit(r.TimeUnit)
		if err != nil {
			return ratelimit.Config{}, err
		}
		interval = unit
	}

	cfg := ratelimit.Config{
		Policy:   policy,
		Capacity: r.Capacity,
		Interval: interval,
	}
	if cfg.Capacity <= 0 {
		return cfg, fmt.Errorf("%w: rate_limit.capacity must be positive, got %d", ratelimit.ErrInvalidConfiguration, cfg.Capacity)
	}
	if cfg.Interval <= 0 {
		return cfg, fmt.Errorf("%w: rate_limit.interval must be positive, got %s", ratelimit.ErrInvalidConfiguration, cfg.Interval)
	}
	return cfg, nil
}

// SignaturePolicy resolves the registry signature settings.
func (r RegistryConfig) SignaturePolicy() (submitter.SignaturePolicy, error) {
	mode, err := submitter.ParseSignatureMode(r.SignatureMode)
	if err != nil {
		return submitter.SignaturePolicy{}, err
	}
	return submitter.SignaturePolicy{
		Mode:           mode,
		Header:         strings.TrimSpace(r.SignatureHeader),
		DocumentFormat: strings.TrimSpace(r.DocumentFormat),
		DocumentType:   strings.TrimSpace(r.DocumentType),
	}, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration is missing")
	}

	target := strings.TrimSpace(c.Registry.URL)
	if target == "" {
		return fmt.Errorf("registry.url is required")
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("registry.url must be an absolute http(s) URL, got %q", target)
	}

	if _, err := c.RateLimit.LimiterConfig(); err != nil {
		return err
	}
	if _, err := c.Registry.SignaturePolicy(); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Stats.Backend)) {
	case "", "memory", "redis", "none":
	default:
		return fmt.Errorf("stats.backend must be memory, redis, or none, got %q", c.Stats.Backend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
