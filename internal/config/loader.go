// Package config provides centralized configuration management for docgate.
// Values come from viper (defaults, config file, environment) and are decoded
// into a typed Config with mapstructure.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// envAliases maps short environment names (after the prefix) onto config keys.
var envAliases = map[string][]string{
	"server.host":         {"HOST"},
	"server.port":         {"PORT"},
	"logging.level":       {"LOG_LEVEL"},
	"logging.profile":     {"LOG_PROFILE"},
	"registry.url":        {"REGISTRY_URL", "API_URL"},
	"rate_limit.capacity": {"REQUEST_LIMIT"},
	"rate_limit.interval": {"RATE_INTERVAL"},
	"stats.redis.addr":    {"REDIS_ADDR"},
	"metrics.port":        {"METRICS_PORT"},
	"workers":             {"WORKERS"},
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Registry defaults
	v.SetDefault("registry.url", DefaultRegistryURL)
	v.SetDefault("registry.timeout", "30s")
	v.SetDefault("registry.user_agent", "")
	v.SetDefault("registry.signature_mode", "header")
	v.SetDefault("registry.signature_header", "Signature")
	v.SetDefault("registry.document_format", "MANUAL")
	v.SetDefault("registry.document_type", "")

	// Rate limit defaults: one submission per second
	v.SetDefault("rate_limit.policy", "fixed_window")
	v.SetDefault("rate_limit.capacity", 1)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("rate_limit.time_unit", "")

	// Stats defaults
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.prefix", "docgate:stats")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.redis.addr", "localhost:6379")
	v.SetDefault("stats.redis.username", "")
	v.SetDefault("stats.redis.password", "")
	v.SetDefault("stats.redis.db", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Worker defaults
	v.SetDefault("workers", 4)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

// ConfigureEnv makes v read PREFIX_SECTION_KEY variables, plus the short
// aliases in envAliases.
func ConfigureEnv(v *viper.Viper, prefix string) {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "_")
	if prefix != "" {
		v.SetEnvPrefix(prefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if prefix == "" {
		return
	}
	for key, names := range envAliases {
		bound := make([]string, 0, len(names))
		for _, name := range names {
			bound = append(bound, prefix+"_"+name)
		}
		_ = v.BindEnv(append([]string{key}, bound...)...)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored and existing
// variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load decodes v (plus any runtime overrides, applied last) into a Config,
// validates it, and stores it for GetConfig.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	merged := v.AllSettings()
	for _, overrides := range runtimeOverrides {
		mergeMaps(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath(configName string) string {
	if strings.TrimSpace(configName) == "" {
		configName = "docgate"
	}
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// mergeMaps copies src into dst, descending into nested maps. Dotted keys
// ("rate_limit.capacity") address nested sections.
func mergeMaps(dst, src map[string]any) {
	for rawKey, value := range src {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		if key == "" {
			continue
		}

		if head, rest, ok := strings.Cut(key, "."); ok {
			mergeMaps(ensureMap(dst, head), map[string]any{rest: value})
			continue
		}

		if nested, ok := value.(map[string]any); ok {
			mergeMaps(ensureMap(dst, key), nested)
			continue
		}
		dst[key] = value
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
