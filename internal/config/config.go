// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Store         StoreConfig         `yaml:"store"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig describes the orchestration engine's behavior knobs.
type EngineConfig struct {
	EnablePersistence bool          `yaml:"enable_persistence"`
	EnableRetries     bool          `yaml:"enable_retries"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RetryBackoff      string        `yaml:"retry_backoff"`
	EnableRollback    bool          `yaml:"enable_rollback"`
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
	EnableMetrics     bool          `yaml:"enable_metrics"`
}

// DefinitionsConfig describes where to find workflow definition YAML files.
type DefinitionsConfig struct {
	Directories    []string      `yaml:"directories"`
	HotReload      bool          `yaml:"hot_reload"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// StoreConfig describes workflow instance persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	AddrEnv         string        `yaml:"addr_env"`
	DB              int           `yaml:"db"`
	KeyPrefix       string        `yaml:"key_prefix"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig describes bearer-token authentication for the HTTP API.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SecretEnv string `yaml:"secret_env"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			EnablePersistence: true,
			EnableRetries:     true,
			MaxRetries:        3,
			RetryDelay:        1 * time.Second,
			RetryBackoff:      "constant",
			DefaultTimeout:    5 * time.Minute,
			EnableMetrics:     true,
		},
		Definitions: DefinitionsConfig{
			Directories:    []string{"/definitions"},
			ReloadInterval: 60 * time.Second,
		},
		Store: StoreConfig{
			Driver:          "memory",
			KeyPrefix:       "orchest",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Store.Driver {
	case "memory", "redis", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, redis, postgres", c.Store.Driver))
	}
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, "engine.max_retries must be >= 0")
	}
	if c.Engine.RetryDelay < 0 {
		errs = append(errs, "engine.retry_delay must be >= 0")
	}
	switch c.Engine.RetryBackoff {
	case "", "constant", "exponential":
	default:
		errs = append(errs, fmt.Sprintf("engine.retry_backoff %q is not one of constant, exponential", c.Engine.RetryBackoff))
	}
	if c.Auth.Enabled && c.Auth.SecretEnv == "" {
		errs = append(errs, "auth.secret_env is required when auth is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads ORCHEST_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORCHEST_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ORCHEST_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("ORCHEST_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("ORCHEST_ENGINE_MAX_RETRIES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n >= 0 {
			cfg.Engine.MaxRetries = n
		}
	}
	if v := os.Getenv("ORCHEST_ENGINE_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Engine.RetryDelay = d
		}
	}
}
