package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full gateway configuration. Values come from an optional
// YAML file overridden by environment variables; everything is validated once
// at cold start and never hot-reloaded.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Store     StoreConfig     `yaml:"context_store"`
	Quota     QuotaConfig     `yaml:"quota"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig holds the language-model provider settings.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// StoreConfig selects and configures the context store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "rest" or "sqlite"
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	DBPath     string `yaml:"db_path"`
}

// QuotaConfig holds quota gate settings.
type QuotaConfig struct {
	DailyLimit int `yaml:"daily_limit"`
}

// TelemetryConfig holds JSONL telemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// Load builds the configuration from an optional YAML file at path (empty
// path skips the file) with environment variables taking precedence.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Store:    StoreConfig{Backend: "sqlite", DBPath: "companion.db"},
		Quota:    QuotaConfig{DailyLimit: DefaultDailyMessageLimit},
		Upstream: UpstreamConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		LogLevel: "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Upstream.BaseURL, "UPSTREAM_BASE_URL")
	setString(&cfg.Upstream.APIKey, "UPSTREAM_API_KEY")
	setString(&cfg.Upstream.Model, "UPSTREAM_MODEL")
	setString(&cfg.Store.Backend, "CONTEXT_STORE_BACKEND")
	setString(&cfg.Store.URL, "CONTEXT_STORE_URL")
	setString(&cfg.Store.ServiceKey, "CONTEXT_STORE_SERVICE_KEY")
	setString(&cfg.Store.DBPath, "CONTEXT_STORE_DB_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Telemetry.LogPath, "TELEMETRY_PATH")
	if cfg.Telemetry.LogPath != "" {
		cfg.Telemetry.Enabled = true
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DAILY_MESSAGE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.DailyLimit = n
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for cold-start errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required (UPSTREAM_BASE_URL)")
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("context_store.db_path is required for the sqlite backend (CONTEXT_STORE_DB_PATH)")
		}
	case "rest":
		if c.Store.URL == "" {
			return fmt.Errorf("context_store.url is required for the rest backend (CONTEXT_STORE_URL)")
		}
		if c.Store.ServiceKey == "" {
			return fmt.Errorf("context_store.service_key is required for the rest backend (CONTEXT_STORE_SERVICE_KEY)")
		}
	default:
		return fmt.Errorf("context_store.backend must be \"rest\" or \"sqlite\", got %q", c.Store.Backend)
	}
	if c.Quota.DailyLimit < 0 {
		return fmt.Errorf("quota.daily_limit must be >= 0, got %d", c.Quota.DailyLimit)
	}
	return nil
}
