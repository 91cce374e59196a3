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
	Auth          AuthConfig          `yaml:"auth"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Store         StoreConfig         `yaml:"store"`
	SLA           SLAConfig           `yaml:"sla"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Retry         RetryConfig         `yaml:"retry"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// AuthConfig describes JWT bearer-token verification settings. The engine
// verifies tokens; issuing them is an identity-provider concern.
type AuthConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	SigningKeyEnv string   `yaml:"signing_key_env"`
	Algorithms    []string `yaml:"algorithms"`
}

// CatalogConfig describes where to find activity catalog YAML files.
type CatalogConfig struct {
	Directories []string `yaml:"directories"`
}

// StoreConfig describes persistence settings for activity instances,
// SLA records, and escalation events.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SLAConfig describes deadline computation and the breach sweep.
type SLAConfig struct {
	// SweepInterval is how often the background sweep checks open
	// records for breaches and drives escalation.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// DefaultHours applies to phases without an explicit entry.
	DefaultHours int `yaml:"default_hours"`

	// PhaseHours maps a phase name to its SLA window in hours.
	PhaseHours map[string]int `yaml:"phase_hours"`
}

// EscalationConfig describes escalation thresholds, audiences, and
// notification delivery.
type EscalationConfig struct {
	Thresholds   []ThresholdConfig `yaml:"thresholds"`
	AudienceFile string            `yaml:"audience_file"`
	Webhook      WebhookConfig     `yaml:"webhook"`
}

// ThresholdConfig maps one escalation level to the breach duration that
// triggers it and the roles notified when it fires.
type ThresholdConfig struct {
	Level int           `yaml:"level"`
	After time.Duration `yaml:"after"`
	Roles []string      `yaml:"roles"`
}

// WebhookConfig describes the HTTP notification transport. When URL is
// empty, notifications are written to the log instead.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig describes the execution retry policy for automated activity
// handlers: max attempts and exponential backoff, tunable rather than
// hardcoded.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
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

// Defaults returns a Config with sensible default values. The escalation
// ladder defaults to level 1 at +4h through level 4 at +48h.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Auth: AuthConfig{
			SigningKeyEnv: "REGCYCLE_AUTH_SIGNING_KEY",
			Algorithms:    []string{"HS256"},
		},
		Catalog: CatalogConfig{
			Directories: []string{"/catalog"},
		},
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "REGCYCLE_STORE_DSN",
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SLA: SLAConfig{
			SweepInterval: 60 * time.Second,
			DefaultHours:  24,
		},
		Escalation: EscalationConfig{
			Thresholds: []ThresholdConfig{
				{Level: 1, After: 4 * time.Hour, Roles: []string{"test_manager"}},
				{Level: 2, After: 12 * time.Hour, Roles: []string{"test_manager", "executive"}},
				{Level: 3, After: 24 * time.Hour, Roles: []string{"executive"}},
				{Level: 4, After: 48 * time.Hour, Roles: []string{"executive", "admin"}},
			},
			Webhook: WebhookConfig{Timeout: 10 * time.Second},
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BackoffInitial:    500 * time.Millisecond,
			BackoffMultiplier: 2.0,
			BackoffMax:        10 * time.Second,
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
	if len(c.Catalog.Directories) == 0 {
		errs = append(errs, "catalog.directories must not be empty")
	}
	if c.Store.Driver != "memory" && c.Store.Driver != "postgres" {
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.SLA.DefaultHours <= 0 {
		errs = append(errs, "sla.default_hours must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}

	// Thresholds must be strictly increasing in both level and duration;
	// the level function depends on this ordering.
	for i, th := range c.Escalation.Thresholds {
		if th.Level != i+1 {
			errs = append(errs, fmt.Sprintf("escalation.thresholds[%d].level must be %d", i, i+1))
		}
		if th.After <= 0 {
			errs = append(errs, fmt.Sprintf("escalation.thresholds[%d].after must be positive", i))
		}
		if i > 0 && th.After <= c.Escalation.Thresholds[i-1].After {
			errs = append(errs, fmt.Sprintf("escalation.thresholds[%d].after must exceed the previous threshold", i))
		}
		if len(th.Roles) == 0 {
			errs = append(errs, fmt.Sprintf("escalation.thresholds[%d].roles must not be empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads REGCYCLE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REGCYCLE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REGCYCLE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("REGCYCLE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("REGCYCLE_SLA_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SLA.SweepInterval = d
		}
	}
	if v := os.Getenv("REGCYCLE_ESCALATION_WEBHOOK_URL"); v != "" {
		cfg.Escalation.Webhook.URL = v
	}
}
