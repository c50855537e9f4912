// Package config provides configuration loading, validation, and hot
// reload. Plans live in configuration so a limits change never needs a
// redeploy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/plutusfin/ledger/domain/period"
	"github.com/plutusfin/ledger/domain/plan"
)

// UnlimitedSentinel marks an unlimited resource limit in config files.
// It exists only at the YAML boundary; in memory a limit is either
// finite or unlimited, never a magic number.
const UnlimitedSentinel = -1

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Tokens   TokenConfig    `yaml:"tokens"`
	Referral ReferralConfig `yaml:"referral"`
	Gate     GateConfig     `yaml:"gate"`
	Plans    []PlanConfig   `yaml:"plans"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// TokenConfig configures token lifetimes and cleanup.
type TokenConfig struct {
	InviteTTL       time.Duration `yaml:"invite_ttl"`
	ShareTTL        time.Duration `yaml:"share_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ReferralConfig configures the referral bonus granted to both sides
// when a referred signup completes.
type ReferralConfig struct {
	BonusAmount string `yaml:"bonus_amount"` // decimal string, e.g. "10.00"
}

// GateConfig configures the quota gate's retry behavior on write
// conflicts.
type GateConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// PlanConfig configures a subscription plan's per-resource limits.
// A limit of -1 means unlimited.
type PlanConfig struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name"`
	Default bool             `yaml:"default"`
	Limits  map[string]int64 `yaml:"limits"`
}

// ToPlan converts the YAML form into the domain plan, translating the
// -1 sentinel into an explicit unlimited limit at the boundary.
func (p PlanConfig) ToPlan() plan.Plan {
	limits := make(map[string]plan.Limit, len(p.Limits))
	for resource, n := range p.Limits {
		if n == UnlimitedSentinel {
			limits[resource] = plan.Unlimited()
		} else {
			limits[resource] = plan.Finite(n)
		}
	}
	return plan.Plan{ID: p.ID, Name: p.Name, Limits: limits}
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
//
// Environment variables:
//
//	LEDGER_DATABASE_DSN    - Database path (default: ledger.db)
//	LEDGER_SERVER_HOST     - Server host (default: 0.0.0.0)
//	LEDGER_SERVER_PORT     - Server port (default: 8080)
//	LEDGER_LOG_LEVEL       - Log level: debug, info, warn, error (default: info)
//	LEDGER_LOG_FORMAT      - Log format: json or console (default: json)
//	LEDGER_METRICS_ENABLED - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies LEDGER_* environment variables to the
// config. Environment variables always override file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEDGER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LEDGER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LEDGER_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("LEDGER_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("LEDGER_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LEDGER_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("LEDGER_REFERRAL_BONUS"); v != "" {
		cfg.Referral.BonusAmount = v
	}

	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEDGER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("LEDGER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("LEDGER_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "ledger.db"
	}

	if cfg.Tokens.InviteTTL == 0 {
		cfg.Tokens.InviteTTL = 7 * 24 * time.Hour
	}
	if cfg.Tokens.ShareTTL == 0 {
		cfg.Tokens.ShareTTL = 30 * 24 * time.Hour
	}
	if cfg.Tokens.CleanupInterval == 0 {
		cfg.Tokens.CleanupInterval = time.Hour
	}

	if cfg.Referral.BonusAmount == "" {
		cfg.Referral.BonusAmount = "10.00"
	}

	if cfg.Gate.MaxRetries == 0 {
		cfg.Gate.MaxRetries = 3
	}
	if cfg.Gate.RetryBackoff == 0 {
		cfg.Gate.RetryBackoff = 25 * time.Millisecond
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Default free plan if none configured
	if len(cfg.Plans) == 0 {
		cfg.Plans = []PlanConfig{
			{
				ID:      "free",
				Name:    "Free",
				Default: true,
				Limits: map[string]int64{
					period.ResourceScout: 50,
					period.ResourceChats: 100,
				},
			},
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	bonus, err := decimal.NewFromString(cfg.Referral.BonusAmount)
	if err != nil {
		return fmt.Errorf("referral.bonus_amount %q is not a decimal: %w", cfg.Referral.BonusAmount, err)
	}
	if !bonus.IsPositive() {
		return fmt.Errorf("referral.bonus_amount must be positive, got %s", bonus)
	}

	seen := make(map[string]bool, len(cfg.Plans))
	defaults := 0
	for _, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plan without an id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Default {
			defaults++
		}
		for resource, n := range p.Limits {
			if !period.Known(resource) {
				return fmt.Errorf("plan %q: unknown resource %q", p.ID, resource)
			}
			if n < UnlimitedSentinel {
				return fmt.Errorf("plan %q: limit for %q must be >= -1, got %d", p.ID, resource, n)
			}
		}
	}
	if defaults != 1 {
		return fmt.Errorf("exactly one plan must be marked default, got %d", defaults)
	}

	return nil
}

// DefaultPlan returns the plan marked default. validate guarantees
// exactly one exists.
func (c *Config) DefaultPlan() plan.Plan {
	for _, p := range c.Plans {
		if p.Default {
			return p.ToPlan()
		}
	}
	return plan.Plan{}
}

// DomainPlans converts all configured plans to their domain form.
func (c *Config) DomainPlans() []plan.Plan {
	out := make([]plan.Plan, 0, len(c.Plans))
	for _, p := range c.Plans {
		out = append(out, p.ToPlan())
	}
	return out
}

// ReferralBonus returns the parsed referral bonus amount. validate
// guarantees it parses.
func (c *Config) ReferralBonus() decimal.Decimal {
	v, _ := decimal.NewFromString(c.Referral.BonusAmount)
	return v
}
