package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Quota scopes
const (
	QuotaScopePool     = "pool"
	QuotaScopeCampaign = "campaign"
)

// Config represents the main configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	History  HistoryConfig  `yaml:"history"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	DKIM     DKIMConfig     `yaml:"dkim"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	APIKey          string        `yaml:"api_key"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig contains run history storage settings
type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxRecords int    `yaml:"max_records"`
}

// DispatchConfig contains campaign dispatch settings
type DispatchConfig struct {
	// Hostname sent in EHLO
	Hostname string        `yaml:"hostname"`
	Timeout  time.Duration `yaml:"timeout"`

	// QuotaScope selects which sends count against the daily limit:
	// "pool" counts every campaign delivery, "campaign" only the running campaign.
	QuotaScope string `yaml:"quota_scope"`
	Timezone   string `yaml:"timezone"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Used when pacing settings were never saved
	DefaultDelay     time.Duration `yaml:"default_delay"`
	DefaultMaxPerDay int           `yaml:"default_max_per_day"`
}

// SecretsConfig contains the key used to seal profile passwords at rest
type SecretsConfig struct {
	Key string `yaml:"key"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"`
	Path       string   `yaml:"path"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/sendry-campaign/campaign.db"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "/var/lib/sendry-campaign/history.db"
	}
	if cfg.History.MaxRecords == 0 {
		cfg.History.MaxRecords = 1000
	}
	if cfg.Dispatch.Hostname == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "localhost"
		}
		cfg.Dispatch.Hostname = hostname
	}
	if cfg.Dispatch.Timeout == 0 {
		cfg.Dispatch.Timeout = 30 * time.Second
	}
	if cfg.Dispatch.QuotaScope == "" {
		cfg.Dispatch.QuotaScope = QuotaScopePool
	}
	if cfg.Dispatch.Timezone == "" {
		cfg.Dispatch.Timezone = "UTC"
	}
	if cfg.Dispatch.DefaultDelay == 0 {
		cfg.Dispatch.DefaultDelay = time.Second
	}
	if cfg.Dispatch.DefaultMaxPerDay == 0 {
		cfg.Dispatch.DefaultMaxPerDay = 100
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Dispatch.QuotaScope {
	case QuotaScopePool, QuotaScopeCampaign:
	default:
		return fmt.Errorf("dispatch.quota_scope must be %q or %q", QuotaScopePool, QuotaScopeCampaign)
	}
	if _, err := time.LoadLocation(cfg.Dispatch.Timezone); err != nil {
		return fmt.Errorf("dispatch.timezone: %w", err)
	}
	if cfg.Dispatch.DefaultDelay < 0 {
		return fmt.Errorf("dispatch.default_delay must not be negative")
	}
	if cfg.Dispatch.DefaultMaxPerDay < 0 {
		return fmt.Errorf("dispatch.default_max_per_day must not be negative")
	}
	if cfg.DKIM.Enabled {
		if cfg.DKIM.Domain == "" {
			return fmt.Errorf("dkim.domain is required when DKIM is enabled")
		}
		if cfg.DKIM.Selector == "" {
			return fmt.Errorf("dkim.selector is required when DKIM is enabled")
		}
		if cfg.DKIM.KeyFile == "" {
			return fmt.Errorf("dkim.key_file is required when DKIM is enabled")
		}
	}
	if cfg.Secrets.Key != "" && len(cfg.Secrets.Key) < 16 {
		return fmt.Errorf("secrets.key must be at least 16 characters")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// Location returns the time zone used to decide what "today" means for quota
func (c *DispatchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
