package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9999"
  api_key: "test-api-key"

database:
  path: "/tmp/campaign.db"

dispatch:
  hostname: "mailer.test.com"
  timeout: 10s
  quota_scope: "campaign"
  timezone: "Europe/Berlin"
  default_delay: 250ms
  default_max_per_day: 500

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %v, want :9999", cfg.Server.ListenAddr)
	}
	if cfg.Server.APIKey != "test-api-key" {
		t.Errorf("APIKey = %v, want test-api-key", cfg.Server.APIKey)
	}
	if cfg.Database.Path != "/tmp/campaign.db" {
		t.Errorf("Database.Path = %v", cfg.Database.Path)
	}
	if cfg.Dispatch.Hostname != "mailer.test.com" {
		t.Errorf("Hostname = %v", cfg.Dispatch.Hostname)
	}
	if cfg.Dispatch.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Dispatch.Timeout)
	}
	if cfg.Dispatch.QuotaScope != QuotaScopeCampaign {
		t.Errorf("QuotaScope = %v, want campaign", cfg.Dispatch.QuotaScope)
	}
	if cfg.Dispatch.DefaultDelay != 250*time.Millisecond {
		t.Errorf("DefaultDelay = %v, want 250ms", cfg.Dispatch.DefaultDelay)
	}
	if cfg.Dispatch.DefaultMaxPerDay != 500 {
		t.Errorf("DefaultMaxPerDay = %v, want 500", cfg.Dispatch.DefaultMaxPerDay)
	}
	if cfg.Dispatch.Location().String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, want Europe/Berlin", cfg.Dispatch.Location())
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %v, want text", cfg.Logging.Format)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  api_key: \"k\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %v, want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Dispatch.QuotaScope != QuotaScopePool {
		t.Errorf("QuotaScope = %v, want pool", cfg.Dispatch.QuotaScope)
	}
	if cfg.Dispatch.Timezone != "UTC" {
		t.Errorf("Timezone = %v, want UTC", cfg.Dispatch.Timezone)
	}
	if cfg.Dispatch.DefaultDelay != time.Second {
		t.Errorf("DefaultDelay = %v, want 1s", cfg.Dispatch.DefaultDelay)
	}
	if cfg.Dispatch.DefaultMaxPerDay != 100 {
		t.Errorf("DefaultMaxPerDay = %v, want 100", cfg.Dispatch.DefaultMaxPerDay)
	}
	if cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Dispatch.Timeout)
	}
	if cfg.History.MaxRecords != 1000 {
		t.Errorf("History.MaxRecords = %v, want 1000", cfg.History.MaxRecords)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad quota scope",
			content: "dispatch:\n  quota_scope: \"everything\"\n",
			wantErr: "quota_scope",
		},
		{
			name:    "bad timezone",
			content: "dispatch:\n  timezone: \"Mars/Olympus\"\n",
			wantErr: "timezone",
		},
		{
			name:    "negative max per day",
			content: "dispatch:\n  default_max_per_day: -1\n",
			wantErr: "default_max_per_day",
		},
		{
			name:    "dkim without domain",
			content: "dkim:\n  enabled: true\n  selector: \"s1\"\n  key_file: \"/tmp/k.pem\"\n",
			wantErr: "dkim.domain",
		},
		{
			name:    "short secret key",
			content: "secrets:\n  key: \"short\"\n",
			wantErr: "secrets.key",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: \"trace\"\n",
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
