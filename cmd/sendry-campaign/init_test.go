package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/sendry-campaign/internal/config"
)

func TestGenerateRandomString(t *testing.T) {
	for _, length := range []int{8, 16, 32, 64} {
		if got := generateRandomString(length); len(got) != length {
			t.Errorf("generateRandomString(%d) returned string of length %d", length, len(got))
		}
	}

	if generateRandomString(32) == generateRandomString(32) {
		t.Error("generateRandomString should generate unique strings")
	}
}

func TestGenerateConfigLoads(t *testing.T) {
	dir := t.TempDir()
	initDataDir = dir
	initHostname = "mail.example.com"
	initTimezone = "UTC"
	initQuotaScope = config.QuotaScopeCampaign
	initDKIMDomain = ""
	t.Cleanup(func() { initQuotaScope = config.QuotaScopePool })

	data, err := yaml.Marshal(generateConfig())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	path := filepath.Join(dir, "campaign.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v\n%s", err, data)
	}
	if cfg.Dispatch.QuotaScope != config.QuotaScopeCampaign || cfg.Dispatch.Hostname != "mail.example.com" {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.DefaultDelay.Seconds() != 1 {
		t.Errorf("default_delay = %v", cfg.Dispatch.DefaultDelay)
	}
	if len(cfg.Server.APIKey) != 32 || len(cfg.Secrets.Key) != 32 {
		t.Errorf("keys not generated: %+v %+v", cfg.Server, cfg.Secrets)
	}
	if cfg.Database.Path != filepath.Join(dir, "campaign.db") {
		t.Errorf("database path = %s", cfg.Database.Path)
	}
}

func TestGenerateConfigWithDKIM(t *testing.T) {
	initDataDir = "/var/lib/sendry-campaign"
	initDKIMDomain = "example.com"
	t.Cleanup(func() { initDKIMDomain = "" })

	cfg := generateConfig()
	if !cfg.DKIM.Enabled || cfg.DKIM.Domain != "example.com" {
		t.Errorf("dkim = %+v", cfg.DKIM)
	}
	if cfg.DKIM.KeyFile != "/var/lib/sendry-campaign/dkim/example.com.key" {
		t.Errorf("key file = %s", cfg.DKIM.KeyFile)
	}
}
