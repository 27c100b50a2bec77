package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/dkim"
)

var (
	initOutput     string
	initDataDir    string
	initHostname   string
	initTimezone   string
	initQuotaScope string
	initDKIMDomain string
	initForce      bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a configuration file with a generated API key and password
sealing key.

Examples:
  sendry-campaign init -o campaign.yaml
  sendry-campaign init --dkim-domain example.com --timezone Europe/Berlin`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "campaign.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/sendry-campaign", "Data directory for the database, history and keys")
	initCmd.Flags().StringVar(&initHostname, "hostname", "", "Hostname sent in EHLO (default: system hostname)")
	initCmd.Flags().StringVar(&initTimezone, "timezone", "UTC", "Time zone that decides the quota day")
	initCmd.Flags().StringVar(&initQuotaScope, "quota-scope", config.QuotaScopePool, "Quota scope: pool or campaign")
	initCmd.Flags().StringVar(&initDKIMDomain, "dkim-domain", "", "Generate a DKIM key for this domain")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	cfg := generateConfig()

	if initDKIMDomain != "" {
		if _, err := dkim.GenerateKeyFile(cfg.DKIM.KeyFile); err != nil {
			return err
		}
		fmt.Printf("DKIM key saved to: %s\n", cfg.DKIM.KeyFile)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(initOutput, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", initOutput)
	fmt.Printf("  API key: %s\n", cfg.Server.APIKey)

	if initDKIMDomain != "" {
		signer, err := dkim.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return err
		}
		fmt.Println()
		return printDNSRecord(signer)
	}
	return nil
}

func generateConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:      ":8090",
			APIKey:          generateRandomString(32),
			ShutdownTimeout: 30 * time.Second,
		},
		Database: config.DatabaseConfig{Path: filepath.Join(initDataDir, "campaign.db")},
		History: config.HistoryConfig{
			Path:       filepath.Join(initDataDir, "history.db"),
			MaxRecords: 1000,
		},
		Dispatch: config.DispatchConfig{
			Hostname:         initHostname,
			Timeout:          30 * time.Second,
			QuotaScope:       initQuotaScope,
			Timezone:         initTimezone,
			DefaultDelay:     time.Second,
			DefaultMaxPerDay: 100,
		},
		Secrets: config.SecretsConfig{Key: generateRandomString(32)},
		Metrics: config.MetricsConfig{
			ListenAddr: "127.0.0.1:9090",
			Path:       "/metrics",
			AllowedIPs: []string{"127.0.0.1/32"},
		},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}

	if initDKIMDomain != "" {
		cfg.DKIM = config.DKIMConfig{
			Enabled:  true,
			Domain:   initDKIMDomain,
			Selector: "campaign",
			KeyFile:  filepath.Join(initDataDir, "dkim", initDKIMDomain+".key"),
		}
	}
	return cfg
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
