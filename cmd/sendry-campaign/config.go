package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  API key: %v\n", cfg.Server.APIKey != "")
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  History path: %s (max %d records)\n", cfg.History.Path, cfg.History.MaxRecords)
	fmt.Printf("  Quota scope: %s\n", cfg.Dispatch.QuotaScope)
	fmt.Printf("  Timezone: %s\n", cfg.Dispatch.Timezone)
	fmt.Printf("  Default pacing: %s delay, %d per day\n", cfg.Dispatch.DefaultDelay, cfg.Dispatch.DefaultMaxPerDay)
	fmt.Printf("  Password sealing: %v\n", cfg.Secrets.Key != "")
	fmt.Printf("  DKIM: %v\n", cfg.DKIM.Enabled)
	if cfg.DKIM.Enabled {
		fmt.Printf("    %s._domainkey.%s (%s)\n", cfg.DKIM.Selector, cfg.DKIM.Domain, cfg.DKIM.KeyFile)
	}
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}
