package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/db"
	"github.com/foxzi/sendry-campaign/internal/history"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the campaign database and run journal",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", cfg.Database.Path, err)
	}
	fmt.Printf("Database ready: %s\n", cfg.Database.Path)

	journal, err := history.Open(cfg.History.Path, cfg.History.MaxRecords)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	if err := journal.Close(); err != nil {
		return err
	}
	fmt.Printf("Run journal ready: %s\n", cfg.History.Path)
	return nil
}
