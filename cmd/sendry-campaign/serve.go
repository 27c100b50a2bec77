package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/app"
	"github.com/foxzi/sendry-campaign/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := app.SetupLogger(cfg.Logging)
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(context.Background(), version)
}
