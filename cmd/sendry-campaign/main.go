package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/sendry-campaign/internal/app"
	"github.com/foxzi/sendry-campaign/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "sendry-campaign",
	Short: "Sendry Campaign - paced email campaign dispatcher",
	Long: `Sendry Campaign sends email campaigns to recipient lists through an
authenticated SMTP relay, with pacing and a daily send limit.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sendry-campaign %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/sendry/campaign.yaml", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(campaignCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(dkimCmd)
}

// openApp loads the configuration and opens the stores for a one-shot command.
// Only warnings and errors are logged so command output stays readable.
func openApp() (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger := app.SetupLogger(config.LoggingConfig{Level: "warn", Format: "text"})
	return app.New(cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
