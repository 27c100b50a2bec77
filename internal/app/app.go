// Package app wires the campaign dispatcher together. The server and the
// command line tools share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/foxzi/sendry-campaign/internal/api"
	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/db"
	"github.com/foxzi/sendry-campaign/internal/dispatch"
	"github.com/foxzi/sendry-campaign/internal/dkim"
	"github.com/foxzi/sendry-campaign/internal/history"
	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/models"
	"github.com/foxzi/sendry-campaign/internal/quota"
	"github.com/foxzi/sendry-campaign/internal/repository"
	"github.com/foxzi/sendry-campaign/internal/runner"
	"github.com/foxzi/sendry-campaign/internal/secret"
	"github.com/foxzi/sendry-campaign/internal/smtp"
	"github.com/foxzi/sendry-campaign/internal/validation"
)

// App holds the stores and services of the dispatcher
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Campaigns  *repository.CampaignRepository
	Lists      *repository.ListRepository
	Deliveries *repository.DeliveryRepository
	Profiles   *repository.ProfileRepository
	Settings   *repository.SettingsRepository
	History    *history.Store
	Quota      *quota.Tracker
	Dialer     *smtp.Dialer
	Signer     *dkim.Signer
	Engine     *dispatch.Engine
	Runner     *runner.Controller
	Validator  *validation.Validator

	db *db.DB
}

// New opens the database and the run history and builds every service
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	journal, err := history.Open(cfg.History.Path, cfg.History.MaxRecords)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	var signer *dkim.Signer
	if cfg.DKIM.Enabled {
		signer, err = dkim.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			journal.Close()
			database.Close()
			return nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
	}

	box := secret.NewBox(cfg.Secrets.Key)
	if !box.Enabled() {
		logger.Warn("secrets.key is not set, profile passwords are stored in plain text")
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Campaigns:  repository.NewCampaignRepository(database.DB),
		Lists:      repository.NewListRepository(database.DB),
		Deliveries: repository.NewDeliveryRepository(database.DB),
		Profiles:   repository.NewProfileRepository(database.DB, box),
		Settings: repository.NewSettingsRepository(database.DB, models.PacingSettings{
			DelayMs:        int(cfg.Dispatch.DefaultDelay.Milliseconds()),
			MaxSendsPerDay: cfg.Dispatch.DefaultMaxPerDay,
		}),
		History: journal,
		Signer:  signer,
		db:      database,
	}

	a.Quota = quota.NewTracker(a.Deliveries, cfg.Dispatch.Location())
	a.Dialer = smtp.NewDialer(smtp.Options{
		Hostname:           cfg.Dispatch.Hostname,
		Timeout:            cfg.Dispatch.Timeout,
		InsecureSkipVerify: cfg.Dispatch.InsecureSkipVerify,
		Signer:             signer,
		Logger:             logger.With("component", "smtp_client"),
	})
	a.Engine = dispatch.NewEngine(dispatch.Deps{
		Campaigns:  a.Campaigns,
		Lists:      a.Lists,
		Deliveries: a.Deliveries,
		Profiles:   a.Profiles,
		Settings:   a.Settings,
		Quota:      a.Quota,
		Dialer:     a.Dialer,
	}, dispatch.Options{
		QuotaScope: cfg.Dispatch.QuotaScope,
		Logger:     logger,
	})
	a.Runner = runner.New(a.Engine, a.Campaigns, a.Deliveries, a.History, logger)

	a.Validator, err = validation.New()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return a, nil
}

// Close releases the database and the run history
func (a *App) Close() error {
	var firstErr error
	if err := a.History.Close(); err != nil {
		firstErr = err
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Serve runs the API and metrics servers until ctx is canceled or a signal
// arrives, then stops the running pass and shuts everything down.
func (a *App) Serve(ctx context.Context, version string) error {
	cfg := a.Config

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, a.Logger)
	}

	apiServer := api.NewServer(api.Deps{
		Runner:     a.Runner,
		Campaigns:  a.Campaigns,
		Lists:      a.Lists,
		Deliveries: a.Deliveries,
		Profiles:   a.Profiles,
		Settings:   a.Settings,
		History:    a.History,
		Quota:      a.Quota,
		Dialer:     a.Dialer,
		Signer:     a.Signer,
		Validator:  a.Validator,
	}, cfg, version, a.Logger)

	a.Logger.Info("starting sendry-campaign",
		"version", version,
		"api_addr", cfg.Server.ListenAddr,
		"quota_scope", cfg.Dispatch.QuotaScope,
		"timezone", cfg.Dispatch.Timezone,
		"metrics", cfg.Metrics.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		a.Logger.Error("server error", "error", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// API first: no run may start after the pass is halted
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("api server shutdown error", "error", err)
	}
	if err := a.Runner.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("dispatch shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.Logger.Info("shutdown complete")
	return serveErr
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: ParseLogLevel(cfg.Level),
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// ParseLogLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
