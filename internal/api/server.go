// Package api serves the campaign HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/dispatch"
	"github.com/foxzi/sendry-campaign/internal/dkim"
	"github.com/foxzi/sendry-campaign/internal/history"
	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/quota"
	"github.com/foxzi/sendry-campaign/internal/repository"
	"github.com/foxzi/sendry-campaign/internal/runner"
	"github.com/foxzi/sendry-campaign/internal/validation"
)

// Deps holds everything the handlers work with
type Deps struct {
	Runner     *runner.Controller
	Campaigns  *repository.CampaignRepository
	Lists      *repository.ListRepository
	Deliveries *repository.DeliveryRepository
	Profiles   *repository.ProfileRepository
	Settings   *repository.SettingsRepository
	History    *history.Store
	Quota      *quota.Tracker
	Dialer     dispatch.Dialer
	Signer     *dkim.Signer
	Validator  *validation.Validator
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	runner     *runner.Controller
	campaigns  *repository.CampaignRepository
	lists      *repository.ListRepository
	deliveries *repository.DeliveryRepository
	profiles   *repository.ProfileRepository
	settings   *repository.SettingsRepository
	history    *history.Store
	quota      *quota.Tracker
	dialer     dispatch.Dialer
	signer     *dkim.Signer
	validator  *validation.Validator

	config     *config.ServerConfig
	quotaScope string
	version    string
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.Config, version string, logger *slog.Logger) *Server {
	if deps.Validator == nil {
		deps.Validator = validation.MustNew()
	}
	s := &Server{
		router:     chi.NewRouter(),
		runner:     deps.Runner,
		campaigns:  deps.Campaigns,
		lists:      deps.Lists,
		deliveries: deps.Deliveries,
		profiles:   deps.Profiles,
		settings:   deps.Settings,
		history:    deps.History,
		quota:      deps.Quota,
		dialer:     deps.Dialer,
		signer:     deps.Signer,
		validator:  deps.Validator,
		config:     &cfg.Server,
		quotaScope: cfg.Dispatch.QuotaScope,
		version:    version,
		logger:     logger.With("component", "api"),
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/lists", func(r chi.Router) {
			r.Get("/", s.handleListsList)
			r.Post("/", s.handleListsCreate)
			r.Get("/{id}", s.handleListsGet)
			r.Put("/{id}", s.handleListsUpdate)
			r.Delete("/{id}", s.handleListsDelete)
			r.Get("/{id}/items", s.handleListItems)
			r.Post("/{id}/items", s.handleListItemsAdd)
			r.Delete("/{id}/items", s.handleListItemsRemove)
			r.Put("/{id}/items/{itemID}", s.handleListItemUpdate)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleProfilesList)
			r.Post("/", s.handleProfilesCreate)
			r.Get("/{id}", s.handleProfilesGet)
			r.Put("/{id}", s.handleProfilesUpdate)
			r.Delete("/{id}", s.handleProfilesDelete)
			r.Post("/{id}/test", s.handleProfilesTest)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleCampaignsList)
			r.Post("/", s.handleCampaignsCreate)
			r.Get("/{id}", s.handleCampaignsGet)
			r.Put("/{id}", s.handleCampaignsUpdate)
			r.Delete("/{id}", s.handleCampaignsDelete)
			r.Get("/{id}/stats", s.handleCampaignStats)
			r.Get("/{id}/deliveries", s.handleCampaignDeliveries)
			r.Get("/{id}/runs", s.handleCampaignRuns)
			r.Post("/{id}/start", s.handleCampaignStart)
			r.Post("/{id}/reset", s.handleCampaignReset)
			r.Post("/{id}/reseed", s.handleCampaignReseed)
		})

		r.Get("/dispatch/status", s.handleDispatchStatus)
		r.Post("/dispatch/stop", s.handleDispatchStop)
		r.Get("/runs", s.handleRuns)
		r.Post("/deliveries/reset", s.handleDeliveriesReset)
		r.Get("/quota", s.handleQuota)
		r.Get("/dkim", s.handleDKIM)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/pacing", s.handlePacingGet)
			r.Put("/pacing", s.handlePacingUpdate)
			r.Get("/variables", s.handleVariablesList)
			r.Put("/variables/{name}", s.handleVariablesSet)
			r.Delete("/variables/{name}", s.handleVariablesDelete)
		})
	})
}

// Handler returns the router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
