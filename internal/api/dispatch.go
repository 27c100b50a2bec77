package api

import (
	"net/http"
	"time"

	"github.com/foxzi/sendry-campaign/internal/config"
	"github.com/foxzi/sendry-campaign/internal/quota"
	"github.com/foxzi/sendry-campaign/internal/runner"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Dispatch string `json:"dispatch"`
}

// StopResponse is the response for POST /api/v1/dispatch/stop
type StopResponse struct {
	Stopping bool          `json:"stopping"`
	Status   runner.Status `json:"status"`
}

// QuotaResponse is the response for GET /api/v1/quota
type QuotaResponse struct {
	Scope      string `json:"scope"`
	CampaignID string `json:"campaign_id,omitempty"`
	Day        string `json:"day"`
	SentToday  int    `json:"sent_today"`
	Limit      int    `json:"limit"`
	// Remaining is -1 when no daily limit applies
	Remaining int `json:"remaining"`
}

// DKIMResponse is the response for GET /api/v1/dkim
type DKIMResponse struct {
	Domain    string `json:"domain"`
	Selector  string `json:"selector"`
	DNSName   string `json:"dns_name"`
	DNSRecord string `json:"dns_record"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dispatch := "idle"
	if s.runner != nil && s.runner.Status().Active {
		dispatch = "running"
	}
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Dispatch: dispatch,
	})
}

// handleDispatchStatus handles GET /api/v1/dispatch/status
func (s *Server) handleDispatchStatus(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.runner.Status())
}

// handleDispatchStop handles POST /api/v1/dispatch/stop.
// The pass halts after the send in flight.
func (s *Server) handleDispatchStop(w http.ResponseWriter, r *http.Request) {
	stopping := s.runner.Stop()
	sendJSON(w, http.StatusOK, StopResponse{Stopping: stopping, Status: s.runner.Status()})
}

// handleDeliveriesReset handles POST /api/v1/deliveries/reset
func (s *Server) handleDeliveriesReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.runner.ResetAll(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Failed to reset deliveries")
		return
	}
	sendJSON(w, http.StatusOK, ResetResponse{Reset: n})
}

// handleQuota handles GET /api/v1/quota
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	scope := quota.Pool()
	campaignID := r.URL.Query().Get("campaign_id")
	if s.quotaScope == config.QuotaScopeCampaign {
		if campaignID == "" {
			sendError(w, http.StatusBadRequest, "campaign_id is required with campaign quota scope")
			return
		}
		scope = quota.Campaign(campaignID)
	}

	pacing, err := s.settings.Pacing(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Failed to load pacing settings")
		return
	}
	remaining, sent, err := s.quota.Remaining(r.Context(), scope, pacing.MaxSendsPerDay)
	if err != nil {
		s.sendServiceError(w, err, "Failed to count sends")
		return
	}

	start, _ := s.quota.Today()
	sendJSON(w, http.StatusOK, QuotaResponse{
		Scope:      scope.String(),
		CampaignID: scope.CampaignID(),
		Day:        start.Format(time.DateOnly),
		SentToday:  sent,
		Limit:      pacing.MaxSendsPerDay,
		Remaining:  remaining,
	})
}

// handleDKIM handles GET /api/v1/dkim
func (s *Server) handleDKIM(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		sendError(w, http.StatusNotFound, "DKIM signing is not enabled")
		return
	}
	record, err := s.signer.DNSRecord()
	if err != nil {
		s.sendServiceError(w, err, "Failed to build DKIM record")
		return
	}
	sendJSON(w, http.StatusOK, DKIMResponse{
		Domain:    s.signer.Domain(),
		Selector:  s.signer.Selector(),
		DNSName:   s.signer.DNSName(),
		DNSRecord: record,
	})
}
