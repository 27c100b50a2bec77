package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/sendry-campaign/internal/email"
	"github.com/foxzi/sendry-campaign/internal/history"
	"github.com/foxzi/sendry-campaign/internal/models"
)

// CampaignRequest is the request body for creating or updating a campaign
type CampaignRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Subject   string `json:"subject" validate:"required,max=998"`
	Template  string `json:"template" validate:"required"`
	FromEmail string `json:"from_email,omitempty" validate:"omitempty,email"`
	FromName  string `json:"from_name,omitempty" validate:"max=200"`
	ListID    string `json:"list_id" validate:"required"`
	ProfileID string `json:"profile_id" validate:"required"`
}

func (req *CampaignRequest) apply(c *models.Campaign) {
	c.Name = strings.TrimSpace(req.Name)
	c.Subject = req.Subject
	c.Template = req.Template
	c.FromEmail = email.Normalize(req.FromEmail)
	c.FromName = req.FromName
	c.ListID = req.ListID
	c.ProfileID = req.ProfileID
}

// StatsResponse is the response for GET /api/v1/campaigns/{id}/stats
type StatsResponse struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	models.DeliveryStats
	Running bool            `json:"running"`
	LastRun *history.Record `json:"last_run,omitempty"`
}

// ResetResponse reports how many deliveries went back to pending
type ResetResponse struct {
	Reset int64 `json:"reset"`
}

// ReseedResponse reports how many deliveries were added
type ReseedResponse struct {
	Added int `json:"added"`
}

// handleCampaignsList handles GET /api/v1/campaigns
func (s *Server) handleCampaignsList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.CampaignDraft, models.CampaignInProgress, models.CampaignCompleted:
	default:
		sendError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	campaigns, err := s.campaigns.List(r.Context(), status)
	if err != nil {
		s.sendServiceError(w, err, "Failed to list campaigns")
		return
	}
	sendJSON(w, http.StatusOK, campaigns)
}

// handleCampaignsCreate handles POST /api/v1/campaigns
func (s *Server) handleCampaignsCreate(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.checkReferences(w, r, &req) {
		return
	}

	c := &models.Campaign{}
	req.apply(c)
	if err := s.campaigns.Create(r.Context(), c); err != nil {
		s.sendServiceError(w, err, "Failed to create campaign")
		return
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name, "list_id", c.ListID)
	sendJSON(w, http.StatusCreated, c)
}

// handleCampaignsGet handles GET /api/v1/campaigns/{id}
func (s *Server) handleCampaignsGet(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// handleCampaignsUpdate handles PUT /api/v1/campaigns/{id}
func (s *Server) handleCampaignsUpdate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}
	if s.isRunning(c.ID) {
		sendError(w, http.StatusConflict, "Campaign is running")
		return
	}

	var req CampaignRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.checkReferences(w, r, &req) {
		return
	}

	req.apply(c)
	if err := s.campaigns.Update(r.Context(), c); err != nil {
		s.sendServiceError(w, err, "Failed to update campaign")
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// handleCampaignsDelete handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleCampaignsDelete(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}
	if s.isRunning(c.ID) {
		sendError(w, http.StatusConflict, "Campaign is running")
		return
	}
	if err := s.campaigns.Delete(r.Context(), c.ID); err != nil {
		s.sendServiceError(w, err, "Failed to delete campaign")
		return
	}
	s.logger.Info("campaign deleted", "campaign_id", c.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleCampaignStats handles GET /api/v1/campaigns/{id}/stats
func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	stats, err := s.deliveries.Stats(r.Context(), c.ID)
	if err != nil {
		s.sendServiceError(w, err, "Failed to load delivery stats")
		return
	}

	resp := StatsResponse{
		CampaignID:    c.ID,
		Status:        c.Status,
		DeliveryStats: *stats,
		Running:       s.isRunning(c.ID),
	}
	if s.history != nil {
		last, err := s.history.Last(r.Context(), c.ID)
		if err != nil {
			s.logger.Warn("failed to load last run", "campaign_id", c.ID, "error", err)
		}
		resp.LastRun = last
	}
	sendJSON(w, http.StatusOK, resp)
}

// handleCampaignDeliveries handles GET /api/v1/campaigns/{id}/deliveries
func (s *Server) handleCampaignDeliveries(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}

	filter := models.DeliveryFilter{Status: r.URL.Query().Get("status")}
	switch filter.Status {
	case "", models.DeliveryPending, models.DeliverySent, models.DeliveryFailed:
	default:
		sendError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	deliveries, err := s.deliveries.List(r.Context(), c.ID, filter)
	if err != nil {
		s.sendServiceError(w, err, "Failed to list deliveries")
		return
	}
	sendJSON(w, http.StatusOK, deliveries)
}

// handleCampaignRuns handles GET /api/v1/campaigns/{id}/runs
func (s *Server) handleCampaignRuns(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCampaign(w, r)
	if !ok {
		return
	}
	s.sendRuns(w, r, c.ID)
}

// handleRuns handles GET /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	s.sendRuns(w, r, "")
}

func (s *Server) sendRuns(w http.ResponseWriter, r *http.Request, campaignID string) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.history == nil {
		sendJSON(w, http.StatusOK, []history.Record{})
		return
	}
	runs, err := s.history.List(r.Context(), campaignID, limit)
	if err != nil {
		s.sendServiceError(w, err, "Failed to list runs")
		return
	}
	sendJSON(w, http.StatusOK, runs)
}

// handleCampaignStart handles POST /api/v1/campaigns/{id}/start
func (s *Server) handleCampaignStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.runner.Start(r.Context(), id); err != nil {
		s.sendServiceError(w, err, "Failed to start campaign")
		return
	}
	sendJSON(w, http.StatusAccepted, s.runner.Status())
}

// handleCampaignReset handles POST /api/v1/campaigns/{id}/reset
func (s *Server) handleCampaignReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.runner.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to reset campaign")
		return
	}
	sendJSON(w, http.StatusOK, ResetResponse{Reset: n})
}

// handleCampaignReseed handles POST /api/v1/campaigns/{id}/reseed
func (s *Server) handleCampaignReseed(w http.ResponseWriter, r *http.Request) {
	n, err := s.runner.Reseed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to reseed campaign")
		return
	}
	sendJSON(w, http.StatusOK, ReseedResponse{Added: n})
}

// checkReferences rejects campaigns pointing at a missing list or profile
func (s *Server) checkReferences(w http.ResponseWriter, r *http.Request, req *CampaignRequest) bool {
	list, err := s.lists.GetByID(r.Context(), req.ListID)
	if err != nil {
		s.sendServiceError(w, err, "Failed to load recipient list")
		return false
	}
	if list == nil {
		sendError(w, http.StatusUnprocessableEntity, "Recipient list not found")
		return false
	}

	profile, err := s.profiles.GetByID(r.Context(), req.ProfileID)
	if err != nil {
		s.sendServiceError(w, err, "Failed to load profile")
		return false
	}
	if profile == nil {
		sendError(w, http.StatusUnprocessableEntity, "Profile not found")
		return false
	}
	return true
}

func (s *Server) isRunning(campaignID string) bool {
	st := s.runner.Status()
	return st.Active && st.CampaignID == campaignID
}

func (s *Server) loadCampaign(w http.ResponseWriter, r *http.Request) (*models.Campaign, bool) {
	c, err := s.campaigns.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to load campaign")
		return nil, false
	}
	if c == nil {
		sendError(w, http.StatusNotFound, "Campaign not found")
		return nil, false
	}
	return c, true
}
