package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/models"
)

// ProfileRequest is the request body for creating or updating a profile.
// An empty password on update keeps the stored one.
type ProfileRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Host       string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port       int    `json:"port" validate:"required,min=1,max=65535"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Encryption string `json:"encryption,omitempty" validate:"encryption"`
}

func (req *ProfileRequest) apply(p *models.Profile) {
	p.Name = req.Name
	p.Host = req.Host
	p.Port = req.Port
	p.Username = req.Username
	p.Password = req.Password
	p.Encryption = req.Encryption
	if p.Encryption == "" {
		p.Encryption = models.EncryptionNone
	}
}

// ProfileTestResponse is the response for POST /api/v1/profiles/{id}/test
type ProfileTestResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// handleProfilesList handles GET /api/v1/profiles
func (s *Server) handleProfilesList(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Failed to list profiles")
		return
	}
	sendJSON(w, http.StatusOK, profiles)
}

// handleProfilesCreate handles POST /api/v1/profiles
func (s *Server) handleProfilesCreate(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !s.decode(w, r, &req) {
		return
	}

	p := &models.Profile{}
	req.apply(p)
	if err := s.profiles.Create(r.Context(), p); err != nil {
		s.sendServiceError(w, err, "Failed to create profile")
		return
	}

	s.logger.Info("profile created", "profile_id", p.ID, "name", p.Name, "host", p.Host)
	sendJSON(w, http.StatusCreated, p)
}

// handleProfilesGet handles GET /api/v1/profiles/{id}
func (s *Server) handleProfilesGet(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, p)
}

// handleProfilesUpdate handles PUT /api/v1/profiles/{id}
func (s *Server) handleProfilesUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}

	var req ProfileRequest
	if !s.decode(w, r, &req) {
		return
	}

	req.apply(p)
	if err := s.profiles.Update(r.Context(), p); err != nil {
		s.sendServiceError(w, err, "Failed to update profile")
		return
	}
	sendJSON(w, http.StatusOK, p)
}

// handleProfilesDelete handles DELETE /api/v1/profiles/{id}
func (s *Server) handleProfilesDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	if err := s.profiles.Delete(r.Context(), p.ID); err != nil {
		s.sendServiceError(w, err, "Failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProfilesTest handles POST /api/v1/profiles/{id}/test.
// It connects, authenticates and disconnects without sending.
func (s *Server) handleProfilesTest(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	start := time.Now()
	err := s.testProfile(ctx, p)
	resp := ProfileTestResponse{OK: err == nil, Duration: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("profile test failed", "profile_id", p.ID, "host", p.Host, "error", err)
		sendJSON(w, http.StatusBadGateway, resp)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) testProfile(ctx context.Context, p *models.Profile) error {
	conn, err := s.dialer.Dial(ctx, p)
	if err != nil {
		metrics.IncTransportErrors("dial")
		return err
	}
	defer conn.Close()

	if err := conn.Verify(ctx); err != nil {
		metrics.IncTransportErrors("verify")
		return err
	}
	return nil
}

func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	p, err := s.profiles.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to load profile")
		return nil, false
	}
	if p == nil {
		sendError(w, http.StatusNotFound, "Profile not found")
		return nil, false
	}
	return p, true
}
