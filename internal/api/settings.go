package api

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/sendry-campaign/internal/models"
)

var variableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// VariableRequest is the request body for PUT /api/v1/settings/variables/{name}
type VariableRequest struct {
	Value string `json:"value"`
}

// handlePacingGet handles GET /api/v1/settings/pacing
func (s *Server) handlePacingGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.settings.Pacing(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Failed to load pacing settings")
		return
	}
	sendJSON(w, http.StatusOK, p)
}

// handlePacingUpdate handles PUT /api/v1/settings/pacing.
// New values apply from the next start.
func (s *Server) handlePacingUpdate(w http.ResponseWriter, r *http.Request) {
	var p models.PacingSettings
	if !s.decode(w, r, &p) {
		return
	}
	if err := s.settings.SetPacing(r.Context(), p); err != nil {
		s.sendServiceError(w, err, "Failed to save pacing settings")
		return
	}
	s.logger.Info("pacing updated", "delay_ms", p.DelayMs, "max_sends_per_day", p.MaxSendsPerDay)
	sendJSON(w, http.StatusOK, p)
}

// handleVariablesList handles GET /api/v1/settings/variables
func (s *Server) handleVariablesList(w http.ResponseWriter, r *http.Request) {
	vars, err := s.settings.Variables(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Failed to load variables")
		return
	}
	sendJSON(w, http.StatusOK, vars)
}

// handleVariablesSet handles PUT /api/v1/settings/variables/{name}
func (s *Server) handleVariablesSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !variableName.MatchString(name) || name == "email" || name == "recipient_email" {
		sendError(w, http.StatusBadRequest, "invalid variable name")
		return
	}

	var req VariableRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.settings.SetVariable(r.Context(), name, req.Value); err != nil {
		s.sendServiceError(w, err, "Failed to save variable")
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{name: req.Value})
}

// handleVariablesDelete handles DELETE /api/v1/settings/variables/{name}
func (s *Server) handleVariablesDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteVariable(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.sendServiceError(w, err, "Failed to delete variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
