package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/foxzi/sendry-campaign/internal/dispatch"
	"github.com/foxzi/sendry-campaign/internal/metrics"
	"github.com/foxzi/sendry-campaign/internal/repository"
	"github.com/foxzi/sendry-campaign/internal/runner"
	"github.com/foxzi/sendry-campaign/internal/validation"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields validation.Errors `json:"fields,omitempty"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrAlreadyRunning),
		errors.Is(err, dispatch.ErrAlreadyCompleted),
		errors.Is(err, runner.ErrRunActive),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrConfiguration),
		errors.Is(err, dispatch.ErrEmptyList):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrTransportUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// sendServiceError replies with the status matching err. Internal errors are
// logged and hidden from the client.
func (s *Server) sendServiceError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, "error", err)
		metrics.IncAPIErrors("internal")
		sendError(w, status, msg)
		return
	}
	metrics.IncAPIErrors(strconv.Itoa(status))
	sendError(w, status, err.Error())
}

// decode reads a JSON body into v and validates it. It replies and returns
// false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return s.validate(w, v)
}

func (s *Server) validate(w http.ResponseWriter, v any) bool {
	err := s.validator.Struct(v)
	if err == nil {
		return true
	}
	var verr validation.Errors
	if errors.As(err, &verr) {
		metrics.IncAPIErrors("validation")
		sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: verr})
		return false
	}
	sendError(w, http.StatusBadRequest, err.Error())
	return false
}

// queryInt parses a non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}
