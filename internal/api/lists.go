package api

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/sendry-campaign/internal/email"
	"github.com/foxzi/sendry-campaign/internal/models"
)

// ListCreateRequest is the request body for POST /api/v1/lists
type ListCreateRequest struct {
	Name   string   `json:"name" validate:"required,max=200"`
	Emails []string `json:"emails,omitempty"`
	// Text holds addresses separated by commas or newlines
	Text string `json:"text,omitempty"`
}

// ListUpdateRequest is the request body for PUT /api/v1/lists/{id}
type ListUpdateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ListItemUpdateRequest is the request body for PUT /api/v1/lists/{id}/items/{itemID}
type ListItemUpdateRequest struct {
	Email string `json:"email" validate:"required,max=320"`
}

// ListItemsRequest is the JSON body for POST /api/v1/lists/{id}/items
type ListItemsRequest struct {
	Emails []string `json:"emails,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// ImportResponse reports the outcome of an address import
type ImportResponse struct {
	models.ImportResult
	InvalidAddresses []string `json:"invalid_addresses,omitempty"`
}

// ListResponse is a list with the result of its initial import
type ListResponse struct {
	*models.RecipientList
	Import *ImportResponse `json:"import,omitempty"`
}

func parseAddresses(emails []string, text string) email.Parsed {
	if len(emails) > 0 {
		text = strings.Join(emails, "\n") + "\n" + text
	}
	return email.ParseText(text)
}

// handleListsList handles GET /api/v1/lists
func (s *Server) handleListsList(w http.ResponseWriter, r *http.Request) {
	lists, err := s.lists.List(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "Failed to list recipient lists")
		return
	}
	sendJSON(w, http.StatusOK, lists)
}

// handleListsCreate handles POST /api/v1/lists
func (s *Server) handleListsCreate(w http.ResponseWriter, r *http.Request) {
	var req ListCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	list := &models.RecipientList{Name: strings.TrimSpace(req.Name)}
	if err := s.lists.Create(r.Context(), list); err != nil {
		s.sendServiceError(w, err, "Failed to create recipient list")
		return
	}

	resp := ListResponse{RecipientList: list}
	parsed := parseAddresses(req.Emails, req.Text)
	if len(parsed.Addresses) > 0 || len(parsed.Invalid) > 0 {
		imported, err := s.importAddresses(r, list.ID, parsed)
		if err != nil {
			s.sendServiceError(w, err, "Failed to import addresses")
			return
		}
		resp.Import = imported
		list.TotalCount = imported.Added
	}

	s.logger.Info("recipient list created", "list_id", list.ID, "name", list.Name, "addresses", list.TotalCount)
	sendJSON(w, http.StatusCreated, resp)
}

// handleListsGet handles GET /api/v1/lists/{id}
func (s *Server) handleListsGet(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadList(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, list)
}

// handleListsUpdate handles PUT /api/v1/lists/{id}
func (s *Server) handleListsUpdate(w http.ResponseWriter, r *http.Request) {
	var req ListUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	id := chi.URLParam(r, "id")
	found, err := s.lists.Rename(r.Context(), id, name)
	if err != nil {
		s.sendServiceError(w, err, "Failed to rename recipient list")
		return
	}
	if !found {
		sendError(w, http.StatusNotFound, "Recipient list not found")
		return
	}

	list, ok := s.loadList(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, list)
}

// handleListsDelete handles DELETE /api/v1/lists/{id}
func (s *Server) handleListsDelete(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadList(w, r)
	if !ok {
		return
	}
	if err := s.lists.Delete(r.Context(), list.ID); err != nil {
		s.sendServiceError(w, err, "Failed to delete recipient list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListItems handles GET /api/v1/lists/{id}/items
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadList(w, r)
	if !ok {
		return
	}
	items, err := s.lists.Items(r.Context(), list.ID)
	if err != nil {
		s.sendServiceError(w, err, "Failed to list addresses")
		return
	}
	sendJSON(w, http.StatusOK, items)
}

// handleListItemsAdd handles POST /api/v1/lists/{id}/items.
// The body is JSON, or CSV when sent as text/csv.
func (s *Server) handleListItemsAdd(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadList(w, r)
	if !ok {
		return
	}

	var parsed email.Parsed
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		p, err := email.ParseCSV(r.Body)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		parsed = p
	} else {
		var req ListItemsRequest
		if !s.decode(w, r, &req) {
			return
		}
		parsed = parseAddresses(req.Emails, req.Text)
	}

	if len(parsed.Addresses) == 0 && len(parsed.Invalid) == 0 {
		sendError(w, http.StatusBadRequest, "No addresses provided")
		return
	}

	imported, err := s.importAddresses(r, list.ID, parsed)
	if err != nil {
		s.sendServiceError(w, err, "Failed to import addresses")
		return
	}
	s.logger.Info("addresses imported",
		"list_id", list.ID,
		"added", imported.Added,
		"skipped", imported.Skipped,
		"invalid", imported.Invalid,
	)
	sendJSON(w, http.StatusOK, imported)
}

// handleListItemsRemove handles DELETE /api/v1/lists/{id}/items?email=
func (s *Server) handleListItemsRemove(w http.ResponseWriter, r *http.Request) {
	list, ok := s.loadList(w, r)
	if !ok {
		return
	}
	addr := email.Normalize(r.URL.Query().Get("email"))
	if addr == "" {
		sendError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := s.lists.RemoveItem(r.Context(), list.ID, addr); err != nil {
		s.sendServiceError(w, err, "Failed to remove address")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListItemUpdate handles PUT /api/v1/lists/{id}/items/{itemID}.
// Campaigns already started keep the address they were seeded with.
func (s *Server) handleListItemUpdate(w http.ResponseWriter, r *http.Request) {
	var req ListItemUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	addr := email.Normalize(req.Email)
	if !email.Valid(addr) {
		sendError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	item, err := s.lists.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), addr)
	if err != nil {
		s.sendServiceError(w, err, "Failed to update address")
		return
	}
	if item == nil {
		sendError(w, http.StatusNotFound, "Address not found on list")
		return
	}
	sendJSON(w, http.StatusOK, item)
}

func (s *Server) importAddresses(r *http.Request, listID string, parsed email.Parsed) (*ImportResponse, error) {
	resp := &ImportResponse{InvalidAddresses: parsed.Invalid}
	if len(parsed.Addresses) > 0 {
		res, err := s.lists.AddItems(r.Context(), listID, parsed.Addresses)
		if err != nil {
			return nil, err
		}
		resp.ImportResult = *res
	}
	resp.Invalid = len(parsed.Invalid)
	return resp, nil
}

func (s *Server) loadList(w http.ResponseWriter, r *http.Request) (*models.RecipientList, bool) {
	list, err := s.lists.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to load recipient list")
		return nil, false
	}
	if list == nil {
		sendError(w, http.StatusNotFound, "Recipient list not found")
		return nil, false
	}
	return list, true
}
