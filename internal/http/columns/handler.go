package columns

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/http/respond"
	"github.com/MrJamesThe3rd/tally/internal/importer"
)

type Handler struct {
	importSvc *importer.Service
}

func NewHandler(importSvc *importer.Service) *Handler {
	return &Handler{importSvc: importSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/detect", h.detect)
	r.Post("/reassign", h.reassign)
}

type detectRequest struct {
	Headers  []string `json:"headers"`
	Profile  string   `json:"profile"`
	SourceID int64    `json:"source_id"`
}

type mappingResponse struct {
	Mapping *columns.Mapping `json:"mapping"`
	// Missing lists why the mapping cannot be imported yet, empty when it can.
	Missing string `json:"missing,omitempty"`
}

func toMappingResponse(m *columns.Mapping, width int) mappingResponse {
	resp := mappingResponse{Mapping: m}
	if err := m.Validate(width); err != nil {
		resp.Missing = err.Error()
	}

	return resp
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	if len(req.Headers) == 0 {
		http.Error(w, "headers are required", http.StatusBadRequest)
		return
	}

	m, err := h.importSvc.DetectColumns(req.Headers, req.Profile, req.SourceID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toMappingResponse(m, len(req.Headers)))
}

type reassignRequest struct {
	Headers []string         `json:"headers"`
	Mapping *columns.Mapping `json:"mapping"`
	Column  int              `json:"column"`
	// Role is the column's new role. Empty clears the column.
	Role columns.Role `json:"role"`
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	if req.Column < 0 || req.Column >= len(req.Headers) {
		http.Error(w, "column is out of range", http.StatusBadRequest)
		return
	}

	m := req.Mapping
	if m == nil {
		m = columns.NewMapping()
	}

	switch {
	case req.Role == "":
		m.Unassign(req.Column)
	case req.Role.Valid():
		m.Reassign(req.Column, req.Role)
	default:
		http.Error(w, "unknown role "+string(req.Role), http.StatusBadRequest)
		return
	}

	respond.JSON(w, http.StatusOK, toMappingResponse(m, len(req.Headers)))
}
