package importcsv

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/http/respond"
	"github.com/MrJamesThe3rd/tally/internal/importer"
	"github.com/MrJamesThe3rd/tally/internal/profile"
)

const defaultMaxUpload = 10 << 20

type Handler struct {
	importSvc *importer.Service
	maxUpload int64
}

// NewHandler serves statement imports. maxUpload bounds multipart bodies; zero means 10 MiB.
func NewHandler(importSvc *importer.Service, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	return &Handler{importSvc: importSvc, maxUpload: maxUpload}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importFile)
	r.Post("/rows", h.importRows)
	r.Post("/preview", h.preview)
	r.Get("/profiles", h.profiles)
}

type batchRequest struct {
	SourceID   int64            `json:"source_id"`
	Profile    string           `json:"profile"`
	Headers    []string         `json:"headers"`
	Rows       [][]string       `json:"rows"`
	Mapping    *columns.Mapping `json:"mapping"`
	ApplyRules *bool            `json:"apply_rules"`
}

func (b batchRequest) toRequest() importer.Request {
	return importer.Request{
		SourceID:   b.SourceID,
		Profile:    b.Profile,
		Headers:    b.Headers,
		Rows:       b.Rows,
		Mapping:    b.Mapping,
		ApplyRules: b.ApplyRules,
	}
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	f, err := fileFromForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	f.Reader = file
	f.Name = header.Filename

	res, err := h.importSvc.ImportFile(r.Context(), f)

	switch {
	case err != nil && res != nil:
		respond.Partial(w, r, err, res)
		return
	case err != nil:
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, res)
}

func fileFromForm(r *http.Request) (importer.File, error) {
	var f importer.File

	sourceID, err := strconv.ParseInt(r.FormValue("source_id"), 10, 64)
	if err != nil || sourceID <= 0 {
		return f, errors.New("source_id field must be a positive integer")
	}

	f.SourceID = sourceID
	f.Profile = r.FormValue("profile")

	if s := r.FormValue("apply_rules"); s != "" {
		apply, err := strconv.ParseBool(s)
		if err != nil {
			return f, errors.New("apply_rules field must be a boolean")
		}

		f.ApplyRules = &apply
	}

	if s := r.FormValue("mapping"); s != "" {
		var m columns.Mapping
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return f, fmt.Errorf("mapping field: %w", err)
		}

		f.Mapping = &m
	}

	return f, nil
}

func (h *Handler) importRows(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	out, err := h.importSvc.Import(r.Context(), req.toRequest())

	switch {
	case err != nil && out != nil:
		respond.Partial(w, r, err, out)
		return
	case err != nil:
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, out)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	p, err := h.importSvc.Preview(r.Context(), req.toRequest())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, p)
}

func (h *Handler) profiles(w http.ResponseWriter, r *http.Request) {
	list := h.importSvc.Profiles()
	if list == nil {
		list = []profile.Profile{}
	}

	respond.JSON(w, http.StatusOK, list)
}
