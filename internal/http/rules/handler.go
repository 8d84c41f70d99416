package rules

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/tally/internal/http/respond"
	"github.com/MrJamesThe3rd/tally/internal/rules"
)

type Handler struct {
	svc *rules.Service
}

func NewHandler(svc *rules.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/test", h.test)
	r.Post("/suggest", h.suggest)

	r.Route("/{kind}", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/order", h.reorder)
		r.Patch("/{id}/active", h.setActive)
	})
}

type ruleRequest struct {
	Field     rules.Field     `json:"field"`
	Pattern   string          `json:"pattern"`
	MatchType rules.MatchType `json:"match_type"`
	TargetID  int64           `json:"target_id"`
	Priority  int             `json:"priority"`
	Active    *bool           `json:"active"`
}

func (req ruleRequest) toRule(kind rules.Kind) rules.Rule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return rules.Rule{
		Kind:      kind,
		Field:     req.Field,
		Pattern:   req.Pattern,
		MatchType: req.MatchType,
		TargetID:  req.TargetID,
		Priority:  req.Priority,
		Active:    active,
	}
}

type ruleResponse struct {
	ID        int64           `json:"id"`
	Kind      rules.Kind      `json:"kind"`
	Field     rules.Field     `json:"field"`
	Pattern   string          `json:"pattern"`
	MatchType rules.MatchType `json:"match_type"`
	TargetID  int64           `json:"target_id"`
	Priority  int             `json:"priority"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

func toResponse(r rules.Rule) ruleResponse {
	return ruleResponse{
		ID:        r.ID,
		Kind:      r.Kind,
		Field:     r.Field,
		Pattern:   r.Pattern,
		MatchType: r.MatchType,
		TargetID:  r.TargetID,
		Priority:  r.Priority,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

type candidateRequest struct {
	Description    string `json:"description"`
	SourceCategory string `json:"source_category"`
	Source         string `json:"source"`
}

func (c candidateRequest) toCandidate() rules.Candidate {
	return rules.Candidate{Description: c.Description, SourceCategory: c.SourceCategory, Source: c.Source}
}

func kindParam(w http.ResponseWriter, r *http.Request) (rules.Kind, bool) {
	kind := rules.Kind(chi.URLParam(r, "kind"))

	switch kind {
	case rules.KindUnit, rules.KindCategory:
		return kind, true
	}

	http.Error(w, "kind must be unit or category", http.StatusNotFound)

	return "", false
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	list, err := h.svc.List(r.Context(), kind)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]ruleResponse, len(list))
	for i, rule := range list {
		resp[i] = toResponse(rule)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	rule := req.toRule(kind)
	if err := h.svc.Create(r.Context(), &rule); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(rule))
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req activeRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	if err := h.svc.SetActive(r.Context(), kind, id, req.Active); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	if err := h.svc.Reorder(r.Context(), kind, req.IDs); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type testRequest struct {
	Rule      ruleRequest      `json:"rule"`
	Candidate candidateRequest `json:"candidate"`
}

type testResponse struct {
	Matched bool `json:"matched"`
}

// test evaluates an unsaved rule, so patterns can be tried before they are stored.
func (h *Handler) test(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	rule := req.Rule.toRule(rules.KindCategory)

	// The target plays no part in matching.
	if rule.TargetID <= 0 {
		rule.TargetID = 1
	}

	matched, err := h.svc.Test(rule, req.Candidate.toCandidate())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, testResponse{Matched: matched})
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	sg, err := h.svc.Suggest(r.Context(), req.toCandidate())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, sg)
}
