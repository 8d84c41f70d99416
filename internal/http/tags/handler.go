package tags

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/tally/internal/http/respond"
	"github.com/MrJamesThe3rd/tally/internal/tags"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

type Handler struct {
	txSvc *transaction.Service
}

func NewHandler(txSvc *transaction.Service) *Handler {
	return &Handler{txSvc: txSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/suggest", h.suggest)
	r.Post("/normalize", h.normalize)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.txSvc.Tags(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, all)
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	limit := tags.DefaultSuggestLimit

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		limit = n
	}

	got, err := h.txSvc.SuggestTags(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if got == nil {
		got = []string{}
	}

	respond.JSON(w, http.StatusOK, got)
}

type normalizeRequest struct {
	Tags []string `json:"tags"`
}

type normalizeResponse struct {
	Tags       []string `json:"tags"`
	Serialized string   `json:"serialized"`
}

func (h *Handler) normalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	respond.JSON(w, http.StatusOK, normalizeResponse{
		Tags:       tags.Parse(req.Tags...),
		Serialized: tags.Serialize(req.Tags...),
	})
}
