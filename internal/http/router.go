package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/tally/internal/http/auth"
	"github.com/MrJamesThe3rd/tally/internal/http/columns"
	"github.com/MrJamesThe3rd/tally/internal/http/importcsv"
	"github.com/MrJamesThe3rd/tally/internal/http/rules"
	"github.com/MrJamesThe3rd/tally/internal/http/tags"
	"github.com/MrJamesThe3rd/tally/internal/http/transaction"
)

type Options struct {
	AllowedOrigins []string
	// JWTSecret enables bearer authentication on /api/v1 when set.
	JWTSecret []byte
	Issuer    string
	Timeout   time.Duration
}

func New(
	opts Options,
	transactionsV1 *transaction.Handler,
	importV1 *importcsv.Handler,
	columnsV1 *columns.Handler,
	rulesV1 *rules.Handler,
	tagsV1 *tags.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.Timeout > 0 {
		router.Use(middleware.Timeout(opts.Timeout))
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret, opts.Issuer))

		r.Route("/transactions", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			transactionsV1.Routes(r)
		})

		r.Route("/import", importV1.Routes)

		r.Route("/columns", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			columnsV1.Routes(r)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			rulesV1.Routes(r)
		})

		r.Route("/tags", tagsV1.Routes)
	})

	return router
}
