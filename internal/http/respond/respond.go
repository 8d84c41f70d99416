// Package respond writes JSON bodies and maps domain errors to status codes for the API handlers.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/profile"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, transaction.ErrInvalidBatch),
		errors.Is(err, columns.ErrUnknownRole),
		errors.Is(err, columns.ErrMissingRole),
		errors.Is(err, columns.ErrColumnOutOfRange),
		errors.Is(err, profile.ErrInvalidProfile):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrInvalidPattern), errors.Is(err, rules.ErrInvalidRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transaction.ErrNotFound), errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with its mapped status. Server errors are logged and their detail withheld.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", status)

		return
	}

	http.Error(w, err.Error(), status)
}

type partialBody struct {
	Error   string `json:"error"`
	Partial any    `json:"partial"`
}

// Partial writes err's status together with the work done before the failure.
func Partial(w http.ResponseWriter, r *http.Request, err error, done any) {
	status := Status(err)

	slog.Warn("request interrupted", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	JSON(w, status, partialBody{Error: err.Error(), Partial: done})
}

// Decode reads a JSON request body into v, writing a 400 on failure.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}

	return true
}
