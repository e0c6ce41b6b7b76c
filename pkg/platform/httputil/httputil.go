// Package httputil centralizes JSON response and request helpers so handlers
// stay thin and error bodies stay uniform across the API.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"deployassist/pkg/platform/sentinel"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates an error into a JSON error response. Sentinel errors
// map to their HTTP status; everything else is an internal error whose detail
// is deliberately not echoed back to the caller.
func WriteError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	body := errorBody{Error: code}
	if status != http.StatusInternalServerError {
		body.Description = err.Error()
	}
	WriteJSON(w, status, body)
}

// WriteBadRequest reports a request-level validation failure.
func WriteBadRequest(w http.ResponseWriter, description string) {
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Description: description})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, sentinel.ErrReviewProtected):
		return http.StatusConflict, "review_protected"
	case errors.Is(err, sentinel.ErrSourceUnavailable):
		return http.StatusBadGateway, "source_unavailable"
	case errors.Is(err, sentinel.ErrMalformedRecord):
		return http.StatusUnprocessableEntity, "malformed_record"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Decode parses a JSON request body into T, reporting a bad request on failure.
// The bool result tells the handler whether to continue.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if logger != nil {
			logger.DebugContext(r.Context(), "request body decode failed", "error", err)
		}
		WriteBadRequest(w, "invalid request body")
		return v, false
	}
	return v, true
}
