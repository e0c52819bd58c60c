// Package httputil holds the response envelope and error mapping shared by
// the module handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/carteira/internal/domain"
	"github.com/rs/zerolog"
)

// OwnerHeader carries the caller identity resolved by the upstream gateway
const OwnerHeader = "X-Owner-ID"

// ErrorBody is the JSON error payload
type ErrorBody struct {
	Details interface{} `json:"details,omitempty"`
	Error   string      `json:"error"`
	Code    string      `json:"code"`
}

// WriteJSON writes data as JSON with status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteData wraps data in the standard {"data", "metadata"} envelope
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// WriteError maps domain errors to HTTP statuses. Anything unrecognised is
// logged and reported as 500 without leaking the cause.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var cashErr *domain.InsufficientCashError
	var validationErr *domain.ValidationError
	var notFoundErr *domain.NotFoundError

	switch {
	case errors.As(err, &cashErr):
		WriteJSON(w, http.StatusConflict, ErrorBody{Error: cashErr.Error(), Code: cashErr.Code(), Details: cashErr})
	case errors.As(err, &validationErr):
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorBody{Error: validationErr.Error(), Code: "VALIDATION_ERROR", Details: map[string]string{"field": validationErr.Field}})
	case errors.As(err, &notFoundErr):
		WriteJSON(w, http.StatusNotFound, ErrorBody{Error: notFoundErr.Error(), Code: "NOT_FOUND"})
	default:
		log.Error().Err(err).Msg("Request failed")
		WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error", Code: "INTERNAL"})
	}
}

// BadRequest writes a 400 for malformed input
func BadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: message, Code: "BAD_REQUEST"})
}

// OwnerID returns the caller identity or writes a 401 and returns false
func OwnerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(OwnerHeader)
	if owner == "" {
		WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: "missing " + OwnerHeader + " header", Code: "UNAUTHORIZED"})
		return "", false
	}
	return owner, true
}

// DecodeJSON decodes the request body into v, rejecting unknown fields
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
