package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/subsync/billing"
)

// envelope is the standard JSON response shape: either data or error is set.
type envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func respondError(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorDetail{
		Code:    code,
		Message: err.Error(),
	}})
}

// respondServiceError maps domain errors onto HTTP statuses for synchronous
// user-initiated actions. Webhook handling never goes through here; it always
// acknowledges.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, billing.ErrMissingUserID),
		errors.Is(err, billing.ErrMissingEmail):
		respondError(w, http.StatusUnprocessableEntity, "validation_error", err)
	case errors.Is(err, billing.ErrNoSubscription):
		respondError(w, http.StatusConflict, "no_subscription", err)
	case errors.Is(err, billing.ErrSubscriptionMismatch):
		respondError(w, http.StatusConflict, "subscription_mismatch", err)
	case errors.Is(err, billing.ErrProviderError):
		respondError(w, http.StatusBadGateway, "provider_error", err)
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
