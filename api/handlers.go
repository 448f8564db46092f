package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subsync/billing"
	"github.com/dmitrymomot/subsync/pkg/logger"
)

// webhookSignatureHeader carries the provider's payload signature.
const webhookSignatureHeader = "Paddle-Signature"

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

type handlers struct {
	svc billing.Service
	log *slog.Logger
}

type createSubscriptionRequest struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	ProductID string `json:"productId"`
}

func (h *handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	session, err := h.svc.StartCheckout(r.Context(), billing.StartCheckoutParams{
		UserID:    req.UserID,
		Email:     req.Email,
		Name:      req.Name,
		ProductID: req.ProductID,
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "checkout creation failed",
			logger.UserID(req.UserID), logger.Error(err))
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"checkoutUrl": session.URL,
		"sessionId":   session.SessionID,
	})
}

type cancelSubscriptionRequest struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId"`
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusUnprocessableEntity, "validation_error", billing.ErrMissingUserID)
		return
	}

	if err := h.svc.CancelSubscription(r.Context(), req.UserID, req.SubscriptionID); err != nil {
		h.log.ErrorContext(r.Context(), "cancellation failed",
			logger.UserID(req.UserID), logger.Error(err))
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *handlers) userStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusUnprocessableEntity, "validation_error", billing.ErrMissingUserID)
		return
	}

	ent, err := h.svc.Entitlement(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, ent)
}

func (h *handlers) checkExpired(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SweepExpired(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, report)
}

// webhook acknowledges every authenticated delivery, even when internal
// processing fails: returning an error would only cause a redelivery storm
// for an event the sweep will reconcile anyway. Bad signatures are the one
// exception, those are rejected.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	err = h.svc.HandleWebhook(r.Context(), payload, r.Header.Get(webhookSignatureHeader))
	if errors.Is(err, billing.ErrWebhookVerificationFailed) {
		respondError(w, http.StatusBadRequest, "invalid_signature", err)
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
	}

	respond(w, http.StatusOK, map[string]any{"received": true})
}

// success renders the page the provider redirects the customer to after a
// completed checkout. The subscription itself is confirmed via webhook, not
// via this redirect.
func (h *handlers) success(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "completed"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w,
		"<html><body><h1>Thank you!</h1><p>Your checkout is %s. Premium access activates as soon as the payment provider confirms it.</p></body></html>",
		status)
}
