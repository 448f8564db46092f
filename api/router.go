// Package api exposes the billing service over HTTP: checkout and
// cancellation endpoints for the application frontend, the provider webhook
// ingress, and operational endpoints (health, metrics, manual sweep).
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/subsync/billing"
)

// Deps carries everything the router needs. Log defaults to slog.Default
// when nil; Service must be set.
type Deps struct {
	Service billing.Service
	Log     *slog.Logger
}

func Router(d Deps) chi.Router {
	if d.Service == nil {
		panic("api: service is required")
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	h := &handlers{svc: d.Service, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/create-subscription", h.createSubscription)
		r.Post("/cancel-subscription", h.cancelSubscription)
		r.Get("/user/{userID}/status", h.userStatus)
		r.Post("/check-expired-subscriptions", h.checkExpired)
		r.Post("/webhooks/provider", h.webhook)
	})

	r.Get("/success", h.success)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
