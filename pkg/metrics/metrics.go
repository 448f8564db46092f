// Package metrics exposes the service's Prometheus collectors. Counters are
// registered on the default registry and served by promhttp in cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts inbound provider events by classified action.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsync_webhook_events_total",
		Help: "Inbound provider webhook events by classified action.",
	}, []string{"action"})

	// WebhookUnresolved counts events that matched no local record.
	WebhookUnresolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subsync_webhook_unresolved_total",
		Help: "Webhook events acknowledged without a matching record.",
	})

	// SweepRuns counts sweep passes by kind.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsync_sweep_runs_total",
		Help: "Periodic sweep passes by kind.",
	}, []string{"sweep"})

	// SweepTransitions counts records a sweep actually changed.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsync_sweep_transitions_total",
		Help: "Subscription records updated by a sweep, by kind.",
	}, []string{"sweep"})

	// ProviderErrors counts failed outbound provider calls by operation.
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subsync_provider_errors_total",
		Help: "Failed outbound billing provider calls by operation.",
	}, []string{"op"})
)
