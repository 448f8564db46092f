package billing

import "context"

// Provider is the payment provider integration surface. The provider is
// authoritative for subscription status; this package only mirrors it.
// Implementations must validate webhook signatures before returning events
// and are expected to bound every outbound call with an explicit timeout.
type Provider interface {
	// CreateCheckout creates a hosted checkout session the client is
	// redirected to.
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// FetchSubscription returns the provider's current view of a
	// subscription, normalized into State.
	FetchSubscription(ctx context.Context, subscriptionID string) (*State, error)

	// CancelAtPeriodEnd requests cancellation effective at the end of the
	// current billing period. The provider keeps the subscription active
	// until then.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error

	// ParseWebhook verifies the payload signature and normalizes the event.
	// Returns ErrWebhookVerificationFailed (possibly wrapped) on a bad
	// signature.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}
