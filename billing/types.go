package billing

import "time"

// Status is the canonical local subscription status. It is always derived by
// Reconcile, never set ad hoc. Unrecognized provider statuses (for example
// "paused") pass through as raw values, so the type is open on purpose; the
// named constants are the closed set this package reasons about.
type Status string

const (
	StatusFree          Status = "free"
	StatusActive        Status = "active"
	StatusCancelling    Status = "cancelling"
	StatusExpired       Status = "expired"
	StatusPaymentFailed Status = "payment_failed"
)

// ProviderStatus is the provider-reported subscription status after
// normalization by a Provider implementation.
type ProviderStatus string

const (
	ProviderStatusActive    ProviderStatus = "active"
	ProviderStatusCancelled ProviderStatus = "cancelled"
	ProviderStatusExpired   ProviderStatus = "expired"
	ProviderStatusPaused    ProviderStatus = "paused"
)

// EventType is the normalized billing event vocabulary. Provider adapters map
// their native event names onto these constants; anything they cannot map is
// passed through raw and classified as ActionIgnore.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionActivated EventType = "subscription.activated"
	EventSubscriptionRenewed   EventType = "subscription.renewed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionExpired   EventType = "subscription.expired"
	EventPaymentSucceeded      EventType = "payment.succeeded"
	EventPaymentFailed         EventType = "payment.failed"
)

// Event is a normalized webhook event from the billing provider.
type Event struct {
	ID             string    // provider event ID, used for replay detection
	Type           EventType // normalized event type
	ProviderEvent  string    // original provider event name
	SubscriptionID string    // provider's subscription ID
	SessionID      string    // checkout session/transaction ID, if the event carries one
	CustomerEmail  string    // customer email, if the event carries one
	UserID         string    // our user ID from checkout custom data, if present
	Status         ProviderStatus
	CancelPending  bool
	NextBillingAt  *time.Time
	Raw            map[string]any // full provider payload for diagnostics
}

// State is the provider's current view of a subscription, as returned by an
// on-demand fetch.
type State struct {
	SubscriptionID string
	Status         ProviderStatus
	CancelPending  bool
	NextBillingAt  *time.Time
	CustomerEmail  string
}

// CheckoutParams is the request to create a hosted checkout session.
type CheckoutParams struct {
	PriceID    string // provider's price/product identifier
	UserID     string // our user ID, carried through checkout custom data
	Email      string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a hosted checkout created by the provider.
type CheckoutSession struct {
	URL       string    // hosted checkout URL the client is redirected to
	SessionID string    // provider's session/transaction identifier
	ExpiresAt time.Time // link expiration
}

// Entitlement is the client-facing view of a user's subscription.
// JSON field names match the persisted record's wire contract.
type Entitlement struct {
	UserID          string     `json:"userId"`
	IsPremium       bool       `json:"isPremium"`
	Status          Status     `json:"status"`
	SubscriptionID  string     `json:"subscriptionId,omitempty"`
	CancelAtBilling bool       `json:"cancelAtBillingDate"`
	NextBillingAt   *time.Time `json:"nextBillingDate,omitempty"`
}

// SweepReport summarizes one sweep pass. Failed counts records whose
// processing errored; a non-zero value never aborts the pass.
type SweepReport struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}
