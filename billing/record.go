package billing

import "time"

// Record is the persisted subscription state for one user. A row is created
// as a bare identity when checkout starts, enriched with the provider's
// subscription ID once activation is confirmed, and mutated on every relevant
// webhook, status query, or sweep. Rows are never hard-deleted.
type Record struct {
	UserID            string // stable external identity, unique
	Email             string // fallback join key for inbound events
	Name              string
	SubscriptionID    string // provider-assigned; empty before first confirmed checkout
	CheckoutSessionID string // interim session ID captured at checkout time
	IsPremium         bool   // the only field that gates feature access
	Status            Status
	CancelAtBilling   bool       // cancellation requested, grace period running or elapsed
	NextBillingAt     *time.Time // next renewal, or contractual expiry while cancelling
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the subscription is active and not winding down.
func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// IsCancelling reports whether a cancellation is pending inside the grace period.
func (r *Record) IsCancelling() bool {
	return r.Status == StatusCancelling
}

// IsExpired reports whether the subscription has reached its terminal state.
// Expired records return to active only through a new successful checkout.
func (r *Record) IsExpired() bool {
	return r.Status == StatusExpired
}

// Entitlement returns the client-facing view of the record.
func (r *Record) Entitlement() *Entitlement {
	return &Entitlement{
		UserID:          r.UserID,
		IsPremium:       r.IsPremium,
		Status:          r.Status,
		SubscriptionID:  r.SubscriptionID,
		CancelAtBilling: r.CancelAtBilling,
		NextBillingAt:   r.NextBillingAt,
	}
}
