package billing

import (
	"context"
	"errors"
)

// MatchKey says which identity key resolved an inbound event.
type MatchKey string

const (
	MatchUserID          MatchKey = "user_id"
	MatchSubscriptionID  MatchKey = "subscription_id"
	MatchEmail           MatchKey = "email"
	MatchCheckoutSession MatchKey = "checkout_session"
)

// Ref carries the identifying fields an inbound event may offer. Any subset
// can be empty.
type Ref struct {
	SubscriptionID    string
	Email             string
	CheckoutSessionID string
}

// Resolver matches inbound events to persisted records using an ordered key
// strategy: provider subscription ID first, then customer email, then the
// interim checkout session ID. The first hit wins.
//
// It is deliberately independent of mutation logic so the ordering can be
// tested against a bare store.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over the given store.
// Panics on a nil store to fail fast during initialization.
func NewResolver(store Store) *Resolver {
	if store == nil {
		panic("billing: Resolver requires a store")
	}
	return &Resolver{store: store}
}

// Resolve returns the matching record and the key that matched. When no key
// matches it returns ErrUnresolved; callers acknowledge the event and move
// on, they never retry. Store failures other than not-found are returned
// as-is.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (*Record, MatchKey, error) {
	if ref.SubscriptionID != "" {
		rec, err := r.store.GetBySubscriptionID(ctx, ref.SubscriptionID)
		if err == nil {
			return rec, MatchSubscriptionID, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, "", err
		}
	}

	if ref.Email != "" {
		rec, err := r.store.GetByEmail(ctx, ref.Email)
		if err == nil {
			return rec, MatchEmail, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, "", err
		}
	}

	if ref.CheckoutSessionID != "" {
		rec, err := r.store.GetByCheckoutSession(ctx, ref.CheckoutSessionID)
		if err == nil {
			return rec, MatchCheckoutSession, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, "", err
		}
	}

	return nil, "", ErrUnresolved
}
