package billing

import "errors"

var (
	ErrRecordNotFound       = errors.New("subscription record not found")
	ErrUnresolved           = errors.New("inbound event matches no subscription record")
	ErrSubscriptionMismatch = errors.New("subscription ID does not match the stored record")
	ErrNoSubscription       = errors.New("record has no provider subscription")

	ErrMissingUserID = errors.New("user ID is required")
	ErrMissingEmail  = errors.New("email is required")

	ErrProviderError             = errors.New("billing provider error")
	ErrNoCheckoutURL             = errors.New("no checkout URL returned from provider")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")

	// Provider configuration errors.
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
)
