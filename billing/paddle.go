package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey         string        `env:"PADDLE_API_KEY,required"`
	WebhookSecret  string        `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment    string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	RequestTimeout time.Duration `env:"PADDLE_REQUEST_TIMEOUT" envDefault:"15s"`
}

// PaddleProvider implements Provider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		config:   cfg,
	}, nil
}

// CreateCheckout creates a hosted checkout transaction in Paddle. The user ID
// and email travel in custom data so webhook events can be matched back to a
// local record even before Paddle assigns a subscription ID.
func (p *PaddleProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if params.UserID == "" {
		return nil, ErrMissingUserID
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceID,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id": params.UserID,
		},
	}
	if params.Email != "" {
		req.CustomData["email"] = params.Email
	}
	if params.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(params.SuccessURL),
		}
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{
		URL:       *txn.Checkout.URL,
		SessionID: txn.ID,
		// Paddle checkout links typically expire in 24 hours.
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}, nil
}

// FetchSubscription returns Paddle's current view of a subscription,
// normalized into State. A scheduled cancel shows up as an active
// subscription with CancelPending set and the effective date as the next
// billing timestamp, which is exactly what the grace-period rule needs.
func (p *PaddleProvider) FetchSubscription(ctx context.Context, subscriptionID string) (*State, error) {
	if subscriptionID == "" {
		return nil, ErrNoSubscription
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	st := &State{
		SubscriptionID: sub.ID,
		Status:         mapPaddleStatus(string(sub.Status)),
		NextBillingAt:  parsePaddleTime(sub.NextBilledAt),
	}

	if sub.ScheduledChange != nil && string(sub.ScheduledChange.Action) == "cancel" {
		st.CancelPending = true
		// The scheduled effective date is the contractual expiry instant.
		if t := parsePaddleTimeString(sub.ScheduledChange.EffectiveAt); t != nil {
			st.NextBillingAt = t
		}
	}

	if sub.CustomData != nil {
		if email, ok := sub.CustomData["email"].(string); ok {
			st.CustomerEmail = email
		}
	}

	return st, nil
}

// CancelAtPeriodEnd asks Paddle to cancel at the end of the current billing
// period. Paddle keeps the subscription active and reports the cancellation
// as a scheduled change until the period ends.
func (p *PaddleProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return ErrNoSubscription
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		return errors.Join(ErrProviderError, err)
	}
	return nil
}

// ParseWebhook validates the Paddle signature and normalizes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	// The SDK verifier works on an http.Request, so rebuild one around the
	// raw payload.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	var env struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	// A payload without an event ID cannot be matched against earlier
	// deliveries; give it a fresh key so the replay guard treats it as a
	// first delivery instead of colliding on the empty string.
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}

	ev := &Event{
		ID:            env.EventID,
		Type:          mapPaddleEventType(env.EventType),
		ProviderEvent: env.EventType,
		Raw:           env.Data,
	}

	if strings.HasPrefix(env.EventType, "subscription.") {
		if id, ok := env.Data["id"].(string); ok {
			ev.SubscriptionID = id
		}
		if status, ok := env.Data["status"].(string); ok {
			ev.Status = mapPaddleStatus(status)
		}
		if next, ok := env.Data["next_billed_at"].(string); ok {
			ev.NextBillingAt = parsePaddleTimeString(next)
		}
		if change, ok := env.Data["scheduled_change"].(map[string]any); ok {
			if action, ok := change["action"].(string); ok && action == "cancel" {
				ev.CancelPending = true
				if at, ok := change["effective_at"].(string); ok {
					if t := parsePaddleTimeString(at); t != nil {
						ev.NextBillingAt = t
					}
				}
			}
		}
	}

	if strings.HasPrefix(env.EventType, "transaction.") {
		// Transaction ID doubles as the checkout session ID captured when the
		// checkout was created.
		if id, ok := env.Data["id"].(string); ok {
			ev.SessionID = id
		}
		if subID, ok := env.Data["subscription_id"].(string); ok {
			ev.SubscriptionID = subID
		}
		if status, ok := env.Data["status"].(string); ok {
			ev.Status = mapPaddleStatus(status)
		}
	}

	if custom, ok := env.Data["custom_data"].(map[string]any); ok {
		if userID, ok := custom["user_id"].(string); ok {
			ev.UserID = userID
		}
		if email, ok := custom["email"].(string); ok {
			ev.CustomerEmail = email
		}
	}

	normalizePaddleEvent(ev)

	return ev, nil
}

// normalizePaddleEvent reshapes scheduled cancellations so the classifier
// sees them as cancellations. Paddle reports a portal- or dashboard-initiated
// cancellation as subscription.updated with scheduled_change.action=cancel,
// which would otherwise classify as an activation and erase the pending
// cancel from the record. A cancellation that still has a future effective
// date is an active subscription winding down, not a terminal one, so the
// status is forced active either way and the grace-period rule applies.
func normalizePaddleEvent(ev *Event) {
	if !ev.CancelPending {
		return
	}
	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionActivated, EventSubscriptionRenewed:
		ev.Type = EventSubscriptionCancelled
		ev.Status = ProviderStatusActive
	case EventSubscriptionCancelled:
		ev.Status = ProviderStatusActive
	}
}

// mapPaddleEventType maps Paddle event names onto the normalized vocabulary.
// Unmapped events pass through raw and end up classified as ActionIgnore.
func mapPaddleEventType(name string) EventType {
	switch name {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.activated", "subscription.resumed":
		return EventSubscriptionActivated
	case "subscription.updated":
		return EventSubscriptionRenewed
	case "subscription.canceled":
		return EventSubscriptionCancelled
	case "subscription.expired":
		return EventSubscriptionExpired
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(name)
	}
}

// mapPaddleStatus maps Paddle subscription statuses onto the normalized set.
// Unknown statuses pass through raw so Reconcile's rule for unrecognized
// values applies.
func mapPaddleStatus(status string) ProviderStatus {
	switch strings.ToLower(status) {
	case "active", "trialing":
		return ProviderStatusActive
	case "canceled", "cancelled":
		return ProviderStatusCancelled
	case "expired":
		return ProviderStatusExpired
	case "paused":
		return ProviderStatusPaused
	default:
		return ProviderStatus(status)
	}
}

func parsePaddleTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	return parsePaddleTimeString(*s)
}

func parsePaddleTimeString(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
