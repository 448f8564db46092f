package billing

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/subsync/pkg/email"
)

// Notifier receives best-effort customer notifications. Errors are logged by
// the caller and never affect reconciliation.
type Notifier interface {
	PaymentFailed(ctx context.Context, rec *Record) error
	SubscriptionExpired(ctx context.Context, rec *Record) error
}

type emailNotifier struct {
	sender email.Sender
}

// NewEmailNotifier returns a Notifier that emails the customer about payment
// failures and subscription expiry.
func NewEmailNotifier(sender email.Sender) Notifier {
	if sender == nil {
		panic("billing: EmailNotifier requires an email sender")
	}
	return &emailNotifier{sender: sender}
}

func (n *emailNotifier) PaymentFailed(ctx context.Context, rec *Record) error {
	if rec.Email == "" {
		return nil
	}
	return n.sender.Send(ctx, email.Message{
		To:      rec.Email,
		Subject: "Your subscription payment failed",
		Tag:     "payment-failed",
		BodyHTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>We could not charge your payment method for your premium subscription. "+
				"Your access is unchanged for now; please update your payment details to avoid interruption.</p>",
			displayName(rec)),
	})
}

func (n *emailNotifier) SubscriptionExpired(ctx context.Context, rec *Record) error {
	if rec.Email == "" {
		return nil
	}
	return n.sender.Send(ctx, email.Message{
		To:      rec.Email,
		Subject: "Your premium subscription has ended",
		Tag:     "subscription-expired",
		BodyHTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your premium subscription has ended. "+
				"You can resubscribe at any time to restore access to premium features.</p>",
			displayName(rec)),
	})
}

func displayName(rec *Record) string {
	if rec.Name != "" {
		return rec.Name
	}
	return "there"
}
