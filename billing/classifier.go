package billing

// Action is what the webhook handler should do with an inbound event.
type Action int

const (
	// ActionIgnore acknowledges the event without any mutation.
	ActionIgnore Action = iota
	// ActionActivate sets the record active and premium and records the new
	// billing date. A pending cancellation is cleared only when the event no
	// longer carries one.
	ActionActivate
	// ActionCancel applies the grace-period rule: cancelling while the billing
	// date is in the future, expired otherwise.
	ActionCancel
	// ActionPaymentFailed marks the record payment_failed without touching
	// entitlement.
	ActionPaymentFailed
)

// String implements fmt.Stringer for log output.
func (a Action) String() string {
	switch a {
	case ActionActivate:
		return "activate"
	case ActionCancel:
		return "cancel"
	case ActionPaymentFailed:
		return "payment_failed"
	default:
		return "ignore"
	}
}

// Classify maps a normalized event type to the action the webhook handler
// takes. The switch is exhaustive over the EventType constants; adding a new
// constant without extending it leaves the event acknowledged-but-ignored,
// which the handler logs.
func Classify(t EventType) Action {
	switch t {
	case EventSubscriptionCreated,
		EventSubscriptionActivated,
		EventSubscriptionRenewed,
		EventPaymentSucceeded:
		return ActionActivate
	case EventSubscriptionCancelled,
		EventSubscriptionExpired:
		return ActionCancel
	case EventPaymentFailed:
		return ActionPaymentFailed
	default:
		return ActionIgnore
	}
}
