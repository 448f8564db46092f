package billing

import "time"

// Decision is the output of Reconcile: the canonical local status and the
// premium entitlement derived from it.
type Decision struct {
	IsPremium bool
	Status    Status
}

// Reconcile maps a provider-reported subscription state onto the local status
// model. It is the single decision function shared by webhook handling, the
// on-demand status query, and the periodic sweeps.
//
// The rules, in order:
//
//  1. active without a pending cancellation is premium.
//  2. active with a pending cancellation keeps premium only while
//     nextBillingAt is strictly in the future; at or after that instant the
//     grace period has elapsed and the record is expired. A nil nextBillingAt
//     means no contractual end is known, which counts as elapsed.
//  3. cancelled and expired are terminal and revoke premium immediately.
//  4. paused and any unrecognized status revoke premium; the raw provider
//     value is kept as the local status so drift stays visible, falling back
//     to free when the provider reported nothing at all.
//
// Payment failures are deliberately not part of this mapping: a failed charge
// marks the record payment_failed without touching entitlement, and only an
// explicit cancelled/expired signal revokes it. See Service.HandleWebhook.
//
// Reconcile is a pure function: identical inputs always produce the identical
// Decision, so re-applying a delivered event is a no-op.
func Reconcile(status ProviderStatus, cancelPending bool, nextBillingAt *time.Time, now time.Time) Decision {
	switch status {
	case ProviderStatusActive:
		if !cancelPending {
			return Decision{IsPremium: true, Status: StatusActive}
		}
		// Strict comparison: a billing date equal to now counts as elapsed.
		if nextBillingAt != nil && nextBillingAt.After(now) {
			return Decision{IsPremium: true, Status: StatusCancelling}
		}
		return Decision{IsPremium: false, Status: StatusExpired}

	case ProviderStatusCancelled, ProviderStatusExpired:
		return Decision{IsPremium: false, Status: StatusExpired}

	default:
		if status == "" {
			return Decision{IsPremium: false, Status: StatusFree}
		}
		return Decision{IsPremium: false, Status: Status(status)}
	}
}
