package billing

import (
	"context"
	"time"
)

// Store defines subscription record persistence. UserID is the primary key;
// the secondary lookups exist for the identity resolver. Save is an upsert
// and must set UpdatedAt on every write.
//
// Implementations must return ErrRecordNotFound (possibly wrapped) when a
// lookup matches nothing.
type Store interface {
	Get(ctx context.Context, userID string) (*Record, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error)
	GetByEmail(ctx context.Context, email string) (*Record, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*Record, error)

	Save(ctx context.Context, rec *Record) error

	// ListCancellingDue returns premium records with a pending cancellation
	// whose billing date has passed: the expiry sweep's working set.
	ListCancellingDue(ctx context.Context, now time.Time) ([]Record, error)

	// ListBillingDue returns records with a provider subscription whose
	// billing date has passed, regardless of the cancellation flag: the drift
	// sweep's working set.
	ListBillingDue(ctx context.Context, now time.Time) ([]Record, error)
}
