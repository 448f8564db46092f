package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/subsync/billing"
)

func TestReconcile(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(10 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name          string
		status        billing.ProviderStatus
		cancelPending bool
		nextBillingAt *time.Time
		want          billing.Decision
	}{
		{
			name:   "active without pending cancel is premium",
			status: billing.ProviderStatusActive,
			want:   billing.Decision{IsPremium: true, Status: billing.StatusActive},
		},
		{
			name:          "active ignores billing date when no cancel pending",
			status:        billing.ProviderStatusActive,
			nextBillingAt: &past,
			want:          billing.Decision{IsPremium: true, Status: billing.StatusActive},
		},
		{
			name:          "pending cancel with future billing date keeps premium",
			status:        billing.ProviderStatusActive,
			cancelPending: true,
			nextBillingAt: &future,
			want:          billing.Decision{IsPremium: true, Status: billing.StatusCancelling},
		},
		{
			name:          "pending cancel with past billing date expires",
			status:        billing.ProviderStatusActive,
			cancelPending: true,
			nextBillingAt: &past,
			want:          billing.Decision{IsPremium: false, Status: billing.StatusExpired},
		},
		{
			name:          "billing date equal to now counts as elapsed",
			status:        billing.ProviderStatusActive,
			cancelPending: true,
			nextBillingAt: &now,
			want:          billing.Decision{IsPremium: false, Status: billing.StatusExpired},
		},
		{
			name:          "pending cancel without billing date expires",
			status:        billing.ProviderStatusActive,
			cancelPending: true,
			want:          billing.Decision{IsPremium: false, Status: billing.StatusExpired},
		},
		{
			name:   "cancelled is terminal",
			status: billing.ProviderStatusCancelled,
			want:   billing.Decision{IsPremium: false, Status: billing.StatusExpired},
		},
		{
			name:          "cancelled with future billing date is still terminal",
			status:        billing.ProviderStatusCancelled,
			nextBillingAt: &future,
			want:          billing.Decision{IsPremium: false, Status: billing.StatusExpired},
		},
		{
			name:   "expired is terminal",
			status: billing.ProviderStatusExpired,
			want:   billing.Decision{IsPremium: false, Status: billing.StatusExpired},
		},
		{
			name:   "paused revokes premium and keeps the raw status",
			status: billing.ProviderStatusPaused,
			want:   billing.Decision{IsPremium: false, Status: billing.Status("paused")},
		},
		{
			name:   "unknown status revokes premium and passes through",
			status: billing.ProviderStatus("past_due"),
			want:   billing.Decision{IsPremium: false, Status: billing.Status("past_due")},
		},
		{
			name: "empty status falls back to free",
			want: billing.Decision{IsPremium: false, Status: billing.StatusFree},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.Reconcile(tt.status, tt.cancelPending, tt.nextBillingAt, now)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		first := billing.Reconcile(billing.ProviderStatusActive, true, &future, now)
		second := billing.Reconcile(billing.ProviderStatusActive, true, &future, now)
		assert.Equal(t, first, second)
	})

	t.Run("one instant before the boundary is still premium", func(t *testing.T) {
		justAhead := now.Add(time.Nanosecond)
		got := billing.Reconcile(billing.ProviderStatusActive, true, &justAhead, now)
		assert.Equal(t, billing.Decision{IsPremium: true, Status: billing.StatusCancelling}, got)
	})
}
