package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/billing"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCheckout(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if session, ok := args.Get(0).(*billing.CheckoutSession); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) FetchSubscription(ctx context.Context, subscriptionID string) (*billing.State, error) {
	args := m.Called(ctx, subscriptionID)
	if st, ok := args.Get(0).(*billing.State); ok {
		return st, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	if ev, ok := args.Get(0).(*billing.Event); ok {
		return ev, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PaymentFailed(ctx context.Context, rec *billing.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockNotifier) SubscriptionExpired(ctx context.Context, rec *billing.Record) error {
	return m.Called(ctx, rec).Error(0)
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store billing.Store, provider billing.Provider, opts ...billing.ServiceOption) billing.Service {
	t.Helper()
	cfg := billing.Config{
		DefaultPriceID: "pri_default",
		SuccessURL:     "https://app.example.com/success",
	}
	opts = append([]billing.ServiceOption{
		billing.WithClock(func() time.Time { return testNow }),
	}, opts...)
	return billing.NewService(store, provider, cfg, opts...)
}

func TestStartCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("creates identity row and stores session ID", func(t *testing.T) {
		store := billing.NewMemoryStore()
		provider := new(mockProvider)
		provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(p billing.CheckoutParams) bool {
			return p.PriceID == "pri_default" && p.UserID == "u1" && p.Email == "alice@example.com"
		})).Return(&billing.CheckoutSession{URL: "https://pay.example.com/c/1", SessionID: "txn_1"}, nil)

		svc := newTestService(t, store, provider)

		session, err := svc.StartCheckout(ctx, billing.StartCheckoutParams{
			UserID: "u1", Email: "alice@example.com", Name: "Alice",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com/c/1", session.URL)

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "txn_1", rec.CheckoutSessionID)
		assert.Equal(t, billing.StatusFree, rec.Status)
		assert.False(t, rec.IsPremium)
		provider.AssertExpectations(t)
	})

	t.Run("identity row survives provider failure", func(t *testing.T) {
		store := billing.NewMemoryStore()
		provider := new(mockProvider)
		provider.On("CreateCheckout", mock.Anything, mock.Anything).
			Return(nil, billing.ErrProviderError)

		svc := newTestService(t, store, provider)

		_, err := svc.StartCheckout(ctx, billing.StartCheckoutParams{
			UserID: "u1", Email: "alice@example.com",
		})
		require.ErrorIs(t, err, billing.ErrProviderError)

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", rec.Email)
		assert.Empty(t, rec.CheckoutSessionID)
	})

	t.Run("explicit product overrides the default price", func(t *testing.T) {
		store := billing.NewMemoryStore()
		provider := new(mockProvider)
		provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(p billing.CheckoutParams) bool {
			return p.PriceID == "pri_custom"
		})).Return(&billing.CheckoutSession{URL: "https://pay.example.com/c/2", SessionID: "txn_2"}, nil)

		svc := newTestService(t, store, provider)
		_, err := svc.StartCheckout(ctx, billing.StartCheckoutParams{
			UserID: "u1", Email: "alice@example.com", ProductID: "pri_custom",
		})
		require.NoError(t, err)
		provider.AssertExpectations(t)
	})

	t.Run("requires user ID and email", func(t *testing.T) {
		svc := newTestService(t, billing.NewMemoryStore(), new(mockProvider))

		_, err := svc.StartCheckout(ctx, billing.StartCheckoutParams{Email: "a@b.com"})
		assert.ErrorIs(t, err, billing.ErrMissingUserID)

		_, err = svc.StartCheckout(ctx, billing.StartCheckoutParams{UserID: "u1"})
		assert.ErrorIs(t, err, billing.ErrMissingEmail)
	})
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()
	future := testNow.Add(10 * 24 * time.Hour)

	premiumRecord := func() *billing.Record {
		return &billing.Record{
			UserID:         "u1",
			Email:          "alice@example.com",
			SubscriptionID: "sub_1",
			IsPremium:      true,
			Status:         billing.StatusActive,
			NextBillingAt:  &future,
		}
	}

	t.Run("keeps premium until the billing date", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, premiumRecord()))

		provider := new(mockProvider)
		provider.On("CancelAtPeriodEnd", mock.Anything, "sub_1").Return(nil)
		provider.On("FetchSubscription", mock.Anything, "sub_1").Return(&billing.State{
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			CancelPending:  true,
			NextBillingAt:  &future,
		}, nil)

		svc := newTestService(t, store, provider)
		require.NoError(t, svc.CancelSubscription(ctx, "u1", "sub_1"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusCancelling, rec.Status)
		assert.True(t, rec.CancelAtBilling)
		provider.AssertExpectations(t)
	})

	t.Run("falls back to stored billing date when post-cancel fetch fails", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, premiumRecord()))

		provider := new(mockProvider)
		provider.On("CancelAtPeriodEnd", mock.Anything, "sub_1").Return(nil)
		provider.On("FetchSubscription", mock.Anything, "sub_1").
			Return(nil, billing.ErrProviderError)

		svc := newTestService(t, store, provider)
		require.NoError(t, svc.CancelSubscription(ctx, "u1", ""))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusCancelling, rec.Status)
	})

	t.Run("rejects mismatched subscription ID", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, premiumRecord()))

		svc := newTestService(t, store, new(mockProvider))
		err := svc.CancelSubscription(ctx, "u1", "sub_other")
		assert.ErrorIs(t, err, billing.ErrSubscriptionMismatch)
	})

	t.Run("rejects users without a subscription", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{UserID: "u1", Status: billing.StatusFree}))

		svc := newTestService(t, store, new(mockProvider))
		err := svc.CancelSubscription(ctx, "u1", "")
		assert.ErrorIs(t, err, billing.ErrNoSubscription)
	})

	t.Run("provider cancel failure surfaces to the caller", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, premiumRecord()))

		provider := new(mockProvider)
		provider.On("CancelAtPeriodEnd", mock.Anything, "sub_1").
			Return(billing.ErrProviderError)

		svc := newTestService(t, store, provider)
		err := svc.CancelSubscription(ctx, "u1", "")
		require.ErrorIs(t, err, billing.ErrProviderError)

		rec, getErr := store.Get(ctx, "u1")
		require.NoError(t, getErr)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusActive, rec.Status)
	})
}

func TestEntitlement(t *testing.T) {
	ctx := context.Background()
	future := testNow.Add(10 * 24 * time.Hour)

	t.Run("free user served from the store", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{UserID: "u1", Status: billing.StatusFree}))

		svc := newTestService(t, store, new(mockProvider))
		ent, err := svc.Entitlement(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ent.IsPremium)
		assert.Equal(t, billing.StatusFree, ent.Status)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := newTestService(t, billing.NewMemoryStore(), new(mockProvider))
		_, err := svc.Entitlement(ctx, "ghost")
		assert.ErrorIs(t, err, billing.ErrRecordNotFound)
	})

	t.Run("subscriber state reconciled against the provider", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID:         "u1",
			SubscriptionID: "sub_1",
			IsPremium:      true,
			Status:         billing.StatusActive,
		}))

		provider := new(mockProvider)
		provider.On("FetchSubscription", mock.Anything, "sub_1").Return(&billing.State{
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			CancelPending:  true,
			NextBillingAt:  &future,
		}, nil)

		svc := newTestService(t, store, provider)
		ent, err := svc.Entitlement(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ent.IsPremium)
		assert.Equal(t, billing.StatusCancelling, ent.Status)
		assert.True(t, ent.CancelAtBilling)

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelling, rec.Status)
	})

	t.Run("provider outage degrades to stored state", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID:         "u1",
			SubscriptionID: "sub_1",
			IsPremium:      true,
			Status:         billing.StatusActive,
		}))

		provider := new(mockProvider)
		provider.On("FetchSubscription", mock.Anything, "sub_1").
			Return(nil, billing.ErrProviderError)

		svc := newTestService(t, store, provider)
		ent, err := svc.Entitlement(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ent.IsPremium)
		assert.Equal(t, billing.StatusActive, ent.Status)
	})
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{}`)
	future := testNow.Add(10 * 24 * time.Hour)
	past := testNow.Add(-time.Hour)

	serviceWithEvent := func(t *testing.T, store billing.Store, ev *billing.Event, opts ...billing.ServiceOption) billing.Service {
		t.Helper()
		provider := new(mockProvider)
		provider.On("ParseWebhook", mock.Anything, payload, "sig").Return(ev, nil)
		return newTestService(t, store, provider, opts...)
	}

	t.Run("activation grants premium", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "u1", Email: "alice@example.com", Status: billing.StatusFree,
		}))

		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_1",
			Type:           billing.EventSubscriptionActivated,
			SubscriptionID: "sub_1",
			CustomerEmail:  "alice@example.com",
			Status:         billing.ProviderStatusActive,
			NextBillingAt:  &future,
		})
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusActive, rec.Status)
		assert.Equal(t, "sub_1", rec.SubscriptionID)
		assert.False(t, rec.CancelAtBilling)
	})

	t.Run("user ID from custom data wins over other keys", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{UserID: "u1", Status: billing.StatusFree}))
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "u2", Email: "shared@example.com", Status: billing.StatusFree,
		}))

		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_2",
			Type:           billing.EventSubscriptionActivated,
			UserID:         "u1",
			CustomerEmail:  "shared@example.com",
			SubscriptionID: "sub_9",
			Status:         billing.ProviderStatusActive,
		})
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)

		other, err := store.Get(ctx, "u2")
		require.NoError(t, err)
		assert.False(t, other.IsPremium)
	})

	t.Run("cancellation with future date keeps premium", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "u1", SubscriptionID: "sub_1",
			IsPremium: true, Status: billing.StatusActive,
		}))

		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_3",
			Type:           billing.EventSubscriptionCancelled,
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			CancelPending:  true,
			NextBillingAt:  &future,
		})
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusCancelling, rec.Status)
		assert.True(t, rec.CancelAtBilling)
	})

	t.Run("cancellation with elapsed date expires immediately", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "u1", SubscriptionID: "sub_1",
			IsPremium: true, Status: billing.StatusActive,
		}))

		notifier := new(mockNotifier)
		notifier.On("SubscriptionExpired", mock.Anything, mock.Anything).Return(nil)

		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_4",
			Type:           billing.EventSubscriptionCancelled,
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			CancelPending:  true,
			NextBillingAt:  &past,
		}, billing.WithNotifier(notifier))
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, rec.IsPremium)
		assert.Equal(t, billing.StatusExpired, rec.Status)
		notifier.AssertExpectations(t)
	})

	t.Run("update carrying a scheduled cancel keeps the grace period", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "u1", SubscriptionID: "sub_1",
			IsPremium: true, Status: billing.StatusCancelling,
			CancelAtBilling: true, NextBillingAt: &future,
		}))

		// Paddle reports a portal-initiated cancel as subscription.updated,
		// which classifies as a renewal. It must not promote the record back
		// to active or drop it from the expiry sweep.
		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_sched",
			Type:           billing.EventSubscriptionRenewed,
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			CancelPending:  true,
			NextBillingAt:  &future,
		})
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusCancelling, rec.Status)
		assert.True(t, rec.CancelAtBilling)
	})

	t.Run("payment failure marks the record without touching entitlement", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "u1", SubscriptionID: "sub_1",
			IsPremium: true, Status: billing.StatusActive,
		}))

		notifier := new(mockNotifier)
		notifier.On("PaymentFailed", mock.Anything, mock.Anything).Return(nil)

		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_5",
			Type:           billing.EventPaymentFailed,
			SubscriptionID: "sub_1",
		}, billing.WithNotifier(notifier))
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))

		rec, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium, "a failed charge alone never revokes premium")
		assert.Equal(t, billing.StatusPaymentFailed, rec.Status)
		notifier.AssertExpectations(t)
	})

	t.Run("unresolvable event acknowledged without mutation", func(t *testing.T) {
		store := billing.NewMemoryStore()
		svc := serviceWithEvent(t, store, &billing.Event{
			ID:             "evt_6",
			Type:           billing.EventSubscriptionActivated,
			SubscriptionID: "sub_unknown",
			Status:         billing.ProviderStatusActive,
		})
		assert.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
	})

	t.Run("unmapped event types are ignored", func(t *testing.T) {
		store := billing.NewMemoryStore()
		svc := serviceWithEvent(t, store, &billing.Event{
			ID:   "evt_7",
			Type: billing.EventType("customer.updated"),
		})
		assert.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
	})

	t.Run("verification failure propagates", func(t *testing.T) {
		provider := new(mockProvider)
		provider.On("ParseWebhook", mock.Anything, payload, "bad").
			Return(nil, billing.ErrWebhookVerificationFailed)

		svc := newTestService(t, billing.NewMemoryStore(), provider)
		err := svc.HandleWebhook(ctx, payload, "bad")
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("replay guard skips redelivered events", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{UserID: "u1", Status: billing.StatusFree}))

		provider := new(mockProvider)
		provider.On("ParseWebhook", mock.Anything, payload, "sig").Return(&billing.Event{
			ID:             "evt_dup",
			Type:           billing.EventSubscriptionActivated,
			UserID:         "u1",
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
		}, nil)

		svc := newTestService(t, store, provider,
			billing.WithReplayGuard(billing.NewMemoryReplayGuard(time.Hour)))

		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
		first, err := store.Get(ctx, "u1")
		require.NoError(t, err)

		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
		second, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	})

	t.Run("failed application releases the replay guard mark", func(t *testing.T) {
		inner := billing.NewMemoryStore()
		require.NoError(t, inner.Save(ctx, &billing.Record{UserID: "u1", Status: billing.StatusFree}))
		store := &flakySaveStore{Store: inner, failures: 1}

		provider := new(mockProvider)
		provider.On("ParseWebhook", mock.Anything, payload, "sig").Return(&billing.Event{
			ID:             "evt_retry",
			Type:           billing.EventSubscriptionActivated,
			UserID:         "u1",
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			NextBillingAt:  &future,
		}, nil)

		svc := newTestService(t, store, provider,
			billing.WithReplayGuard(billing.NewMemoryReplayGuard(time.Hour)))

		require.Error(t, svc.HandleWebhook(ctx, payload, "sig"))
		rec, err := inner.Get(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, rec.IsPremium)

		// The redelivery must not be treated as a duplicate of the failed pass.
		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
		rec, err = inner.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		assert.Equal(t, billing.StatusActive, rec.Status)
	})

	t.Run("identical redelivery without a guard is a no-op save", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{UserID: "u1", Status: billing.StatusFree}))

		ev := &billing.Event{
			Type:           billing.EventSubscriptionActivated,
			UserID:         "u1",
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			NextBillingAt:  &future,
		}
		svc := serviceWithEvent(t, store, ev)

		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
		first, err := store.Get(ctx, "u1")
		require.NoError(t, err)

		require.NoError(t, svc.HandleWebhook(ctx, payload, "sig"))
		second, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, first.UpdatedAt, second.UpdatedAt,
			"re-applying identical state must not bump UpdatedAt")
	})

	t.Run("store failure surfaces instead of being swallowed", func(t *testing.T) {
		provider := new(mockProvider)
		provider.On("ParseWebhook", mock.Anything, payload, "sig").Return(&billing.Event{
			Type:           billing.EventSubscriptionActivated,
			SubscriptionID: "sub_1",
		}, nil)

		svc := newTestService(t, failingStore{}, provider)
		err := svc.HandleWebhook(ctx, payload, "sig")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, billing.ErrUnresolved)
	})
}

// failingStore errors on every operation. Distinguishes store outages from
// the resolver's not-found path.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (*billing.Record, error) { return nil, errStoreDown }
func (failingStore) GetBySubscriptionID(context.Context, string) (*billing.Record, error) {
	return nil, errStoreDown
}
func (failingStore) GetByEmail(context.Context, string) (*billing.Record, error) {
	return nil, errStoreDown
}
func (failingStore) GetByCheckoutSession(context.Context, string) (*billing.Record, error) {
	return nil, errStoreDown
}
func (failingStore) Save(context.Context, *billing.Record) error { return errStoreDown }
func (failingStore) ListCancellingDue(context.Context, time.Time) ([]billing.Record, error) {
	return nil, errStoreDown
}
func (failingStore) ListBillingDue(context.Context, time.Time) ([]billing.Record, error) {
	return nil, errStoreDown
}

// flakySaveStore fails the next N saves, then delegates to the wrapped store.
type flakySaveStore struct {
	billing.Store
	failures int
}

func (s *flakySaveStore) Save(ctx context.Context, rec *billing.Record) error {
	if s.failures > 0 {
		s.failures--
		return errStoreDown
	}
	return s.Store.Save(ctx, rec)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	past := testNow.Add(-time.Hour)
	future := testNow.Add(10 * 24 * time.Hour)

	t.Run("demotes records whose grace period elapsed", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "due", SubscriptionID: "sub_due",
			IsPremium: true, Status: billing.StatusCancelling,
			CancelAtBilling: true, NextBillingAt: &past,
		}))
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "not-due", SubscriptionID: "sub_later",
			IsPremium: true, Status: billing.StatusCancelling,
			CancelAtBilling: true, NextBillingAt: &future,
		}))

		svc := newTestService(t, store, new(mockProvider))
		report, err := svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Checked)
		assert.Equal(t, 1, report.Updated)
		assert.Zero(t, report.Failed)

		due, err := store.Get(ctx, "due")
		require.NoError(t, err)
		assert.False(t, due.IsPremium)
		assert.Equal(t, billing.StatusExpired, due.Status)
		assert.True(t, due.CancelAtBilling, "cancel flag is part of the history, not cleared on expiry")

		later, err := store.Get(ctx, "not-due")
		require.NoError(t, err)
		assert.True(t, later.IsPremium)
		assert.Equal(t, billing.StatusCancelling, later.Status)
	})

	t.Run("empty store sweeps cleanly", func(t *testing.T) {
		svc := newTestService(t, billing.NewMemoryStore(), new(mockProvider))
		report, err := svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Checked)
	})
}

func TestSweepDrift(t *testing.T) {
	ctx := context.Background()
	past := testNow.Add(-time.Hour)
	renewed := testNow.Add(30 * 24 * time.Hour)

	t.Run("refreshes overdue records from the provider", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "renewing", SubscriptionID: "sub_1",
			IsPremium: true, Status: billing.StatusActive, NextBillingAt: &past,
		}))
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "lapsed", SubscriptionID: "sub_2",
			IsPremium: true, Status: billing.StatusActive, NextBillingAt: &past,
		}))

		provider := new(mockProvider)
		provider.On("FetchSubscription", mock.Anything, "sub_1").Return(&billing.State{
			SubscriptionID: "sub_1",
			Status:         billing.ProviderStatusActive,
			NextBillingAt:  &renewed,
		}, nil)
		provider.On("FetchSubscription", mock.Anything, "sub_2").Return(&billing.State{
			SubscriptionID: "sub_2",
			Status:         billing.ProviderStatusExpired,
		}, nil)

		svc := newTestService(t, store, provider)
		report, err := svc.SweepDrift(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Checked)
		assert.Equal(t, 2, report.Updated)

		rec, err := store.Get(ctx, "renewing")
		require.NoError(t, err)
		assert.True(t, rec.IsPremium)
		require.NotNil(t, rec.NextBillingAt)
		assert.True(t, rec.NextBillingAt.Equal(renewed))

		rec, err = store.Get(ctx, "lapsed")
		require.NoError(t, err)
		assert.False(t, rec.IsPremium)
		assert.Equal(t, billing.StatusExpired, rec.Status)
	})

	t.Run("provider failure for one record does not stop the pass", func(t *testing.T) {
		store := billing.NewMemoryStore()
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "broken", SubscriptionID: "sub_err",
			IsPremium: true, Status: billing.StatusActive, NextBillingAt: &past,
		}))
		require.NoError(t, store.Save(ctx, &billing.Record{
			UserID: "fine", SubscriptionID: "sub_ok",
			IsPremium: true, Status: billing.StatusActive, NextBillingAt: &past,
		}))

		provider := new(mockProvider)
		provider.On("FetchSubscription", mock.Anything, "sub_err").
			Return(nil, billing.ErrProviderError)
		provider.On("FetchSubscription", mock.Anything, "sub_ok").Return(&billing.State{
			SubscriptionID: "sub_ok",
			Status:         billing.ProviderStatusExpired,
		}, nil)

		svc := newTestService(t, store, provider)
		report, err := svc.SweepDrift(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Checked)
		assert.Equal(t, 1, report.Updated)
		assert.Equal(t, 1, report.Failed)
	})
}
