package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/billing"
)

func TestRecordEntitlement(t *testing.T) {
	next := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	rec := billing.Record{
		UserID:          "u1",
		Email:           "alice@example.com",
		SubscriptionID:  "sub_1",
		IsPremium:       true,
		Status:          billing.StatusCancelling,
		CancelAtBilling: true,
		NextBillingAt:   &next,
	}

	ent := rec.Entitlement()
	assert.Equal(t, "u1", ent.UserID)
	assert.True(t, ent.IsPremium)
	assert.Equal(t, billing.StatusCancelling, ent.Status)
	assert.True(t, ent.CancelAtBilling)
	require.NotNil(t, ent.NextBillingAt)
	assert.True(t, ent.NextBillingAt.Equal(next))

	t.Run("wire contract", func(t *testing.T) {
		raw, err := json.Marshal(ent)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.Contains(t, fields, "userId")
		assert.Contains(t, fields, "isPremium")
		assert.Contains(t, fields, "status")
		assert.Contains(t, fields, "subscriptionId")
		assert.Contains(t, fields, "cancelAtBillingDate")
		assert.Contains(t, fields, "nextBillingDate")
	})

	t.Run("empty optionals omitted", func(t *testing.T) {
		free := billing.Record{UserID: "u2", Status: billing.StatusFree}
		raw, err := json.Marshal(free.Entitlement())
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "subscriptionId")
		assert.NotContains(t, fields, "nextBillingDate")
	})
}

func TestRecordStatusHelpers(t *testing.T) {
	assert.True(t, (&billing.Record{Status: billing.StatusActive}).IsActive())
	assert.True(t, (&billing.Record{Status: billing.StatusCancelling}).IsCancelling())
	assert.True(t, (&billing.Record{Status: billing.StatusExpired}).IsExpired())
	assert.False(t, (&billing.Record{Status: billing.StatusFree}).IsActive())
}
