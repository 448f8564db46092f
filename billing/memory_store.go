package billing

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and local
// development. It mirrors the PG store's semantics: Save upserts by UserID
// and stamps UpdatedAt, lookups return ErrRecordNotFound on a miss.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (*Record, error) {
	return s.find(func(r Record) bool {
		return r.SubscriptionID != "" && r.SubscriptionID == subscriptionID
	})
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*Record, error) {
	return s.find(func(r Record) bool {
		return r.Email != "" && strings.EqualFold(r.Email, email)
	})
}

func (s *MemoryStore) GetByCheckoutSession(_ context.Context, sessionID string) (*Record, error) {
	return s.find(func(r Record) bool {
		return r.CheckoutSessionID != "" && r.CheckoutSessionID == sessionID
	})
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.records[rec.UserID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.records[rec.UserID] = *rec
	return nil
}

func (s *MemoryStore) ListCancellingDue(_ context.Context, now time.Time) ([]Record, error) {
	return s.list(func(r Record) bool {
		return r.CancelAtBilling && r.IsPremium &&
			r.NextBillingAt != nil && !r.NextBillingAt.After(now)
	}), nil
}

func (s *MemoryStore) ListBillingDue(_ context.Context, now time.Time) ([]Record, error) {
	return s.list(func(r Record) bool {
		return r.SubscriptionID != "" &&
			r.NextBillingAt != nil && !r.NextBillingAt.After(now)
	}), nil
}

func (s *MemoryStore) find(match func(Record) bool) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if match(rec) {
			r := rec
			return &r, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) list(match func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if match(rec) {
			out = append(out, rec)
		}
	}
	return out
}
