package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store over a PostgreSQL pool.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given pool.
// Panics on a nil pool to fail fast during initialization.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	if db == nil {
		panic("billing: PGStore requires a connection pool")
	}
	return &PGStore{db: db}
}

const recordColumns = `user_id, email, name, subscription_id, checkout_session_id,
       is_premium, status, cancel_at_billing_date, next_billing_at, created_at, updated_at`

func (s *PGStore) Get(ctx context.Context, userID string) (*Record, error) {
	const q = `SELECT ` + recordColumns + `
	           FROM subscriptions
	           WHERE user_id = $1`
	return s.scanOne(s.db.QueryRow(ctx, q, userID))
}

func (s *PGStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error) {
	const q = `SELECT ` + recordColumns + `
	           FROM subscriptions
	           WHERE subscription_id = $1 AND subscription_id <> ''`
	return s.scanOne(s.db.QueryRow(ctx, q, subscriptionID))
}

func (s *PGStore) GetByEmail(ctx context.Context, email string) (*Record, error) {
	const q = `SELECT ` + recordColumns + `
	           FROM subscriptions
	           WHERE lower(email) = lower($1) AND email <> ''
	           ORDER BY updated_at DESC
	           LIMIT 1`
	return s.scanOne(s.db.QueryRow(ctx, q, email))
}

func (s *PGStore) GetByCheckoutSession(ctx context.Context, sessionID string) (*Record, error) {
	const q = `SELECT ` + recordColumns + `
	           FROM subscriptions
	           WHERE checkout_session_id = $1 AND checkout_session_id <> ''`
	return s.scanOne(s.db.QueryRow(ctx, q, sessionID))
}

// Save upserts by user_id. updated_at is stamped inside the statement so
// concurrent writers cannot produce out-of-order timestamps from clock skew
// between app instances.
func (s *PGStore) Save(ctx context.Context, rec *Record) error {
	const q = `
INSERT INTO subscriptions (user_id, email, name, subscription_id, checkout_session_id,
                           is_premium, status, cancel_at_billing_date, next_billing_at,
                           created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
ON CONFLICT (user_id) DO UPDATE SET
    email                  = EXCLUDED.email,
    name                   = EXCLUDED.name,
    subscription_id        = EXCLUDED.subscription_id,
    checkout_session_id    = EXCLUDED.checkout_session_id,
    is_premium             = EXCLUDED.is_premium,
    status                 = EXCLUDED.status,
    cancel_at_billing_date = EXCLUDED.cancel_at_billing_date,
    next_billing_at        = EXCLUDED.next_billing_at,
    updated_at             = now()
RETURNING created_at, updated_at`

	row := s.db.QueryRow(ctx, q,
		rec.UserID,
		rec.Email,
		rec.Name,
		rec.SubscriptionID,
		rec.CheckoutSessionID,
		rec.IsPremium,
		string(rec.Status),
		rec.CancelAtBilling,
		rec.NextBillingAt,
	)
	return row.Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (s *PGStore) ListCancellingDue(ctx context.Context, now time.Time) ([]Record, error) {
	const q = `SELECT ` + recordColumns + `
	           FROM subscriptions
	           WHERE cancel_at_billing_date
	             AND is_premium
	             AND next_billing_at IS NOT NULL
	             AND next_billing_at <= $1
	           ORDER BY next_billing_at`
	return s.scanMany(ctx, q, now)
}

func (s *PGStore) ListBillingDue(ctx context.Context, now time.Time) ([]Record, error) {
	const q = `SELECT ` + recordColumns + `
	           FROM subscriptions
	           WHERE subscription_id <> ''
	             AND next_billing_at IS NOT NULL
	             AND next_billing_at <= $1
	           ORDER BY next_billing_at`
	return s.scanMany(ctx, q, now)
}

func (s *PGStore) scanOne(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	err := row.Scan(
		&rec.UserID,
		&rec.Email,
		&rec.Name,
		&rec.SubscriptionID,
		&rec.CheckoutSessionID,
		&rec.IsPremium,
		&status,
		&rec.CancelAtBilling,
		&rec.NextBillingAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}

func (s *PGStore) scanMany(ctx context.Context, q string, now time.Time) ([]Record, error) {
	rows, err := s.db.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(
			&rec.UserID,
			&rec.Email,
			&rec.Name,
			&rec.SubscriptionID,
			&rec.CheckoutSessionID,
			&rec.IsPremium,
			&status,
			&rec.CancelAtBilling,
			&rec.NextBillingAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
