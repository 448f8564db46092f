package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard detects redelivered webhook events. Processing is idempotent
// either way, so the guard only saves wasted work; callers treat guard
// failures as "not seen" and continue.
type ReplayGuard interface {
	// MarkProcessed records the event ID and reports whether this was the
	// first time it was seen.
	MarkProcessed(ctx context.Context, eventID string) (first bool, err error)

	// Forget releases an event ID marked by MarkProcessed, so a redelivery
	// of an event whose processing failed is not skipped.
	Forget(ctx context.Context, eventID string) error
}

const replayKeyPrefix = "subsync:webhook:"

type redisReplayGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisReplayGuard returns a ReplayGuard backed by Redis SETNX with a TTL.
// The TTL should comfortably exceed the provider's redelivery window.
func NewRedisReplayGuard(client redis.UniversalClient, ttl time.Duration) ReplayGuard {
	if client == nil {
		panic("billing: RedisReplayGuard requires a redis client")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisReplayGuard{client: client, ttl: ttl}
}

func (g *redisReplayGuard) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	first, err := g.client.SetNX(ctx, replayKeyPrefix+eventID, 1, g.ttl).Result()
	if err != nil {
		return false, errors.Join(errors.New("replay guard unavailable"), err)
	}
	return first, nil
}

func (g *redisReplayGuard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := g.client.Del(ctx, replayKeyPrefix+eventID).Err(); err != nil {
		return errors.Join(errors.New("replay guard unavailable"), err)
	}
	return nil
}

type memoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemoryReplayGuard returns an in-process ReplayGuard for tests and
// single-instance development setups.
func NewMemoryReplayGuard(ttl time.Duration) ReplayGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryReplayGuard{seen: make(map[string]time.Time), ttl: ttl}
}

func (g *memoryReplayGuard) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for id, expires := range g.seen {
		if now.After(expires) {
			delete(g.seen, id)
		}
	}

	if _, ok := g.seen[eventID]; ok {
		return false, nil
	}
	g.seen[eventID] = now.Add(g.ttl)
	return true, nil
}

func (g *memoryReplayGuard) Forget(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}
