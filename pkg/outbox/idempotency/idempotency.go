// Package idempotency stops a Pub/Sub consumer from acting twice on a
// redelivered event. Pub/Sub is at-least-once; the guard makes handling
// effectively once per TTL window.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

type store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard records claimed event ids for one consumer under
// hs:idempotency:evt:<consumer>:<event_id>.
type Guard struct {
	store    store
	consumer string
	ttl      time.Duration
	now      func() time.Time
}

func NewGuard(s store, consumer string, ttl time.Duration) (*Guard, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, ErrConsumerRequired
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: s, consumer: consumer, ttl: ttl, now: time.Now}, nil
}

// Claim returns true when the caller is first to see eventID and should
// handle it, false for a duplicate.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, ErrEventIDRequired
	}
	return g.store.SetNX(ctx, g.key(eventID), g.now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim so a redelivery is handled again. Call it when
// handling failed after Claim succeeded.
func (g *Guard) Release(ctx context.Context, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return ErrEventIDRequired
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *Guard) key(eventID uuid.UUID) string {
	return g.store.IdempotencyKey("evt:"+g.consumer, eventID.String())
}
