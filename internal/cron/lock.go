package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// Locker hands out at most one lease across all cron worker replicas.
// TryLock returns a nil Lease, and no error, when another replica holds it.
type Locker interface {
	TryLock(ctx context.Context) (Lease, error)
}

// Lease is a held lock. Releasing after the TTL lapsed is harmless.
type Lease interface {
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock takes the lease with SET NX and a random owner token.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryLock(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, nil
	}
	return &redisLease{lock: l, token: token}, nil
}

type redisLease struct {
	lock  *RedisLock
	token string
}

// Release only deletes the key while it still carries this lease's token.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.lock.store.DeleteIfOwner(ctx, l.lock.key, l.token); err != nil {
		return fmt.Errorf("release %s: %w", l.lock.key, err)
	}
	return nil
}
