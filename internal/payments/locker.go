package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/google/uuid"
)

const (
	orderLockScope     = "order"
	defaultLockTTL     = 30 * time.Second
	defaultLockWait    = 5 * time.Second
	defaultLockBackoff = 50 * time.Millisecond
)

// OrderLocker serializes settlement work per order. The returned release
// function must be called exactly once.
type OrderLocker interface {
	Lock(ctx context.Context, orderID uuid.UUID) (func(), error)
}

func lockBusy(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order is being settled by another request").
		WithDetails(map[string]any{"orderId": orderID.String()})
}

// LocalOrderLocker is an in-process keyed mutex.
type LocalOrderLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalOrderLocker() *LocalOrderLocker {
	return &LocalOrderLocker{slots: make(map[uuid.UUID]*lockSlot)}
}

func (l *LocalOrderLocker) Lock(ctx context.Context, orderID uuid.UUID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[orderID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[orderID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(orderID, slot)
		return nil, lockBusy(orderID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.drop(orderID, slot)
		})
	}, nil
}

func (l *LocalOrderLocker) drop(orderID uuid.UUID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, orderID)
	}
}

// lockStore is the subset of the Redis client used for order locks.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisOrderLocker holds a SETNX lease per order so replicas do not settle the
// same order concurrently.
type RedisOrderLocker struct {
	store   lockStore
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
	logg    *logger.Logger
}

// NewRedisOrderLocker builds a lease-based locker. ttl must outlive the
// provider timeout or two replicas may both proceed.
func NewRedisOrderLocker(store lockStore, ttl, wait time.Duration, logg *logger.Logger) (*RedisOrderLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for order lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &RedisOrderLocker{
		store:   store,
		ttl:     ttl,
		wait:    wait,
		backoff: defaultLockBackoff,
		logg:    logg,
	}, nil
}

func (l *RedisOrderLocker) Lock(ctx context.Context, orderID uuid.UUID) (func(), error) {
	key := l.store.LockKey(orderLockScope, orderID.String())
	owner := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.backoff)
	defer ticker.Stop()

	for {
		ok, err := l.store.SetNX(waitCtx, key, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("acquire order lock: %w", err), "order lock unavailable")
		}
		if ok {
			return l.releaser(key, owner, orderID), nil
		}
		select {
		case <-waitCtx.Done():
			return nil, lockBusy(orderID)
		case <-ticker.C:
		}
	}
}

func (l *RedisOrderLocker) releaser(key, owner string, orderID uuid.UUID) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := l.store.DeleteIfOwner(ctx, key, owner)
			if l.logg == nil {
				return
			}
			logCtx := l.logg.WithOrderID(ctx, orderID.String())
			if err != nil {
				l.logg.Error(logCtx, "release order lock", err)
				return
			}
			if !released {
				l.logg.Warn(logCtx, "order lock expired before release")
			}
		})
	}
}
