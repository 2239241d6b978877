package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/redis"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastValue   any
	lastTTL     time.Duration
	deleted     []string
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastValue = value
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "hs:idempotency:" + scope + ":" + id
}

func TestClaimFirstDelivery(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	guard, err := NewGuard(store, " payment-notifications ", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	guard.now = func() time.Time { return time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC) }

	eventID := uuid.New()
	fresh, err := guard.Claim(context.Background(), eventID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !fresh {
		t.Fatal("first delivery should be fresh")
	}
	if want := "hs:idempotency:evt:payment-notifications:" + eventID.String(); store.lastKey != want {
		t.Fatalf("unexpected key %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}
	if store.lastValue != "2026-04-01T08:00:00Z" {
		t.Fatalf("unexpected claim value %v", store.lastValue)
	}
}

func TestClaimDuplicateAndErrors(t *testing.T) {
	store := &fakeStore{setNXResult: false}
	guard, err := NewGuard(store, "payment-notifications", time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	fresh, err := guard.Claim(context.Background(), uuid.New())
	if err != nil || fresh {
		t.Fatalf("expected duplicate, got fresh=%v err=%v", fresh, err)
	}

	if _, err := guard.Claim(context.Background(), uuid.Nil); !errors.Is(err, ErrEventIDRequired) {
		t.Fatalf("expected ErrEventIDRequired, got %v", err)
	}

	store.setNXError = errors.New("redis down")
	if _, err := guard.Claim(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestRelease(t *testing.T) {
	store := &fakeStore{}
	guard, err := NewGuard(store, "payment-notifications", time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	eventID := uuid.New()
	if err := guard.Release(context.Background(), eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "hs:idempotency:evt:payment-notifications:"+eventID.String() {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
	if err := guard.Release(context.Background(), uuid.Nil); !errors.Is(err, ErrEventIDRequired) {
		t.Fatalf("expected ErrEventIDRequired, got %v", err)
	}
}

func TestNewGuardValidates(t *testing.T) {
	if _, err := NewGuard(nil, "c", time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewGuard(&fakeStore{}, "  ", time.Hour); !errors.Is(err, ErrConsumerRequired) {
		t.Fatalf("expected ErrConsumerRequired, got %v", err)
	}
	if _, err := NewGuard(&fakeStore{}, "c", -time.Second); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestGuardAgainstRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{Address: srv.Addr()}, nil)
	if err != nil {
		t.Fatalf("redis.New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	guard, err := NewGuard(client, "payment-notifications", time.Minute)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()

	if fresh, err := guard.Claim(ctx, eventID); err != nil || !fresh {
		t.Fatalf("first claim: fresh=%v err=%v", fresh, err)
	}
	if fresh, err := guard.Claim(ctx, eventID); err != nil || fresh {
		t.Fatalf("redelivery: fresh=%v err=%v", fresh, err)
	}

	srv.FastForward(2 * time.Minute)
	if fresh, err := guard.Claim(ctx, eventID); err != nil || !fresh {
		t.Fatalf("claim after ttl: fresh=%v err=%v", fresh, err)
	}

	if err := guard.Release(ctx, eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if fresh, err := guard.Claim(ctx, eventID); err != nil || !fresh {
		t.Fatalf("claim after release: fresh=%v err=%v", fresh, err)
	}
}
