package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/idempotency"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/registry"
	"github.com/google/uuid"
)

type memoryStore struct {
	values map[string]string
	setErr error
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	return s.values[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = "1"
	return true, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "hs:idempotency:" + scope + ":" + id
}

type emitCall struct {
	userID  uuid.UUID
	kind    enums.NotificationType
	message string
}

type recordingEmitter struct {
	calls []emitCall
	err   error
}

func (e *recordingEmitter) Emit(_ context.Context, userID uuid.UUID, kind enums.NotificationType, message string) error {
	if e.err != nil {
		return e.err
	}
	e.calls = append(e.calls, emitCall{userID: userID, kind: kind, message: message})
	return nil
}

func newTestConsumer(t *testing.T, emitter Emitter, store *memoryStore) *Consumer {
	t.Helper()
	guard, err := idempotency.NewGuard(store, ConsumerName, time.Hour)
	if err != nil {
		t.Fatalf("idempotency guard: %v", err)
	}
	return &Consumer{
		emitter: emitter,
		events:  registry.PaymentEvents(""),
		guard:   guard,
		logg:    logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
	}
}

func paymentMessage(t *testing.T, eventType enums.OutboxEventType, version int, payload payloads.PaymentEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "msg-1",
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerEmitsOncePerEvent(t *testing.T) {
	emitter := &recordingEmitter{}
	store := &memoryStore{values: map[string]string{}}
	consumer := newTestConsumer(t, emitter, store)
	customer := uuid.New()

	msg := paymentMessage(t, enums.EventPaymentSucceeded, 1, payloads.PaymentEvent{
		OrderID:        uuid.New(),
		TransactionID:  uuid.New(),
		CustomerUserID: customer,
		Currency:       enums.CurrencyUSD,
		AmountCents:    6000,
		RemainingCents: 4000,
	})

	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack on redelivery, got %+v", res)
	}
	if len(emitter.calls) != 1 {
		t.Fatalf("expected a single emit, got %d", len(emitter.calls))
	}
	call := emitter.calls[0]
	if call.userID != customer || call.kind != enums.NotificationTypePaymentReceived {
		t.Fatalf("unexpected emit %+v", call)
	}
	if !strings.Contains(call.message, "USD 60.00") || !strings.Contains(call.message, "USD 40.00") {
		t.Fatalf("unexpected message %q", call.message)
	}
}

func TestConsumerRefundMessagesUseRefundedAmount(t *testing.T) {
	emitter := &recordingEmitter{}
	consumer := newTestConsumer(t, emitter, &memoryStore{values: map[string]string{}})

	msg := paymentMessage(t, enums.EventPaymentPartiallyRefunded, 1, payloads.PaymentEvent{
		OrderID:        uuid.New(),
		CustomerUserID: uuid.New(),
		Currency:       enums.CurrencyUSD,
		AmountCents:    4000,
		RefundedCents:  2000,
		RemainingCents: 6000,
	})
	consumer.process(context.Background(), msg)

	if len(emitter.calls) != 1 || emitter.calls[0].kind != enums.NotificationTypePaymentPartiallyRefunded {
		t.Fatalf("unexpected calls %+v", emitter.calls)
	}
	if !strings.HasPrefix(emitter.calls[0].message, "USD 20.00 of your payment") {
		t.Fatalf("unexpected message %q", emitter.calls[0].message)
	}
}

func TestConsumerSkipsUnknownAndMalformed(t *testing.T) {
	emitter := &recordingEmitter{}
	consumer := newTestConsumer(t, emitter, &memoryStore{values: map[string]string{}})

	unknown := &pubsub.Message{ID: "m", Data: []byte("{}"), Attributes: map[string]string{"event_type": "order_created"}}
	if res := consumer.process(context.Background(), unknown); !res.ack {
		t.Fatalf("expected ack for unrelated event")
	}

	garbage := &pubsub.Message{ID: "m", Data: []byte("not-json"), Attributes: map[string]string{"event_type": string(enums.EventPaymentFailed)}}
	if res := consumer.process(context.Background(), garbage); !res.ack {
		t.Fatalf("expected ack for malformed envelope")
	}

	future := paymentMessage(t, enums.EventPaymentFailed, 2, payloads.PaymentEvent{CustomerUserID: uuid.New()})
	if res := consumer.process(context.Background(), future); !res.ack {
		t.Fatalf("expected ack for unknown payload version")
	}

	if len(emitter.calls) != 0 {
		t.Fatalf("expected no emits, got %d", len(emitter.calls))
	}
}

func TestConsumerNacksAndReleasesKeyOnEmitFailure(t *testing.T) {
	emitter := &recordingEmitter{err: errors.New("db down")}
	store := &memoryStore{values: map[string]string{}}
	consumer := newTestConsumer(t, emitter, store)

	msg := paymentMessage(t, enums.EventPaymentRefunded, 1, payloads.PaymentEvent{CustomerUserID: uuid.New(), RefundedCents: 100})
	if res := consumer.process(context.Background(), msg); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
	if len(store.values) != 0 {
		t.Fatalf("expected idempotency key released, got %v", store.values)
	}

	emitter.err = nil
	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack on redelivery, got %+v", res)
	}
	if len(emitter.calls) != 1 {
		t.Fatalf("expected emit on redelivery, got %d", len(emitter.calls))
	}
}

func TestConsumerNacksOnIdempotencyError(t *testing.T) {
	consumer := newTestConsumer(t, &recordingEmitter{}, &memoryStore{values: map[string]string{}, setErr: errors.New("redis down")})
	msg := paymentMessage(t, enums.EventPaymentSucceeded, 1, payloads.PaymentEvent{CustomerUserID: uuid.New()})
	if res := consumer.process(context.Background(), msg); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
}

func TestNewConsumerValidatesDependencies(t *testing.T) {
	if _, err := NewConsumer(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing emitter")
	}
	if _, err := NewConsumer(&recordingEmitter{}, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing subscription")
	}
}
