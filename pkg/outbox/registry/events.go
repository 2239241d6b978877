// Package registry knows every event the payments service emits: which
// aggregate it belongs to, which topic carries it and how to decode it.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	Version       int
	newPayload    func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// PaymentEvents lists the settlement outcomes. Each carries a
// payloads.PaymentEvent keyed by the payment transaction.
func PaymentEvents(topic string) *EventRegistry {
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventPaymentSucceeded,
		enums.EventPaymentFailed,
		enums.EventPaymentRefunded,
		enums.EventPaymentPartiallyRefunded,
	} {
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: enums.AggregatePaymentTransaction,
			Topic:         topic,
			Version:       outbox.CurrentVersion,
			newPayload:    func() any { return &payloads.PaymentEvent{} },
		}
	}
	return reg
}

// NewEventRegistry is PaymentEvents for the publisher, which cannot run
// without a topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.PaymentsTopic == "" {
		return nil, fmt.Errorf("payments topic is required")
	}
	return PaymentEvents(cfg.PaymentsTopic), nil
}

// Topics returns the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, desc := range r.entries {
		if desc.Topic != "" && !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks an outbox row against its descriptor before publishing.
// Every error it returns is permanent.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("%w %s", ErrUnknownEvent, row.EventType))
	}
	if desc.AggregateType != row.AggregateType {
		return nil, Permanent(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(fmt.Errorf("missing aggregate_id"))
	}
	return decode(desc, row.Payload)
}

// Decode parses a delivered message body for a consumer.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, body []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("%w %s", ErrUnknownEvent, eventType))
	}
	return decode(desc, body)
}

func decode(desc EventDescriptor, body []byte) (*ResolvedEvent, error) {
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if env.Version != desc.Version {
		return nil, Permanent(fmt.Errorf("%s: unsupported payload version %d", desc.EventType, env.Version))
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		return nil, Permanent(fmt.Errorf("%s: invalid event id %q", desc.EventType, env.EventID))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("payload missing for %s", desc.EventType))
	}

	payload := desc.newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", desc.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
