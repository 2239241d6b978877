package relay

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/registry"
)

// Message is what the relay hands to a topic.
type Message struct {
	Data        []byte
	OrderingKey string
	Attributes  map[string]string
}

// Topic publishes to a single Pub/Sub topic.
type Topic interface {
	// Publish blocks until the server acknowledges the message.
	Publish(ctx context.Context, msg Message) error
	// Resume re-enables a key after a failed publish paused it.
	Resume(orderingKey string)
}

// Topics hands out publishers by topic name.
type Topics interface {
	Ping(context.Context) error
	Topic(name string) Topic
	Stop()
}

// orderingKey keeps every event of one order in sequence for consumers.
// Events without an order fall back to their aggregate.
func orderingKey(row models.OutboxEvent, resolved *registry.ResolvedEvent) string {
	if evt, ok := resolved.Payload.(*payloads.PaymentEvent); ok && evt.OrderID != uuid.Nil {
		return "order:" + evt.OrderID.String()
	}
	return string(row.AggregateType) + ":" + row.AggregateID.String()
}

type orderedPublisherSource interface {
	Ping(context.Context) error
	OrderedPublisher(name string) *gcppubsub.Publisher
}

// PubSubTopics adapts the Pub/Sub client, caching one ordered publisher per
// topic so batching and ordering state survive across relay batches.
type PubSubTopics struct {
	client orderedPublisherSource

	mu   sync.Mutex
	pubs map[string]*gcppubsub.Publisher
}

func NewPubSubTopics(client orderedPublisherSource) *PubSubTopics {
	return &PubSubTopics{client: client, pubs: make(map[string]*gcppubsub.Publisher)}
}

func (t *PubSubTopics) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *PubSubTopics) Topic(name string) Topic {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pubs[name]
	if !ok {
		p = t.client.OrderedPublisher(name)
		if p == nil {
			return nil
		}
		t.pubs[name] = p
	}
	return gcpTopic{p}
}

// Stop flushes and stops every cached publisher.
func (t *PubSubTopics) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range t.pubs {
		p.Stop()
		delete(t.pubs, name)
	}
}

type gcpTopic struct {
	p *gcppubsub.Publisher
}

func (g gcpTopic) Publish(ctx context.Context, msg Message) error {
	_, err := g.p.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		OrderingKey: msg.OrderingKey,
		Attributes:  msg.Attributes,
	}).Get(ctx)
	return err
}

func (g gcpTopic) Resume(orderingKey string) {
	if orderingKey != "" {
		g.p.ResumePublish(orderingKey)
	}
}
