package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/money"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/idempotency"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/registry"
	"github.com/google/uuid"
)

// ConsumerName scopes the idempotency keys of the payment notification consumer.
const ConsumerName = "payment-notifications"

var notificationTypes = map[enums.OutboxEventType]enums.NotificationType{
	enums.EventPaymentSucceeded:         enums.NotificationTypePaymentReceived,
	enums.EventPaymentFailed:            enums.NotificationTypePaymentFailed,
	enums.EventPaymentRefunded:          enums.NotificationTypePaymentRefunded,
	enums.EventPaymentPartiallyRefunded: enums.NotificationTypePaymentPartiallyRefunded,
}

// Consumer turns settlement events from Pub/Sub into customer notifications.
type Consumer struct {
	emitter      Emitter
	subscription *pubsub.Subscriber
	events       *registry.EventRegistry
	guard        *idempotency.Guard
	logg         *logger.Logger
}

// NewConsumer builds a payment notification consumer.
func NewConsumer(emitter Emitter, subscription *pubsub.Subscriber, guard *idempotency.Guard, logg *logger.Logger) (*Consumer, error) {
	if emitter == nil {
		return nil, fmt.Errorf("notification emitter required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		emitter:      emitter,
		subscription: subscription,
		events:       registry.PaymentEvents(""),
		guard:        guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	}
	logCtx := c.logg.WithFields(ctx, fields)

	notificationType, ok := notificationTypes[eventType]
	if !ok {
		c.logg.Info(logCtx, "skipping non-payment event")
		return processResult{ack: true}
	}

	resolved, err := c.events.Decode(eventType, msg.Data)
	if err != nil {
		// a malformed body or an unknown version will not improve on redelivery
		c.logg.Error(logCtx, "failed to decode payment event", err)
		return processResult{ack: true}
	}
	eventID := uuid.MustParse(resolved.Envelope.EventID)
	logCtx = c.logg.WithField(logCtx, "event_id", resolved.Envelope.EventID)

	payload := resolved.Payload.(*payloads.PaymentEvent)
	if payload.CustomerUserID == uuid.Nil {
		c.logg.Warn(logCtx, "payment event without customer; dropping")
		return processResult{ack: true}
	}

	fresh, err := c.guard.Claim(ctx, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithOrderID(logCtx, payload.OrderID.String())
	logCtx = c.logg.WithTransactionID(logCtx, payload.TransactionID.String())

	if err := c.emitter.Emit(ctx, payload.CustomerUserID, notificationType, messageFor(eventType, payload)); err != nil {
		c.logg.Error(logCtx, "notification emit failed", err)
		_ = c.guard.Release(ctx, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "customer notified of payment event")
	return processResult{ack: true}
}

func messageFor(eventType enums.OutboxEventType, p *payloads.PaymentEvent) string {
	amount := func(cents int64) string {
		return fmt.Sprintf("%s %s", p.Currency, money.Format(cents))
	}
	switch eventType {
	case enums.EventPaymentSucceeded:
		if p.RemainingCents <= 0 {
			return fmt.Sprintf("Payment of %s received. Order %s is fully paid.", amount(p.AmountCents), p.OrderID)
		}
		return fmt.Sprintf("Payment of %s received for order %s. Remaining balance: %s.", amount(p.AmountCents), p.OrderID, amount(p.RemainingCents))
	case enums.EventPaymentFailed:
		if p.Reason != "" {
			return fmt.Sprintf("Payment of %s for order %s failed: %s.", amount(p.AmountCents), p.OrderID, p.Reason)
		}
		return fmt.Sprintf("Payment of %s for order %s failed.", amount(p.AmountCents), p.OrderID)
	case enums.EventPaymentRefunded:
		return fmt.Sprintf("%s for order %s was refunded.", amount(p.RefundedCents), p.OrderID)
	default:
		return fmt.Sprintf("%s of your payment for order %s was refunded. Remaining balance: %s.", amount(p.RefundedCents), p.OrderID, amount(p.RemainingCents))
	}
}
