// Package relay moves committed outbox rows onto Pub/Sub. Rows are claimed
// inside a transaction, published with the order id as ordering key, and
// either marked published, left for another attempt, or dead-lettered.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/metrics"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	fallbackTimeout     = 15 * time.Second
	idleBackoffCeiling  = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type Params struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Rows        rowStore
	DeadLetters deadLetters
	Registry    resolver
	Topics      Topics
	Metrics     *metrics.RelayMetrics
	Now         func() time.Time
}

// Relay drains the outbox table.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	rows        rowStore
	dlq         deadLetters
	registry    resolver
	topics      Topics
	metrics     *metrics.RelayMetrics
	now         func() time.Time
	batchSize   int
	maxAttempts int
	poll        time.Duration
	timeout     time.Duration
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("relay: logger is required")
	case p.DB == nil:
		return nil, errors.New("relay: database is required")
	case p.Rows == nil:
		return nil, errors.New("relay: outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("relay: dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("relay: event registry is required")
	case p.Topics == nil:
		return nil, errors.New("relay: topics are required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		rows:        p.Rows,
		dlq:         p.DeadLetters,
		registry:    p.Registry,
		topics:      p.Topics,
		metrics:     p.Metrics,
		now:         p.Now,
		batchSize:   orDefault(p.Config.BatchSize, fallbackBatchSize),
		maxAttempts: orDefault(p.Config.MaxAttempts, fallbackMaxAttempts),
		poll:        fallbackPoll,
		timeout:     fallbackTimeout,
	}
	if p.Config.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	}
	if p.Config.PublishTimeout > 0 {
		r.timeout = p.Config.PublishTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Run loops until ctx is cancelled. A full batch is followed immediately by
// another; an empty one waits a poll interval; a failed one backs off.
func (r *Relay) Run(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{{"database", r.db.Ping}, {"pubsub", r.topics.Ping}} {
		if err := dep.ping(ctx); err != nil {
			r.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = min(wait*2, idleBackoffCeiling)
		case claimed > 0:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}

		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

// Drain handles one batch and reports how many rows it claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		r.metrics.ObserveBatch(claimed)

		for _, row := range rows {
			outcome, err := r.step(ctx, tx, row)
			if err != nil {
				return err
			}
			r.metrics.IncEvent(string(row.EventType), outcome)
		}
		return nil
	})
	return claimed, err
}

// step publishes one row and records the result on it.
func (r *Relay) step(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return metrics.RelayDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"topic":    resolved.Descriptor.Topic,
		"event_id": resolved.Envelope.EventID,
	})

	if err := r.publish(ctx, row, resolved); err != nil {
		var permanent registry.NonRetryableError
		if errors.As(err, &permanent) {
			return metrics.RelayDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
		}
		if row.AttemptCount+1 >= r.maxAttempts {
			err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
			return metrics.RelayDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, err)
		}

		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox publish failed, will retry")
		if markErr := r.rows.MarkFailedTx(tx, row.ID, err); markErr != nil {
			return "", fmt.Errorf("mark outbox %s failed: %w", row.ID, markErr)
		}
		return metrics.RelayRetried, nil
	}

	if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
		return "", fmt.Errorf("mark outbox %s published: %w", row.ID, err)
	}
	r.logg.Info(ctx, "outbox event published")
	return metrics.RelayPublished, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")

	entry := outbox.DeadLetter(row, reason, cause, r.now())
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq for %s: %w", row.ID, err)
	}
	if err := r.rows.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark outbox %s terminal: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := r.topics.Topic(resolved.Descriptor.Topic)
	if topic == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", resolved.Descriptor.Topic))
	}

	msg := Message{
		Data:        row.Payload,
		OrderingKey: orderingKey(row, resolved),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := topic.Publish(publishCtx, msg); err != nil {
		topic.Resume(msg.OrderingKey)
		return err
	}
	return nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter adds up to a quarter of d so several relays do not poll in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}
