package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/logger"
)

var ErrTxRequired = errors.New("transaction required")

// Service queues domain events in the caller's transaction so they commit or
// roll back together with the state change they describe.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit inserts one outbox row. The row id doubles as the envelope event id,
// which consumers use for deduplication.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	if event.EventType == "" || event.AggregateType == "" {
		return fmt.Errorf("outbox event type and aggregate type are required")
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("outbox %s event requires an aggregate id", event.EventType)
	}

	row, env, err := event.seal(uuid.New(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       env.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
