// Package ledger is the append-only record of money moving on an order.
// Charges add to the collected balance; refunds and partial refunds take
// from it. Folding an order's events must always reproduce its paid amount.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

var (
	ErrOrderRequired       = errors.New("ledger: order id required")
	ErrTransactionRequired = errors.New("ledger: transaction id required")
	ErrNonPositiveAmount   = errors.New("ledger: amount must be positive")
)

type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	FoldPaid(ctx context.Context, orderID uuid.UUID) (int64, error)
	OrdersTouchedSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// RecordLedgerEventInput is one money movement. AmountCents is always the
// magnitude; Type carries the direction.
type RecordLedgerEventInput struct {
	OrderID       uuid.UUID
	TransactionID uuid.UUID
	ActorUserID   *uuid.UUID
	Type          enums.LedgerEventType
	AmountCents   int64
	Metadata      json.RawMessage
}

func (in RecordLedgerEventInput) validate() error {
	switch {
	case in.OrderID == uuid.Nil:
		return ErrOrderRequired
	case in.TransactionID == uuid.Nil:
		return ErrTransactionRequired
	case !in.Type.IsValid():
		return fmt.Errorf("ledger: unknown event type %q", in.Type)
	case in.AmountCents <= 0:
		return ErrNonPositiveAmount
	}
	return nil
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// RecordEvent appends inside tx when one is given, so the event commits or
// rolls back with the balance change it describes.
func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	event := &models.LedgerEvent{
		OrderID:       input.OrderID,
		TransactionID: input.TransactionID,
		ActorUserID:   input.ActorUserID,
		Type:          input.Type,
		AmountCents:   input.AmountCents,
		Metadata:      input.Metadata,
	}
	if err := s.repo.WithTx(tx).Append(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// FoldPaid is charges minus reversals over the order's whole ledger.
func (s *service) FoldPaid(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if orderID == uuid.Nil {
		return 0, ErrOrderRequired
	}
	totals, err := s.repo.Totals(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return totals.Net(), nil
}

func (s *service) OrdersTouchedSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	return s.repo.OrderIDsSince(ctx, since)
}
