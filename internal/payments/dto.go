package payments

import (
	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/google/uuid"
)

// PayInput requests a charge against an order.
type PayInput struct {
	OrderID      uuid.UUID
	AmountCents  int64
	ProviderType string
	SourceToken  string
	Actor        *outbox.ActorRef
}

// PayResult reports the provider decision and the row recorded for it.
type PayResult struct {
	Success     bool                       `json:"success"`
	Transaction *models.PaymentTransaction `json:"transaction"`
}

type RefundInput struct {
	TransactionID uuid.UUID
	Actor         *outbox.ActorRef
}

type PartialRefundInput struct {
	TransactionID uuid.UUID
	AmountCents   int64
	Actor         *outbox.ActorRef
}

type RetryInput struct {
	TransactionID uuid.UUID
	Actor         *outbox.ActorRef
}

// ListResult is one page of transactions, newest first.
type ListResult struct {
	Transactions []models.PaymentTransaction
	NextCursor   string
}

// BalanceSnapshot is the settlement view of an order.
type BalanceSnapshot struct {
	OrderID        uuid.UUID           `json:"orderId"`
	Currency       enums.Currency      `json:"currency"`
	TotalCents     int64               `json:"totalCents"`
	PaidCents      int64               `json:"paidCents"`
	RemainingCents int64               `json:"remainingCents"`
	IsFullyPaid    bool                `json:"isFullyPaid"`
	PaymentStatus  enums.PaymentStatus `json:"paymentStatus"`
}
