package payloads

import (
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/google/uuid"
)

// PaymentEvent is the shared payload for every settlement outcome published
// to the payments topic. Balance fields reflect the order after the change.
type PaymentEvent struct {
	OrderID        uuid.UUID               `json:"order_id"`
	TransactionID  uuid.UUID               `json:"transaction_id"`
	CustomerUserID uuid.UUID               `json:"customer_user_id"`
	Provider       enums.ProviderType      `json:"provider"`
	Currency       enums.Currency          `json:"currency"`
	AmountCents    int64                   `json:"amount_cents"`
	Status         enums.TransactionStatus `json:"status"`
	PaymentStatus  enums.PaymentStatus     `json:"payment_status"`
	PaidCents      int64                   `json:"paid_cents"`
	RemainingCents int64                   `json:"remaining_cents"`
	RefundedCents  int64                   `json:"refunded_cents,omitempty"`
	RetryOf        *uuid.UUID              `json:"retry_of,omitempty"`
	Reason         string                  `json:"reason,omitempty"`
}
