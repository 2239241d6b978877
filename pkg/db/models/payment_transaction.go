package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

// PaymentTransaction is one payment attempt against an order. Rows are never
// deleted; refunds update Status/AmountCents in place and append to Notes while
// the immutable history lives in ledger_events.
type PaymentTransaction struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents           int64                   `gorm:"column:amount_cents;not null"`
	PaymentMethod         string                  `gorm:"column:payment_method;type:text;not null"`
	Status                enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	ProviderTransactionID *string                 `gorm:"column:provider_transaction_id"`
	RetryOfTransactionID  *uuid.UUID              `gorm:"column:retry_of_transaction_id;type:uuid"`
	TransactionDate       time.Time               `gorm:"column:transaction_date;not null"`
	Notes                 string                  `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	if t.TransactionDate.IsZero() {
		t.TransactionDate = time.Now().UTC()
	}
	return nil
}
