package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

// LedgerEvent records an immutable money movement tied to a payment transaction.
// AmountCents is always positive; the event type carries the direction.
type LedgerEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	TransactionID uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null;index"`
	ActorUserID   *uuid.UUID            `gorm:"column:actor_user_id;type:uuid"`
	Type          enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	AmountCents   int64                 `gorm:"column:amount_cents;not null"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
