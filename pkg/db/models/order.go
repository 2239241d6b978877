package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

// Order is the settlement-relevant projection of a booked home-service order.
// TotalCents is fixed at creation; the remaining balance columns are maintained
// exclusively by settlement operations.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerUserID   uuid.UUID           `gorm:"column:customer_user_id;type:uuid;not null;index"`
	Currency         enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	BasePriceCents   int64               `gorm:"column:base_price_cents;not null"`
	TaxCents         int64               `gorm:"column:tax_cents;not null;default:0"`
	PlatformFeeCents int64               `gorm:"column:platform_fee_cents;not null;default:0"`
	DiscountCents    int64               `gorm:"column:discount_cents;not null;default:0"`
	TotalCents       int64               `gorm:"column:total_cents;not null"`
	PaidCents        int64               `gorm:"column:paid_cents;not null;default:0"`
	RemainingCents   int64               `gorm:"column:remaining_cents;not null"`
	IsFullyPaid      bool                `gorm:"column:is_fully_paid;not null;default:false"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:order_payment_status;not null;default:'unpaid'"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
