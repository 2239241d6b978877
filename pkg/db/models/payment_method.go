package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

// PaymentMethod is a user's saved payment reference. ReferenceToken is the
// provider-side vault token and never leaves the service.
type PaymentMethod struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	ProviderType   enums.ProviderType      `gorm:"column:provider_type;type:text;not null"`
	Type           enums.PaymentMethodType `gorm:"column:type;type:payment_method_type;not null;default:'card'"`
	Label          string                  `gorm:"column:label;type:text;not null;default:''"`
	ReferenceToken string                  `gorm:"column:reference_token;type:text;not null"`
	Last4          string                  `gorm:"column:last4;type:text;not null"`
	Brand          *string                 `gorm:"column:brand"`
	ExpMonth       *int                    `gorm:"column:exp_month"`
	ExpYear        *int                    `gorm:"column:exp_year"`
	IsDefault      bool                    `gorm:"column:is_default;not null;default:false"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *PaymentMethod) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
