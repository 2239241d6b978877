package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes order reads and creation for the settlement surface.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// CreateOrderInput carries the price components fixed at booking time.
type CreateOrderInput struct {
	CustomerUserID   uuid.UUID
	Currency         enums.Currency
	BasePriceCents   int64
	TaxCents         int64
	PlatformFeeCents int64
	DiscountCents    int64
}

type service struct {
	repo Repository
}

// NewService builds the orders service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := NewOrder(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// NewOrder computes the fixed total and an unpaid balance from the price components.
func NewOrder(input CreateOrderInput) (*models.Order, error) {
	if input.CustomerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer user id required")
	}
	if input.BasePriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base price must be positive")
	}
	if input.TaxCents < 0 || input.PlatformFeeCents < 0 || input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price components must not be negative")
	}
	total := input.BasePriceCents + input.TaxCents + input.PlatformFeeCents - input.DiscountCents
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order total")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	return &models.Order{
		CustomerUserID:   input.CustomerUserID,
		Currency:         currency,
		BasePriceCents:   input.BasePriceCents,
		TaxCents:         input.TaxCents,
		PlatformFeeCents: input.PlatformFeeCents,
		DiscountCents:    input.DiscountCents,
		TotalCents:       total,
		PaidCents:        0,
		RemainingCents:   total,
		IsFullyPaid:      false,
		PaymentStatus:    enums.PaymentStatusUnpaid,
	}, nil
}
