package paymentmethods

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-payments/pkg/db/models"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
)

const maxLabelLength = 64

// Service manages a user's saved payment references.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error)
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.PaymentMethod, error)
	Delete(ctx context.Context, userID, methodID uuid.UUID) error
}

// CreateInput captures a reference already vaulted at the provider.
type CreateInput struct {
	ProviderType   string
	Type           string
	Label          string
	ReferenceToken string
	Brand          string
	ExpMonth       *int
	ExpYear        *int
	IsDefault      bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	txRunner txRunner
}

// NewService constructs a payment method service.
func NewService(repo Repository, runner txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method repository required")
	}
	if runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{repo: repo, txRunner: runner}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment methods")
	}
	return rows, nil
}

// Create saves the reference. The user's first method always becomes the default.
func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.PaymentMethod, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	method, err := buildPaymentMethod(userID, input)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		existing, err := txRepo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		hasDefault := false
		for _, m := range existing {
			if m.IsDefault {
				hasDefault = true
				break
			}
		}
		method.IsDefault = input.IsDefault || !hasDefault
		if method.IsDefault && hasDefault {
			if err := txRepo.ClearDefault(ctx, userID); err != nil {
				return err
			}
		}
		return txRepo.Create(ctx, method)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment method")
	}
	return method, nil
}

// Delete removes a method owned by userID. Deleting the default promotes the
// oldest remaining method.
func (s *service) Delete(ctx context.Context, userID, methodID uuid.UUID) error {
	if userID == uuid.Nil || methodID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and method id are required")
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		method, err := txRepo.FindForUser(ctx, userID, methodID)
		if err != nil {
			return err
		}
		if err := txRepo.Delete(ctx, userID, methodID); err != nil {
			return err
		}
		if !method.IsDefault {
			return nil
		}
		remaining, err := txRepo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return nil
		}
		return txRepo.SetDefault(ctx, userID, remaining[0].ID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payment method")
	}
	return nil
}

func buildPaymentMethod(userID uuid.UUID, input CreateInput) (*models.PaymentMethod, error) {
	provider, err := enums.ParseProviderType(input.ProviderType)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported provider").
			WithDetails(map[string]any{"providerType": input.ProviderType})
	}

	methodType := enums.PaymentMethodTypeCard
	if raw := strings.TrimSpace(input.Type); raw != "" {
		methodType, err = enums.ParsePaymentMethodType(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method type")
		}
	}

	reference := strings.TrimSpace(input.ReferenceToken)
	if utf8.RuneCountInString(reference) < 4 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference token is required")
	}

	label := strings.TrimSpace(input.Label)
	if utf8.RuneCountInString(label) > maxLabelLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "label is too long")
	}

	if input.ExpMonth != nil && (*input.ExpMonth < 1 || *input.ExpMonth > 12) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exp_month must be between 1 and 12")
	}

	var brand *string
	if b := strings.TrimSpace(input.Brand); b != "" {
		brand = &b
	}

	return &models.PaymentMethod{
		UserID:         userID,
		ProviderType:   provider,
		Type:           methodType,
		Label:          label,
		ReferenceToken: reference,
		Last4:          MaskedLast4(reference),
		Brand:          brand,
		ExpMonth:       input.ExpMonth,
		ExpYear:        input.ExpYear,
	}, nil
}

// MaskedLast4 keeps the final four characters of a reference for display.
func MaskedLast4(reference string) string {
	runes := []rune(strings.TrimSpace(reference))
	if len(runes) <= 4 {
		return string(runes)
	}
	return string(runes[len(runes)-4:])
}
