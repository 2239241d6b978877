package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/square"
)

type squarePayments interface {
	CreatePayment(ctx context.Context, charge square.Charge) (*sq.Payment, error)
}

// Square charges cards and bank accounts through the Square Payments API.
// With a nil client it runs in simulation mode and approves every charge.
type Square struct {
	client squarePayments
}

// NewSquare builds the Square provider; pass nil to simulate.
func NewSquare(client squarePayments) *Square {
	return &Square{client: client}
}

func (s *Square) Type() enums.ProviderType {
	return enums.ProviderSquare
}

func (s *Square) ProcessPayment(ctx context.Context, req PaymentRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.client == nil {
		return Approved("sq_sim_" + uuid.NewString()), nil
	}
	source := strings.TrimSpace(req.SourceToken)
	if source == "" {
		return Declined("square payment source required"), nil
	}

	payment, err := s.client.CreatePayment(ctx, square.Charge{
		AmountCents:    req.AmountCents,
		Currency:       string(req.Currency),
		SourceID:       source,
		IdempotencyKey: req.IdempotencyKey,
		OrderRef:       req.OrderID.String(),
		Note:           fmt.Sprintf("order %s", req.OrderID),
	})
	if err != nil {
		// 4xx responses are declines; anything else is a transport failure.
		switch pkgerrors.CodeOf(err) {
		case pkgerrors.CodeValidation, pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
			return Declined(err.Error()), nil
		default:
			return Result{}, err
		}
	}
	if !square.Settled(payment) {
		return Declined(fmt.Sprintf("square payment status %s", square.Status(payment))), nil
	}
	ref := ""
	if id := payment.GetID(); id != nil {
		ref = *id
	}
	return Approved(ref), nil
}
