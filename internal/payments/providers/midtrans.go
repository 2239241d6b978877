package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-payments/pkg/errors"
	"github.com/angelmondragon/homeserve-payments/pkg/midtrans"
)

type midtransCharges interface {
	CreateCharge(ctx context.Context, params midtrans.ChargeParams) (*midtrans.Charge, error)
}

// Midtrans opens Snap transactions for IDR orders. An issued Snap token is
// treated as an accepted charge and the Midtrans order ref becomes the provider
// transaction id. With a nil client it runs in simulation mode.
type Midtrans struct {
	client midtransCharges
}

// NewMidtrans builds the Midtrans provider; pass nil to simulate.
func NewMidtrans(client midtransCharges) *Midtrans {
	return &Midtrans{client: client}
}

func (m *Midtrans) Type() enums.ProviderType {
	return enums.ProviderMidtrans
}

func (m *Midtrans) ProcessPayment(ctx context.Context, req PaymentRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.Currency != enums.CurrencyIDR {
		return Declined("midtrans supports IDR only"), nil
	}
	// gross_amount is whole rupiah; sen are not accepted
	if req.AmountCents%100 != 0 {
		return Declined("midtrans amount must be whole rupiah"), nil
	}
	ref := orderRef(req.OrderID)
	if m.client == nil {
		return Approved(ref), nil
	}
	charge, err := m.client.CreateCharge(ctx, midtrans.ChargeParams{
		OrderRef:    ref,
		GrossAmount: req.AmountCents / 100,
		ItemName:    fmt.Sprintf("Order %s", req.OrderID),
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return Declined(err.Error()), nil
		}
		return Result{}, err
	}
	// The token only opens the Snap payment page. Settlement is final once the
	// Midtrans status API or notification webhook confirms the order ref.
	// TODO: record Snap charges as pending until the notification webhook settles them.
	return Approved(charge.OrderRef), nil
}

// orderRef is unique per attempt because Midtrans rejects reused order ids.
func orderRef(orderID uuid.UUID) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("hs-%s-%s", orderID, suffix)
}
