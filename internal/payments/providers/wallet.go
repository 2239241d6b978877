package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-payments/pkg/enums"
)

// DeviceWallet settles against the customer's device wallet. The wallet has no
// remote gateway, so every charge within a live context is approved.
type DeviceWallet struct{}

// NewDeviceWallet returns the device wallet provider.
func NewDeviceWallet() *DeviceWallet {
	return &DeviceWallet{}
}

func (w *DeviceWallet) Type() enums.ProviderType {
	return enums.ProviderDeviceWallet
}

func (w *DeviceWallet) ProcessPayment(ctx context.Context, req PaymentRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.AmountCents <= 0 {
		return Declined("amount must be positive"), nil
	}
	return Approved("wallet_" + uuid.NewString()), nil
}
