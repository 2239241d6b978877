package providers

import (
	"context"
	"fmt"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/midtrans"
	"github.com/angelmondragon/homeserve-payments/pkg/square"
)

// FromConfig builds the registry for the providers enabled in configuration.
// Gateways without credentials are registered in simulation mode.
func FromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Registry, error) {
	var enabled []Provider
	for _, raw := range cfg.Payments.Providers {
		t, err := enums.ParseProviderType(raw)
		if err != nil {
			return nil, err
		}
		switch t {
		case enums.ProviderDeviceWallet:
			enabled = append(enabled, NewDeviceWallet())
		case enums.ProviderSquare:
			if cfg.Square.Simulated() {
				logg.Warn(ctx, "square provider running in simulation mode")
				enabled = append(enabled, NewSquare(nil))
				continue
			}
			client, err := square.NewClient(ctx, cfg.Square, logg)
			if err != nil {
				return nil, fmt.Errorf("square client: %w", err)
			}
			enabled = append(enabled, NewSquare(client))
		case enums.ProviderMidtrans:
			if cfg.Midtrans.Simulated() {
				logg.Warn(ctx, "midtrans provider running in simulation mode")
				enabled = append(enabled, NewMidtrans(nil))
				continue
			}
			client, err := midtrans.NewClient(ctx, cfg.Midtrans, logg)
			if err != nil {
				return nil, fmt.Errorf("midtrans client: %w", err)
			}
			enabled = append(enabled, NewMidtrans(client))
		}
	}
	return NewRegistry(enabled...)
}
