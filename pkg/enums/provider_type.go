package enums

import "strings"

// ProviderType selects the gateway integration for a payment attempt. It is
// persisted as text in payment_transactions.payment_method.
type ProviderType string

const (
	ProviderDeviceWallet ProviderType = "device_wallet"
	ProviderSquare       ProviderType = "square"
	ProviderMidtrans     ProviderType = "midtrans"
)

var providerTypes = set[ProviderType]{ProviderDeviceWallet, ProviderSquare, ProviderMidtrans}

func (p ProviderType) String() string { return string(p) }

func (p ProviderType) IsValid() bool { return providerTypes.has(p) }

// ParseProviderType ignores case and surrounding whitespace; older rows were
// written before discriminators were normalized.
func ParseProviderType(value string) (ProviderType, error) {
	return providerTypes.parse("provider type", strings.ToLower(strings.TrimSpace(value)))
}
