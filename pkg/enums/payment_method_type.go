package enums

// PaymentMethodType categorizes a saved payment reference.
type PaymentMethodType string

const (
	PaymentMethodTypeCard        PaymentMethodType = "card"
	PaymentMethodTypeBankAccount PaymentMethodType = "bank_account"
	PaymentMethodTypeWallet      PaymentMethodType = "wallet"
)

var paymentMethodTypes = set[PaymentMethodType]{PaymentMethodTypeCard, PaymentMethodTypeBankAccount, PaymentMethodTypeWallet}

func (p PaymentMethodType) String() string { return string(p) }

func (p PaymentMethodType) IsValid() bool { return paymentMethodTypes.has(p) }

func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	return paymentMethodTypes.parse("payment method type", value)
}
