package enums

// Currency is an ISO 4217 code. Amounts are always stored in minor units.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyIDR Currency = "IDR"
)

var currencies = set[Currency]{CurrencyUSD, CurrencyIDR}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }
