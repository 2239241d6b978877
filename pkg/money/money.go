// Package money converts between decimal amounts at the API boundary and the
// integer minor units stored in the database.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitDigits is the number of fractional digits carried by supported currencies.
const MinorUnitDigits = 2

var (
	ErrTooPrecise  = errors.New("amount has more than two decimal places")
	ErrOutOfRange  = errors.New("amount out of range")
	hundred        = decimal.NewFromInt(100)
	maxMinorAmount = decimal.NewFromInt(1 << 53)
)

// ToCents converts a decimal amount into minor units without rounding.
func ToCents(amount decimal.Decimal) (int64, error) {
	scaled := amount.Mul(hundred)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if scaled.Abs().GreaterThan(maxMinorAmount) {
		return 0, ErrOutOfRange
	}
	return scaled.IntPart(), nil
}

// ParseCents parses a decimal string such as "60.50" into minor units.
func ParseCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount: %w", err)
	}
	return ToCents(amount)
}

// FromCents renders minor units as a decimal with two fractional digits.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MinorUnitDigits)
}

// Format renders minor units as a fixed two-digit string.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(MinorUnitDigits)
}
