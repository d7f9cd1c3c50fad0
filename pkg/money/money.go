// Package money converts between API decimal amounts and persisted cents.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10000

// ToCents converts a two-decimal amount into integer cents, rejecting sub-cent precision.
func ToCents(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount.String())
	}
	return shifted.IntPart(), nil
}

// FromCents converts integer cents into a two-decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}

// WithinEpsilon reports whether a and b differ by at most epsilon.
func WithinEpsilon(a, b, epsilon decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(epsilon)
}

// NetOfCommission returns gross minus the commission expressed in basis
// points, rounded half-up to the cent.
func NetOfCommission(grossCents int64, commissionBPS int) int64 {
	gross := decimal.NewFromInt(grossCents)
	rate := decimal.NewFromInt(int64(bpsDenominator - commissionBPS)).Div(decimal.NewFromInt(bpsDenominator))
	return gross.Mul(rate).Round(0).IntPart()
}
