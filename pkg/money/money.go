// Package money holds the fixed-point helpers shared by commission, order and
// payment math. Amounts are decimal values with two fractional digits.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for currency amounts.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to two decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// Parse reads a decimal amount and rejects more than two fractional digits.
func Parse(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if !value.Equal(Round(value)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", raw, Scale)
	}
	return value, nil
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// AtLeastPercent reports whether amount >= pct% of base.
func AtLeastPercent(amount, base decimal.Decimal, pct int) bool {
	return amount.GreaterThanOrEqual(Percent(base, decimal.NewFromInt(int64(pct))))
}

// ToMinorUnits converts an amount into integer cents for gateway APIs.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return Round(amount).Mul(hundred).IntPart()
}

// FromMinorUnits converts integer cents back into a decimal amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -Scale)
}

// Format renders the amount with exactly two decimals, as used in signatures.
func Format(amount decimal.Decimal) string {
	return Round(amount).StringFixed(Scale)
}
