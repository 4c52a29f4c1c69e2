package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places persisted for currency amounts.
const Scale = 2

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "NPR"

// Round rounds an amount half-up to the persisted scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse converts a human-readable amount like "1000" or "1,250.50" to a decimal
// rounded to the persisted scale.
func Parse(amountStr string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(amountStr, ",", ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}

	return Round(d), nil
}

// MustParse is Parse for constants and tests; it panics on bad input.
func MustParse(amountStr string) decimal.Decimal {
	d, err := Parse(amountStr)
	if err != nil {
		panic(err)
	}
	return d
}

// IsPositive reports whether the rounded amount is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return Round(d).IsPositive()
}

// ApplyRate multiplies an amount by a fractional rate (0.15 for 15%) and rounds
// the product. Rounding happens once, after the multiplication.
func ApplyRate(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// SplitTax returns the tax withheld at source and the net amount for a gross
// amount at the given rate. tax + net always equals the rounded gross.
func SplitTax(gross, rate decimal.Decimal) (tax, net decimal.Decimal) {
	gross = Round(gross)
	tax = ApplyRate(gross, rate)
	net = gross.Sub(tax)
	return tax, net
}

// Sum adds amounts and rounds the total.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return Round(total)
}

// Format renders an amount with exactly two decimals, e.g. "6000.00".
func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(Scale)
}
