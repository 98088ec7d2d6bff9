package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const moneyScale = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds to 2 decimal places, half away from zero. All monetary
// amounts leaving the calculation engine pass through this.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}

// ApplyPercentage computes amount * pct / 100 rounded to 2 decimal places.
// The intermediate division runs at the decimal package's default precision
// (16 digits), well above the 10 digits fee math requires.
func ApplyPercentage(amount, pct decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(pct).Div(hundred))
}

// SafeParse parses a string into a decimal, returning zero for invalid or
// empty input.
func SafeParse(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatMoney renders a decimal with exactly 2 decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(moneyScale)
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
