package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount converts a wire float into an exact decimal. The backend exchanges
// plain JSON numbers, so arithmetic happens on the shortest decimal that
// round-trips the float.
func Amount(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Sum adds wire amounts exactly.
func Sum(values ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(Amount(v))
	}
	return total
}

// FormatMoney renders an amount with two decimals, e.g. "1234.50".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseMoney parses user input such as "12.34" or "12,34".
func ParseMoney(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	f, _ := d.Round(2).Float64()
	return f, nil
}
