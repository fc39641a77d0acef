// Package money holds the fixed-point helpers every sale calculation goes through.
// Amounts are shopspring decimals and are rounded half-up to two places
// whenever they are persisted or returned.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const Scale = 2

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// Round applies round-half-up at two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

// NonNegative returns ErrInvalidAmount when d < 0.
func NonNegative(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d.String())
	}
	return nil
}

// Positive returns ErrInvalidAmount when d <= 0.
func Positive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, d.String())
	}
	return nil
}

// Quantity validates a line quantity.
func Quantity(q int) error {
	if q <= 0 {
		return fmt.Errorf("%w: quantity %d must be greater than zero", ErrInvalidAmount, q)
	}
	return nil
}

// Percent returns base*rate/100 without rounding.
func Percent(base decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(hundred)
}

func Min(a decimal.Decimal, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampZero is only for the places where a negative result is allowed to collapse to zero.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Sub subtracts b from a and fails instead of going below zero.
func Sub(a decimal.Decimal, b decimal.Decimal) (decimal.Decimal, error) {
	out := a.Sub(b)
	if out.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s - %s is negative", ErrInvalidAmount, a.String(), b.String())
	}
	return out, nil
}
