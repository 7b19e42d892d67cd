// Package core provides money parsing and handling utilities.
//
// This file contains the decimal-backed Money and Quantity types. Both
// encode to JSON as plain numbers so persisted records keep the
// {quantity, rate, total} numeric shape.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of fractional digits kept for amounts.
const moneyPlaces = 2

// Accepted decimal exponents. The exponent is checked before anything
// rescales the value, since rounding 1e40000000 builds a huge big.Int.
const (
	minExponent = -12
	maxExponent = 12
)

// maxMagnitude bounds the absolute value of any parsed amount or quantity.
var maxMagnitude = decimal.New(1, 12)

type (
	// Money is a decimal amount rounded to two places.
	Money struct {
		value decimal.Decimal
	}

	// Quantity is a decimal count of units (e.g. 2.5 packets).
	Quantity struct {
		value decimal.Decimal
	}
)

// NewMoney rounds d half away from zero to two places.
func NewMoney(d decimal.Decimal) Money {
	return Money{value: d.Round(moneyPlaces)}
}

// MoneyFromInt returns a whole amount.
func MoneyFromInt(v int64) Money {
	return Money{value: decimal.NewFromInt(v)}
}

// MoneyFromFloat is a convenience for tests and literals.
func MoneyFromFloat(f float64) Money {
	return NewMoney(decimal.NewFromFloat(f))
}

// ParseMoney converts a decimal string to Money with rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Negative values are rejected; zero is allowed.
//
// Examples:
//
//	ParseMoney("12.34") -> 12.34, nil
//	ParseMoney("12,345") -> 12.35, nil (rounds half up)
func ParseMoney(s string) (Money, error) {
	d, err := parseNonNegative(s)
	if err != nil {
		return Money{}, err
	}
	return NewMoney(d), nil
}

// ParseSignedMoney is ParseMoney that also accepts negative amounts, as
// carried balances can be when a day was overpaid.
func ParseSignedMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		m, err := ParseMoney(s[1:])
		if err != nil {
			return Money{}, err
		}
		return Money{value: m.value.Neg()}, nil
	}
	return ParseMoney(s)
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{value: m.value.Add(o.value)} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{value: m.value.Sub(o.value)} }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.value.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.value.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.value.IsPositive() }

// Equal compares amounts numerically, so 50 equals 50.00.
func (m Money) Equal(o Money) bool { return m.value.Equal(o.value) }

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.value }

// Float64 returns the value for display purposes only.
func (m Money) Float64() float64 {
	f, _ := m.value.Float64()
	return f
}

// String formats with exactly two decimals, e.g. "350.00".
func (m Money) String() string { return m.value.StringFixed(moneyPlaces) }

// MarshalJSON encodes the amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.value.StringFixed(moneyPlaces)), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	if err := checkMagnitude(d); err != nil {
		return err
	}
	*m = NewMoney(d)
	return nil
}

// NewQuantity wraps d without rounding.
func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{value: d}
}

// QuantityFromFloat is a convenience for tests and literals.
func QuantityFromFloat(f float64) Quantity {
	return Quantity{value: decimal.NewFromFloat(f)}
}

// ParseQuantity parses a non-negative decimal quantity.
func ParseQuantity(s string) (Quantity, error) {
	d, err := parseNonNegative(s)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{value: d}, nil
}

// Times returns the rounded line total quantity * rate.
func (q Quantity) Times(rate Money) Money {
	return NewMoney(q.value.Mul(rate.value))
}

// IsNegative reports whether the quantity is below zero.
func (q Quantity) IsNegative() bool { return q.value.IsNegative() }

// IsZero reports whether the quantity is zero.
func (q Quantity) IsZero() bool { return q.value.IsZero() }

// Equal compares quantities numerically.
func (q Quantity) Equal(o Quantity) bool { return q.value.Equal(o.value) }

func (q Quantity) String() string { return q.value.String() }

// MarshalJSON encodes the quantity as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.value.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	if err := checkMagnitude(d); err != nil {
		return err
	}
	q.value = d
	return nil
}

func parseNonNegative(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := checkMagnitude(d); err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// checkMagnitude rejects values with an exponent outside
// [minExponent, maxExponent] or an absolute value above maxMagnitude.
func checkMagnitude(d decimal.Decimal) error {
	if e := d.Exponent(); e < minExponent || e > maxExponent {
		return fmt.Errorf("%w: value out of range", ErrInvalidAmount)
	}
	if d.Abs().GreaterThan(maxMagnitude) {
		return fmt.Errorf("%w: value out of range", ErrInvalidAmount)
	}
	return nil
}
