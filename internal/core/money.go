// Package core provides money parsing and handling utilities.
//
// This file contains the exact decimal Money type used for every stored
// amount and every total. Binary floating point never touches an amount.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount in the ledger's single currency.
type Money struct {
	Value decimal.Decimal
}

// Zero is the additive identity for totals.
var Zero = Money{Value: decimal.Zero}

// ParseMoney converts user input into an exact decimal amount.
//
// A dot is the decimal separator. A single comma is also read as one when it
// is the only separator and has one or two digits after it (12,34). Any other
// comma is a thousands separator and is rejected, as are signs, exponents and
// non-positive values. Every fractional digit is kept as given.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,5")   -> 12.5
//	ParseMoney("1,000")  -> ErrInvalidAmount
//	ParseMoney("0")      -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	if whole, frac, ok := strings.Cut(s, ","); ok {
		if strings.ContainsAny(whole, ".,") || strings.Contains(frac, ",") || len(frac) == 0 || len(frac) > 2 {
			return Money{}, fmt.Errorf("%w: %q uses a thousands separator or an ambiguous comma", ErrInvalidAmount, s)
		}
		s = whole + "." + frac
	}
	seenDot := false
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return Money{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
		}
	}
	if digits == 0 {
		return Money{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	m := Money{Value: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MustMoney parses s and panics on failure. Intended for fixtures and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return Money{Value: d}
}

// Validate enforces the record invariant: stored amounts are strictly positive.
func (m Money) Validate() error {
	if !m.Value.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Value: m.Value.Add(o.Value)}
}

func (m Money) Sub(o Money) Money {
	return Money{Value: m.Value.Sub(o.Value)}
}

func (m Money) Equal(o Money) bool {
	return m.Value.Equal(o.Value)
}

func (m Money) Cmp(o Money) int {
	return m.Value.Cmp(o.Value)
}

func (m Money) IsZero() bool {
	return m.Value.IsZero()
}

// String renders at least two fractional digits and never drops precision:
// 12.5 -> "12.50", 12.500 -> "12.50", 12.345 -> "12.345".
func (m Money) String() string {
	s := m.Value.String()
	if _, frac, _ := strings.Cut(s, "."); len(frac) < 2 {
		return m.Value.StringFixed(2)
	}
	return s
}
