// Package core holds the domain types shared by the closing pipeline:
// monetary amounts, transactions, categories and period summaries.
//
// This file contains parsing and formatting of Brazilian-formatted
// monetary amounts. Amounts are stored as signed cents to avoid
// floating-point drift during aggregation.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is a signed amount in cents. Positive values are inflows,
// negative values are outflows.
type Money struct {
	Cents int64
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Reais returns the value in reais as a float64 for display purposes.
// Use cents for any arithmetic.
func (m Money) Reais() float64 {
	return float64(m.Cents) / 100.0
}

// String renders the amount in Brazilian currency notation,
// e.g. "R$ 1.234,56" and "R$ -500,00".
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	// Group the integer part with dots every three digits.
	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(whole[i : i+3])
	}
	s := b.String() + "," + pad2(cents%100)
	if neg {
		return "R$ -" + s
	}
	return "R$ " + s
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// ParseBRL converts a Brazilian-formatted amount string to signed cents.
//
// Accepted inputs:
//   "1.234,56"    -> 123456
//   "1234.56"     -> 123456
//   "R$ -500,00"  -> -50000
//   "", "-", nil-ish placeholders -> 0 (statement subtotal artifacts)
//
// Rounding is half-up on the third decimal digit. Returns
// ErrInvalidAmount when the string is not a number at all.
func ParseBRL(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return Money{}, nil
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	// Parenthesised negatives show up in some exports.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}

	// "1.234,56" uses dots as thousands separators; "1234.56" does not.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, ErrInvalidAmount
	}

	// First two fractional digits, half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return Money{Cents: cents}, nil
}
