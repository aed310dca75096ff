// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing gross earnings from strings
// as they arrive from CSV exports, spreadsheets and forms.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseGross converts a decimal string to an amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and a
// leading currency symbol. Zero is valid: a period can be worked without
// earning anything. Negative values and garbage are rejected.
//
// Examples:
//
//	ParseGross("12.34")  -> 12.34, nil
//	ParseGross("€12,345") -> 12.35, nil
//	ParseGross("0")      -> 0, nil
func ParseGross(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "€$£")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		// Thousands separators
		s = strings.ReplaceAll(s, ",", "")
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// MustGross is ParseGross for literals known to be valid.
func MustGross(s string) decimal.Decimal {
	d, err := ParseGross(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Amount converts a float to a cent-rounded decimal.
func Amount(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
