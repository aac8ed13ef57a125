// Package money parses and formats the ruble amounts found in the margin and
// statistics tables.
package money

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrMalformedAmount is returned when a cell does not hold a monetary amount.
var ErrMalformedAmount = errors.New("malformed amount")

// Currency markers stripped before parsing. Longer forms come first.
var currencyTokens = []string{"₽", "руб.", "руб", "р.", "RUB", "rub"}

// ParseAmount parses a locale-formatted amount such as "10,50₽" or "1 234,5 руб.".
// A comma is the decimal separator; a dot is only treated as decimal when no
// comma is present, otherwise dots are thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, raw)
	}

	if strings.Contains(s, ",") {
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, raw)
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, raw)
	}
	return d, nil
}

// FormatAmount renders d with two fraction digits and a comma separator,
// the form the statistics table and history files use.
func FormatAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// Total returns round(unit*count, 2), rounding half away from zero.
func Total(unit decimal.Decimal, count int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(count))).Round(2)
}
