// Package currency converts between the decimal dollar amounts reported by
// Splitwise and the integer units used by YNAB.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Milliunits is YNAB's integer currency unit: 1000 per major unit.
type Milliunits int64

// Cents is 100 per major unit.
type Cents int64

var (
	milliunitsPerDollar = decimal.NewFromInt(1000)
	centsPerDollar      = decimal.NewFromInt(100)
	milliunitsPerCent   = decimal.NewFromInt(10)
)

// ErrInvalidAmount is returned when a decimal string cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseDollars parses a decimal dollar string such as "12.50" or "-3".
func ParseDollars(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// Round rounds d to the given number of decimal places, half away from zero.
func Round(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// DollarsToMilliunits converts dollars to milliunits, rounded to the nearest unit.
func DollarsToMilliunits(dollars decimal.Decimal) Milliunits {
	return Milliunits(dollars.Mul(milliunitsPerDollar).Round(0).IntPart())
}

// MilliunitsToDollars converts milliunits to dollars rounded to 2 places.
func MilliunitsToDollars(m Milliunits) decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(milliunitsPerDollar).Round(2)
}

// CentsToMilliunits converts cents to milliunits (1 cent = 10 milliunits).
func CentsToMilliunits(c Cents) Milliunits {
	return Milliunits(decimal.NewFromInt(int64(c)).Mul(milliunitsPerCent).Round(0).IntPart())
}

// MilliunitsToCents converts milliunits to cents, rounded to the nearest cent.
func MilliunitsToCents(m Milliunits) Cents {
	return Cents(decimal.NewFromInt(int64(m)).Div(milliunitsPerCent).Round(0).IntPart())
}

// DollarsToCents converts dollars to cents, rounded to the nearest cent.
func DollarsToCents(dollars decimal.Decimal) Cents {
	return Cents(dollars.Mul(centsPerDollar).Round(0).IntPart())
}

// CentsToDollars converts cents to dollars rounded to 2 places.
func CentsToDollars(c Cents) decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(centsPerDollar).Round(2)
}

// String renders milliunits as a dollar amount, e.g. 12000 -> "12.00".
func (m Milliunits) String() string {
	return MilliunitsToDollars(m).StringFixed(2)
}
