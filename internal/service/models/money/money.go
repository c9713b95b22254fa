package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is the ISO 4217 code every amount is denominated in.
const Currency = "NGN"

// minorUnits is the number of kobo in one naira.
const minorUnits = 100

// MaxAmount bounds any single parsed amount at ten million naira. With
// quantities capped by the cart, sums of bounded amounts stay far from
// int64 overflow.
const MaxAmount Amount = 10_000_000 * minorUnits

var (
	ErrNegativeAmount  = errors.New("negative amount")
	ErrAmountTooLarge  = errors.New("amount exceeds the maximum")
	ErrFractionalMinor = errors.New("amount has more precision than the minor unit")
)

// Amount is a naira amount held in kobo so sums never drift.
type Amount int64

// Naira builds an Amount from whole naira.
func Naira(n int64) Amount {
	return Amount(n * minorUnits)
}

// Kobo returns the amount in minor units.
func (a Amount) Kobo() int64 {
	return int64(a)
}

func (a Amount) Add(b Amount) Amount {
	return a + b
}

func (a Amount) Mul(qty int) Amount {
	return a * Amount(qty)
}

func (a Amount) IsNegative() bool {
	return a < 0
}

// InRange reports whether 0 <= a <= MaxAmount.
func (a Amount) InRange() bool {
	return a >= 0 && a <= MaxAmount
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String formats the amount like "NGN 1500.00".
func (a Amount) String() string {
	return fmt.Sprintf("%s %s", Currency, a.Decimal().StringFixed(2))
}

// FromDecimal converts a major-unit decimal into an Amount.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	kobo := d.Shift(2)
	if !kobo.Equal(kobo.Truncate(0)) {
		return 0, ErrFractionalMinor
	}
	if kobo.GreaterThan(decimal.NewFromInt(int64(MaxAmount))) {
		return 0, ErrAmountTooLarge
	}

	return Amount(kobo.IntPart()), nil
}

// Parse reads a major-unit string such as "1500" or "99.50".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}

	return FromDecimal(d)
}
