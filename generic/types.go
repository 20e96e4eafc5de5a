/*
Package generic provides the domain-agnostic building blocks of the vacation engine.

PURPOSE:
  This package contains types and algorithms that know nothing about grants,
  usages or approvals. The vacation package composes them into the ledger,
  allocation and approval workflow.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 1.5 days, 0.125 days)
  - Unit: What an Amount counts (days for every vacation balance)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so that use/cancel round trips never drift
  2. Immutability: Every Amount operation returns a new value
  3. Unit carried along: mixing units is a programming error, not a conversion

USAGE:
  granted := generic.NewAmountFromInt(15, generic.UnitDays)
  used := generic.MustParseAmount("0.5", generic.UnitDays)
  left := granted.Sub(used) // 14.5 days

SEE ALSO:
  - allocation.go: Greedy split of a required Amount across ordered buckets
  - errors.go: Error taxonomy shared by all packages
  - time.go: Calendar helpers and the HolidayCalendar contract
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (always time-based for this system)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// Days is shorthand for an amount in UnitDays.
func Days(value decimal.Decimal) Amount { return Amount{Value: value, Unit: UnitDays} }

// ZeroDays is 0 days.
func ZeroDays() Amount { return Amount{Value: decimal.Zero, Unit: UnitDays} }

// ParseAmount parses a decimal string such as "1.5".
func ParseAmount(s string, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Unit: unit}, nil
}

// MustParseAmount panics on malformed input. Use in tests and constants only.
func MustParseAmount(s string, unit Unit) Amount {
	a, err := ParseAmount(s, unit)
	if err != nil {
		panic(err)
	}
	return a
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds amounts; the result carries unit of the first element, or days if empty.
func Sum(amounts ...Amount) Amount {
	if len(amounts) == 0 {
		return ZeroDays()
	}
	total := amounts[0].Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
