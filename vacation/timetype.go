package vacation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// TIME TYPES - How much one business day of leave costs
// =============================================================================

// TimeType is the granularity of a usage (whole day, half day, hours).
type TimeType string

const (
	TimeDay           TimeType = "DAY"
	TimeMorningHalf   TimeType = "MORNING_HALF"
	TimeAfternoonHalf TimeType = "AFTERNOON_HALF"
	TimeHour1         TimeType = "HOUR_1"
	TimeHour2         TimeType = "HOUR_2"
	TimeHour3         TimeType = "HOUR_3"
	TimeHour4         TimeType = "HOUR_4"
	TimeHour5         TimeType = "HOUR_5"
	TimeHour6         TimeType = "HOUR_6"
	TimeHour7         TimeType = "HOUR_7"
)

// TimeTypeRule is the multiplier per qualifying business day.
// WholeDay types skip the work-hours window check.
type TimeTypeRule struct {
	Multiplier decimal.Decimal
	WholeDay   bool
}

// TimeTypes is the multiplier table. It is configuration, not logic.
type TimeTypes map[TimeType]TimeTypeRule

// DefaultTimeTypes: DAY 1, halves 0.5, HOUR_n n/8.
func DefaultTimeTypes() TimeTypes {
	eighth := decimal.NewFromInt(1).Div(decimal.NewFromInt(8))
	half := decimal.RequireFromString("0.5")

	tt := TimeTypes{
		TimeDay:           {Multiplier: decimal.NewFromInt(1), WholeDay: true},
		TimeMorningHalf:   {Multiplier: half},
		TimeAfternoonHalf: {Multiplier: half},
	}
	for n := 1; n <= 7; n++ {
		tt[TimeType(fmt.Sprintf("HOUR_%d", n))] = TimeTypeRule{Multiplier: eighth.Mul(decimal.NewFromInt(int64(n)))}
	}
	return tt
}

// Merge returns a copy of tt with overrides applied.
func (tt TimeTypes) Merge(overrides TimeTypes) TimeTypes {
	merged := make(TimeTypes, len(tt)+len(overrides))
	for k, v := range tt {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func (tt TimeTypes) rule(t TimeType) (TimeTypeRule, error) {
	r, ok := tt[t]
	if !ok {
		return TimeTypeRule{}, generic.Invalid("time_type", "unknown time type %q", t)
	}
	return r, nil
}

// IsWholeDay reports whether t is a whole-day category. Unknown types are not.
func (tt TimeTypes) IsWholeDay(t TimeType) bool {
	r, ok := tt[t]
	return ok && r.WholeDay
}

// QuantityFor returns multiplier(t) * units, in days.
func (tt TimeTypes) QuantityFor(t TimeType, units int) (generic.Amount, error) {
	r, err := tt.rule(t)
	if err != nil {
		return generic.Amount{}, err
	}
	if units < 0 {
		return generic.Amount{}, generic.Invalid("units", "must not be negative")
	}
	return generic.Days(r.Multiplier.Mul(decimal.NewFromInt(int64(units)))), nil
}
