package vacation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

func TestEffectiveType_Compute(t *testing.T) {
	ref := time.Date(2025, 3, 14, 10, 12, 0, 0, time.UTC)

	tests := []struct {
		rule vacation.EffectiveType
		want string
	}{
		{vacation.EffectiveImmediate, "2025-03-14"},
		{vacation.EffectiveNextDay, "2025-03-15"},
		{vacation.EffectiveNextMonthStart, "2025-04-01"},
		{vacation.EffectiveNextYearStart, "2026-01-01"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			assert.Equal(t, tt.want, generic.FormatDate(tt.rule.Compute(ref)))
		})
	}
}

func TestExpirationType_Compute(t *testing.T) {
	grantDate := date(2025, 1, 31)

	tests := []struct {
		rule vacation.ExpirationType
		want string
	}{
		{vacation.ExpireOneMonth, "2025-03-02"},
		{vacation.ExpireOneYear, "2026-01-30"},
		{vacation.ExpireTwoYears, "2027-01-30"},
		{vacation.ExpireEndOfMonth, "2025-01-31"},
		{vacation.ExpireEndOfYear, "2025-12-31"},
		{vacation.ExpireNever, "9999-12-31"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule), func(t *testing.T) {
			assert.Equal(t, tt.want, generic.FormatDate(tt.rule.Compute(grantDate)))
		})
	}
}

func TestRepeatSchedule_Next(t *testing.T) {
	yearly := &vacation.RepeatSchedule{Unit: vacation.RepeatYearly, Month: time.January, Day: 1}
	assert.Equal(t, "2026-01-01", generic.FormatDate(yearly.Next(date(2025, 1, 1))), "strictly after")
	assert.Equal(t, "2026-01-01", generic.FormatDate(yearly.Next(date(2025, 6, 30))))

	monthly := &vacation.RepeatSchedule{Unit: vacation.RepeatMonthly, Day: 31}
	assert.Equal(t, "2025-01-31", generic.FormatDate(monthly.Next(date(2025, 1, 5))))
	assert.Equal(t, "2025-02-28", generic.FormatDate(monthly.Next(date(2025, 1, 31))), "clamped")

	leap := &vacation.RepeatSchedule{Unit: vacation.RepeatYearly, Month: time.February, Day: 29}
	assert.Equal(t, "2025-02-28", generic.FormatDate(leap.Next(date(2024, 3, 1))))
}

func TestPolicy_Validate(t *testing.T) {
	valid := func() vacation.Policy {
		return vacation.Policy{
			Name: "Annual", VacationType: annual, GrantMethod: vacation.GrantManual,
			FixedAmount: days("15"), EffectiveType: vacation.EffectiveImmediate, ExpirationType: vacation.ExpireOneYear,
		}
	}

	p := valid()
	require.NoError(t, p.Validate())

	tests := []struct {
		name   string
		mutate func(*vacation.Policy)
	}{
		{"blank name", func(p *vacation.Policy) { p.Name = "" }},
		{"unknown method", func(p *vacation.Policy) { p.GrantMethod = "SOMETIMES" }},
		{"zero fixed amount", func(p *vacation.Policy) { p.FixedAmount = days("0") }},
		{"negative approvers", func(p *vacation.Policy) { p.ApprovalRequiredCount = intPtr(-1) }},
		{"unknown expiration", func(p *vacation.Policy) { p.ExpirationType = "FORTNIGHT" }},
		{"repeat without schedule", func(p *vacation.Policy) { p.GrantMethod = vacation.GrantRepeat }},
		{"schedule on manual", func(p *vacation.Policy) {
			p.Repeat = &vacation.RepeatSchedule{Unit: vacation.RepeatMonthly, Day: 1}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), generic.ErrValidation)
		})
	}
}

func TestTimeTypes_QuantityFor(t *testing.T) {
	tt := vacation.DefaultTimeTypes()

	q, err := tt.QuantityFor(vacation.TimeDay, 3)
	require.NoError(t, err)
	assert.True(t, q.Equal(days("3")))

	q, err = tt.QuantityFor(vacation.TimeAfternoonHalf, 2)
	require.NoError(t, err)
	assert.True(t, q.Equal(days("1")))

	q, err = tt.QuantityFor(vacation.TimeHour1, 1)
	require.NoError(t, err)
	assert.True(t, q.Equal(days("0.125")))

	_, err = tt.QuantityFor("HOUR_8", 1)
	assert.ErrorIs(t, err, generic.ErrValidation)

	assert.True(t, tt.IsWholeDay(vacation.TimeDay))
	assert.False(t, tt.IsWholeDay(vacation.TimeMorningHalf))
}

func TestTimeTypes_Merge(t *testing.T) {
	tt := vacation.DefaultTimeTypes().Merge(vacation.TimeTypes{
		vacation.TimeMorningHalf: {Multiplier: decimal.RequireFromString("0.4")},
	})

	q, err := tt.QuantityFor(vacation.TimeMorningHalf, 1)
	require.NoError(t, err)
	assert.True(t, q.Equal(days("0.4")))

	q, err = tt.QuantityFor(vacation.TimeAfternoonHalf, 1)
	require.NoError(t, err)
	assert.True(t, q.Equal(days("0.5")))
}
