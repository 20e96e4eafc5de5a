package generic

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// CALENDAR DATES - time.Time truncated to midnight UTC
// =============================================================================

const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t (in t's own location) as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate builds a calendar date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func StartOfYear(year int) time.Time { return NewDate(year, time.January, 1) }
func EndOfYear(year int) time.Time   { return NewDate(year, time.December, 31) }

func StartOfMonth(year int, month time.Month) time.Time { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// =============================================================================
// WORK HOURS - Daily window in which partial-day leave may be taken
// =============================================================================

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func ClockOf(t time.Time) ClockTime { return ClockTime{Hour: t.Hour(), Minute: t.Minute()} }

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) Before(o ClockTime) bool { return c.minutes() < o.minutes() }
func (c ClockTime) After(o ClockTime) bool  { return c.minutes() > o.minutes() }
func (c ClockTime) String() string          { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// WorkHours is the [Start, End] window of a working day.
type WorkHours struct {
	Start ClockTime
	End   ClockTime
}

// StandardWorkHours is 09:00-18:00.
var StandardWorkHours = WorkHours{Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 18}}

// Contains reports whether the wall-clock time of t falls inside the window (inclusive).
func (w WorkHours) Contains(t time.Time) bool {
	c := ClockOf(t)
	return !c.Before(w.Start) && !c.After(w.End)
}

func (w WorkHours) String() string { return w.Start.String() + "-" + w.End.String() }

// =============================================================================
// HOLIDAY CALENDAR - Public holidays per country
// =============================================================================

// HolidayCalendar provides public holidays. It is an external collaborator;
// the engine only reads from it.
type HolidayCalendar interface {
	// PublicHolidays returns holidays for the country in [from, to], keyed by
	// calendar date (midnight UTC) with the holiday name as value.
	PublicHolidays(ctx context.Context, countryCode string, from, to time.Time) (map[time.Time]string, error)
}

// NoHolidays is a calendar without holidays.
type NoHolidays struct{}

func (NoHolidays) PublicHolidays(context.Context, string, time.Time, time.Time) (map[time.Time]string, error) {
	return nil, nil
}

// BusinessDates returns the calendar dates in p that are neither weekend days
// nor listed in holidays.
func BusinessDates(p Period, holidays map[time.Time]string) []time.Time {
	var dates []time.Time
	for _, d := range p.Days() {
		if IsWeekend(d) {
			continue
		}
		if _, ok := holidays[d]; ok {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}
