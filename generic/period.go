package generic

import "time"

// =============================================================================
// PERIOD - Inclusive range of calendar dates
// =============================================================================

// Period is the inclusive calendar range [Start, End]. Both ends are dates
// (see DateOf); time-of-day is ignored.
//
// Examples:
//   - A usage from Mon 09:00 to Wed 18:00 covers the period Mon..Wed
//   - A grant valid 2025-01-01..2025-12-31
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalizes both ends to calendar dates.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: DateOf(start), End: DateOf(end)}
}

// Valid reports whether Start <= End.
func (p Period) Valid() bool { return !p.End.Before(p.Start) }

// Contains returns true if the date of t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns all dates in the period.
func (p Period) Days() []time.Time {
	var days []time.Time
	for current := p.Start; !current.After(p.End); current = current.AddDate(0, 0, 1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + FormatDate(p.Start) + ", " + FormatDate(p.End) + "]"
}
