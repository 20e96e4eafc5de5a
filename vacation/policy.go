/*
policy.go - Vacation policies, their date rules and user assignments

PURPOSE:
  A Policy is the read-only rule source for grants: which vacation type it
  credits, how grants are issued, how much, how many approvers are needed,
  and how grant/expiry dates are derived.

DATE RULES:
  EffectiveType.Compute(ref)        -> the grant date
  ExpirationType.Compute(grantDate) -> the last valid date (inclusive)

  Example (ON_REQUEST, IMMEDIATE / ONE_YEAR):
    approved 2025-03-14 10:12 -> valid 2025-03-14 .. 2026-03-13

REPEAT SCHEDULE:
  REPEAT_GRANT policies carry a RepeatSchedule. Only the next-grant instant
  is computed here; running the schedule belongs to an external caller that
  invokes Service.GrantManually.

SEE ALSO:
  - factory/policy.go: YAML/JSON definitions -> Policy
  - cascade.go: Deleting a policy revokes its active grants
*/
package vacation

import (
	"strings"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// POLICY
// =============================================================================

type Policy struct {
	ID           PolicyID
	Name         string
	VacationType VacationType
	GrantMethod  GrantMethod

	// FixedAmount is credited per grant unless IsFlexibleGrant.
	FixedAmount     generic.Amount
	IsFlexibleGrant bool

	// ApprovalRequiredCount is nil when the policy never needs approval.
	ApprovalRequiredCount *int

	EffectiveType  EffectiveType
	ExpirationType ExpirationType
	Repeat         *RepeatSchedule

	CreatedAt time.Time
	DeletedAt *time.Time
}

func (p *Policy) IsDeleted() bool { return p.DeletedAt != nil }

// RequiredApprovers returns ApprovalRequiredCount, or 0 when unset.
func (p *Policy) RequiredApprovers() int {
	if p.ApprovalRequiredCount == nil {
		return 0
	}
	return *p.ApprovalRequiredCount
}

// Validate checks the policy definition before it is stored.
func (p *Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return generic.Invalid("name", "must not be blank")
	}
	if strings.TrimSpace(string(p.VacationType)) == "" {
		return generic.Invalid("vacation_type", "must not be blank")
	}
	if !p.GrantMethod.Valid() {
		return generic.Invalid("grant_method", "unknown grant method %q", p.GrantMethod)
	}
	if !p.IsFlexibleGrant && !p.FixedAmount.IsPositive() {
		return generic.Invalid("grant_time", "fixed amount must be positive")
	}
	if p.ApprovalRequiredCount != nil && *p.ApprovalRequiredCount < 0 {
		return generic.Invalid("approval_required_count", "must not be negative")
	}
	if !p.EffectiveType.Valid() {
		return generic.Invalid("effective_type", "unknown effective type %q", p.EffectiveType)
	}
	if !p.ExpirationType.Valid() {
		return generic.Invalid("expiration_type", "unknown expiration type %q", p.ExpirationType)
	}
	if p.GrantMethod == GrantRepeat {
		if p.Repeat == nil {
			return generic.Invalid("repeat", "required for %s", GrantRepeat)
		}
		if err := p.Repeat.Validate(); err != nil {
			return err
		}
	} else if p.Repeat != nil {
		return generic.Invalid("repeat", "only allowed for %s", GrantRepeat)
	}
	return nil
}

// AmountFor returns the grant amount: the fixed amount, or the caller's when
// the policy is flexible.
func (p *Policy) AmountFor(supplied *generic.Amount) (generic.Amount, error) {
	if !p.IsFlexibleGrant {
		return p.FixedAmount, nil
	}
	if supplied == nil {
		return generic.Amount{}, generic.Invalid("grant_time", "required for flexible policy %d", p.ID)
	}
	if !supplied.IsPositive() {
		return generic.Amount{}, generic.Invalid("grant_time", "must be positive")
	}
	return generic.Days(supplied.Value), nil
}

// ValidityFrom computes [grantDate, expiryDate] for a grant issued at ref.
func (p *Policy) ValidityFrom(ref time.Time) (time.Time, time.Time) {
	grantDate := p.EffectiveType.Compute(ref)
	return grantDate, p.ExpirationType.Compute(grantDate)
}

// =============================================================================
// EFFECTIVE TYPE - reference instant -> grant date
// =============================================================================

type EffectiveType string

const (
	EffectiveImmediate      EffectiveType = "IMMEDIATE"
	EffectiveNextDay        EffectiveType = "NEXT_DAY"
	EffectiveNextMonthStart EffectiveType = "START_OF_NEXT_MONTH"
	EffectiveNextYearStart  EffectiveType = "START_OF_NEXT_YEAR"
)

func (e EffectiveType) Valid() bool {
	switch e {
	case EffectiveImmediate, EffectiveNextDay, EffectiveNextMonthStart, EffectiveNextYearStart:
		return true
	}
	return false
}

func (e EffectiveType) Compute(ref time.Time) time.Time {
	d := generic.DateOf(ref)
	switch e {
	case EffectiveNextDay:
		return d.AddDate(0, 0, 1)
	case EffectiveNextMonthStart:
		return generic.StartOfMonth(d.Year(), d.Month()).AddDate(0, 1, 0)
	case EffectiveNextYearStart:
		return generic.StartOfYear(d.Year() + 1)
	default:
		return d
	}
}

// =============================================================================
// EXPIRATION TYPE - grant date -> last valid date
// =============================================================================

type ExpirationType string

const (
	ExpireOneMonth    ExpirationType = "ONE_MONTH"
	ExpireThreeMonths ExpirationType = "THREE_MONTHS"
	ExpireSixMonths   ExpirationType = "SIX_MONTHS"
	ExpireOneYear     ExpirationType = "ONE_YEAR"
	ExpireTwoYears    ExpirationType = "TWO_YEARS"
	ExpireEndOfMonth  ExpirationType = "END_OF_MONTH"
	ExpireEndOfYear   ExpirationType = "END_OF_YEAR"
	ExpireNever       ExpirationType = "NEVER"
)

// FarFuture is the expiry date of grants that never expire.
var FarFuture = generic.NewDate(9999, time.December, 31)

func (e ExpirationType) Valid() bool {
	switch e {
	case ExpireOneMonth, ExpireThreeMonths, ExpireSixMonths, ExpireOneYear,
		ExpireTwoYears, ExpireEndOfMonth, ExpireEndOfYear, ExpireNever:
		return true
	}
	return false
}

// Compute returns the inclusive last valid date for a grant dated grantDate.
func (e ExpirationType) Compute(grantDate time.Time) time.Time {
	d := generic.DateOf(grantDate)
	switch e {
	case ExpireOneMonth:
		return d.AddDate(0, 1, -1)
	case ExpireThreeMonths:
		return d.AddDate(0, 3, -1)
	case ExpireSixMonths:
		return d.AddDate(0, 6, -1)
	case ExpireOneYear:
		return d.AddDate(1, 0, -1)
	case ExpireTwoYears:
		return d.AddDate(2, 0, -1)
	case ExpireEndOfMonth:
		return generic.EndOfMonth(d.Year(), d.Month())
	case ExpireEndOfYear:
		return generic.EndOfYear(d.Year())
	default:
		return FarFuture
	}
}

// =============================================================================
// REPEAT SCHEDULE - next-grant timing for REPEAT_GRANT
// =============================================================================

type RepeatUnit string

const (
	RepeatYearly  RepeatUnit = "YEARLY"
	RepeatMonthly RepeatUnit = "MONTHLY"
)

// RepeatSchedule fires yearly on Month/Day or monthly on Day. Days past the
// end of a month clamp to its last day.
type RepeatSchedule struct {
	Unit  RepeatUnit
	Month time.Month // yearly only
	Day   int
}

func (r *RepeatSchedule) Validate() error {
	switch r.Unit {
	case RepeatYearly:
		if r.Month < time.January || r.Month > time.December {
			return generic.Invalid("repeat.month", "must be 1-12")
		}
	case RepeatMonthly:
	default:
		return generic.Invalid("repeat.unit", "unknown unit %q", r.Unit)
	}
	if r.Day < 1 || r.Day > 31 {
		return generic.Invalid("repeat.day", "must be 1-31")
	}
	return nil
}

// Next returns the first scheduled date strictly after the date of after.
func (r *RepeatSchedule) Next(after time.Time) time.Time {
	ref := generic.DateOf(after)
	switch r.Unit {
	case RepeatMonthly:
		candidate := clampDay(ref.Year(), ref.Month(), r.Day)
		if !candidate.After(ref) {
			next := generic.StartOfMonth(ref.Year(), ref.Month()).AddDate(0, 1, 0)
			candidate = clampDay(next.Year(), next.Month(), r.Day)
		}
		return candidate
	default:
		candidate := clampDay(ref.Year(), r.Month, r.Day)
		if !candidate.After(ref) {
			candidate = clampDay(ref.Year()+1, r.Month, r.Day)
		}
		return candidate
	}
}

func clampDay(year int, month time.Month, day int) time.Time {
	last := generic.EndOfMonth(year, month)
	if day > last.Day() {
		return last
	}
	return generic.NewDate(year, month, day)
}

// =============================================================================
// ASSIGNMENT - user <-> policy
// =============================================================================

type Assignment struct {
	ID         AssignmentID
	UserID     UserID
	PolicyID   PolicyID
	AssignedAt time.Time
	DeletedAt  *time.Time
}

func (a *Assignment) IsDeleted() bool { return a.DeletedAt != nil }
