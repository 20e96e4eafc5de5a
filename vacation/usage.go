package vacation

import (
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// USAGE - A debit, created together with its deductions
// =============================================================================

// Usage is never edited after creation; edits are cancel + recreate.
// StartDate and EndDate keep their wall-clock time for partial-day types.
type Usage struct {
	ID           UsageID
	UserID       UserID
	VacationType VacationType
	Desc         string
	TimeType     TimeType
	StartDate    time.Time
	EndDate      time.Time
	UsedTime     generic.Amount
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

func NewUsage(in UseInput, used generic.Amount, now time.Time) *Usage {
	return &Usage{
		UserID:       in.UserID,
		VacationType: in.VacationType,
		Desc:         in.Desc,
		TimeType:     in.TimeType,
		StartDate:    in.Start,
		EndDate:      in.End,
		UsedTime:     used,
		CreatedAt:    now,
	}
}

func (u *Usage) IsDeleted() bool { return u.DeletedAt != nil }

// SoftDelete marks the usage canceled. Allowed once, and only before it starts.
func (u *Usage) SoftDelete(now time.Time) error {
	if u.IsDeleted() {
		return generic.Violation("usage_already_canceled", "usage %d was canceled at %s", u.ID, u.DeletedAt.Format(time.RFC3339))
	}
	if !now.Before(u.StartDate) {
		return generic.Violation("cancel_after_start", "usage %d started at %s", u.ID, u.StartDate.Format(time.RFC3339))
	}
	u.DeletedAt = &now
	return nil
}

// Deduction links one usage to one grant.
type Deduction struct {
	ID           DeductionID
	UsageID      UsageID
	GrantID      GrantID
	DeductedTime generic.Amount
}

// SumDeductions totals deducted time.
func SumDeductions(ds []Deduction) generic.Amount {
	total := generic.ZeroDays()
	for _, d := range ds {
		total = total.Add(d.DeductedTime)
	}
	return total
}
