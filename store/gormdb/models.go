package gormdb

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// ROW MODELS
// =============================================================================
// Row structs mirror the domain types with column tags. Soft deletes use a
// plain *time.Time (not gorm.DeletedAt) so that callers decide per query
// whether deleted rows are visible. Timestamps are owned by the domain clock,
// so gorm's auto time tracking is disabled. Amount columns are unconstrained
// numeric: a fixed scale would round usages and deductions independently.

type policyRow struct {
	ID                    int64           `gorm:"primaryKey"`
	Name                  string          `gorm:"not null"`
	VacationType          string          `gorm:"not null;index"`
	GrantMethod           string          `gorm:"not null"`
	FixedAmount           decimal.Decimal `gorm:"type:numeric;not null"`
	IsFlexibleGrant       bool            `gorm:"not null;default:false"`
	ApprovalRequiredCount *int
	EffectiveType         string `gorm:"not null"`
	ExpirationType        string `gorm:"not null"`
	RepeatUnit            *string
	RepeatMonth           *int
	RepeatDay             *int
	CreatedAt             time.Time `gorm:"autoCreateTime:false"`
	DeletedAt             *time.Time
}

func (policyRow) TableName() string { return "policies" }

type assignmentRow struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;uniqueIndex:idx_assignments_live,where:deleted_at IS NULL"`
	PolicyID   int64     `gorm:"not null;index;uniqueIndex:idx_assignments_live,where:deleted_at IS NULL"`
	AssignedAt time.Time `gorm:"not null"`
	DeletedAt  *time.Time
}

func (assignmentRow) TableName() string { return "assignments" }

type grantRow struct {
	ID           int64           `gorm:"primaryKey"`
	UserID       string          `gorm:"not null;index:idx_grants_fifo,priority:1"`
	PolicyID     int64           `gorm:"not null;index"`
	VacationType string          `gorm:"not null;index:idx_grants_fifo,priority:2"`
	GrantTime    decimal.Decimal `gorm:"type:numeric;not null"`
	RemainTime   decimal.Decimal `gorm:"type:numeric;not null"`
	GrantDate    time.Time       `gorm:"type:date;not null"`
	ExpiryDate   time.Time       `gorm:"type:date;not null;index:idx_grants_fifo,priority:4"`
	Status       string          `gorm:"not null;index:idx_grants_fifo,priority:3"`
	Description  string
	RequestStart *time.Time
	RequestEnd   *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (grantRow) TableName() string { return "grants" }

type usageRow struct {
	ID           int64  `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	VacationType string `gorm:"not null"`
	Description  string
	TimeType     string          `gorm:"not null"`
	StartDate    time.Time       `gorm:"not null"`
	EndDate      time.Time       `gorm:"not null"`
	UsedTime     decimal.Decimal `gorm:"type:numeric;not null"`
	CreatedAt    time.Time       `gorm:"autoCreateTime:false"`
	DeletedAt    *time.Time
}

func (usageRow) TableName() string { return "usages" }

type deductionRow struct {
	ID           int64           `gorm:"primaryKey"`
	UsageID      int64           `gorm:"not null;index"`
	GrantID      int64           `gorm:"not null;index"`
	DeductedTime decimal.Decimal `gorm:"type:numeric;not null"`
}

func (deductionRow) TableName() string { return "deductions" }

type approvalRow struct {
	ID              int64  `gorm:"primaryKey"`
	GrantID         int64  `gorm:"not null;uniqueIndex:idx_approvals_grant_order"`
	ApproverID      string `gorm:"not null;index:idx_approvals_approver_status"`
	ApprovalOrder   int    `gorm:"not null;uniqueIndex:idx_approvals_grant_order"`
	Status          string `gorm:"not null;index:idx_approvals_approver_status"`
	ApprovalDate    *time.Time
	RejectionReason string
}

func (approvalRow) TableName() string { return "approvals" }

// allModels lists every table for AutoMigrate.
func allModels() []any {
	return []any{&policyRow{}, &assignmentRow{}, &grantRow{}, &usageRow{}, &deductionRow{}, &approvalRow{}}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func days(d decimal.Decimal) generic.Amount { return generic.Days(d) }

func toPolicyRow(p *vacation.Policy) policyRow {
	row := policyRow{
		ID:                    int64(p.ID),
		Name:                  p.Name,
		VacationType:          string(p.VacationType),
		GrantMethod:           string(p.GrantMethod),
		FixedAmount:           p.FixedAmount.Value,
		IsFlexibleGrant:       p.IsFlexibleGrant,
		ApprovalRequiredCount: p.ApprovalRequiredCount,
		EffectiveType:         string(p.EffectiveType),
		ExpirationType:        string(p.ExpirationType),
		CreatedAt:             p.CreatedAt,
		DeletedAt:             p.DeletedAt,
	}
	if p.Repeat != nil {
		unit := string(p.Repeat.Unit)
		month := int(p.Repeat.Month)
		day := p.Repeat.Day
		row.RepeatUnit, row.RepeatMonth, row.RepeatDay = &unit, &month, &day
	}
	return row
}

func (r policyRow) toDomain() vacation.Policy {
	p := vacation.Policy{
		ID:                    vacation.PolicyID(r.ID),
		Name:                  r.Name,
		VacationType:          vacation.VacationType(r.VacationType),
		GrantMethod:           vacation.GrantMethod(r.GrantMethod),
		FixedAmount:           days(r.FixedAmount),
		IsFlexibleGrant:       r.IsFlexibleGrant,
		ApprovalRequiredCount: r.ApprovalRequiredCount,
		EffectiveType:         vacation.EffectiveType(r.EffectiveType),
		ExpirationType:        vacation.ExpirationType(r.ExpirationType),
		CreatedAt:             r.CreatedAt,
		DeletedAt:             r.DeletedAt,
	}
	if r.RepeatUnit != nil {
		p.Repeat = &vacation.RepeatSchedule{Unit: vacation.RepeatUnit(*r.RepeatUnit)}
		if r.RepeatMonth != nil {
			p.Repeat.Month = time.Month(*r.RepeatMonth)
		}
		if r.RepeatDay != nil {
			p.Repeat.Day = *r.RepeatDay
		}
	}
	return p
}

func toAssignmentRow(a *vacation.Assignment) assignmentRow {
	return assignmentRow{
		ID:         int64(a.ID),
		UserID:     string(a.UserID),
		PolicyID:   int64(a.PolicyID),
		AssignedAt: a.AssignedAt,
		DeletedAt:  a.DeletedAt,
	}
}

func (r assignmentRow) toDomain() vacation.Assignment {
	return vacation.Assignment{
		ID:         vacation.AssignmentID(r.ID),
		UserID:     vacation.UserID(r.UserID),
		PolicyID:   vacation.PolicyID(r.PolicyID),
		AssignedAt: r.AssignedAt,
		DeletedAt:  r.DeletedAt,
	}
}

func toGrantRow(g *vacation.Grant) grantRow {
	return grantRow{
		ID:           int64(g.ID),
		UserID:       string(g.UserID),
		PolicyID:     int64(g.PolicyID),
		VacationType: string(g.VacationType),
		GrantTime:    g.GrantTime.Value,
		RemainTime:   g.RemainTime.Value,
		GrantDate:    generic.DateOf(g.GrantDate),
		ExpiryDate:   generic.DateOf(g.ExpiryDate),
		Status:       string(g.Status),
		Description:  g.Desc,
		RequestStart: g.RequestStart,
		RequestEnd:   g.RequestEnd,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func (r grantRow) toDomain() vacation.Grant {
	return vacation.Grant{
		ID:           vacation.GrantID(r.ID),
		UserID:       vacation.UserID(r.UserID),
		PolicyID:     vacation.PolicyID(r.PolicyID),
		VacationType: vacation.VacationType(r.VacationType),
		GrantTime:    days(r.GrantTime),
		RemainTime:   days(r.RemainTime),
		GrantDate:    generic.DateOf(r.GrantDate),
		ExpiryDate:   generic.DateOf(r.ExpiryDate),
		Status:       vacation.GrantStatus(r.Status),
		Desc:         r.Description,
		RequestStart: r.RequestStart,
		RequestEnd:   r.RequestEnd,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toUsageRow(u *vacation.Usage) usageRow {
	return usageRow{
		ID:           int64(u.ID),
		UserID:       string(u.UserID),
		VacationType: string(u.VacationType),
		Description:  u.Desc,
		TimeType:     string(u.TimeType),
		StartDate:    u.StartDate,
		EndDate:      u.EndDate,
		UsedTime:     u.UsedTime.Value,
		CreatedAt:    u.CreatedAt,
		DeletedAt:    u.DeletedAt,
	}
}

func (r usageRow) toDomain() vacation.Usage {
	return vacation.Usage{
		ID:           vacation.UsageID(r.ID),
		UserID:       vacation.UserID(r.UserID),
		VacationType: vacation.VacationType(r.VacationType),
		Desc:         r.Description,
		TimeType:     vacation.TimeType(r.TimeType),
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		UsedTime:     days(r.UsedTime),
		CreatedAt:    r.CreatedAt,
		DeletedAt:    r.DeletedAt,
	}
}

func toDeductionRow(d *vacation.Deduction) deductionRow {
	return deductionRow{
		ID:           int64(d.ID),
		UsageID:      int64(d.UsageID),
		GrantID:      int64(d.GrantID),
		DeductedTime: d.DeductedTime.Value,
	}
}

func (r deductionRow) toDomain() vacation.Deduction {
	return vacation.Deduction{
		ID:           vacation.DeductionID(r.ID),
		UsageID:      vacation.UsageID(r.UsageID),
		GrantID:      vacation.GrantID(r.GrantID),
		DeductedTime: days(r.DeductedTime),
	}
}

func toApprovalRow(a *vacation.Approval) approvalRow {
	return approvalRow{
		ID:              int64(a.ID),
		GrantID:         int64(a.GrantID),
		ApproverID:      string(a.ApproverID),
		ApprovalOrder:   a.Order,
		Status:          string(a.Status),
		ApprovalDate:    a.ApprovalDate,
		RejectionReason: a.RejectionReason,
	}
}

func (r approvalRow) toDomain() vacation.Approval {
	return vacation.Approval{
		ID:              vacation.ApprovalID(r.ID),
		GrantID:         vacation.GrantID(r.GrantID),
		ApproverID:      vacation.UserID(r.ApproverID),
		Order:           r.ApprovalOrder,
		Status:          vacation.ApprovalStatus(r.Status),
		ApprovalDate:    r.ApprovalDate,
		RejectionReason: r.RejectionReason,
	}
}
