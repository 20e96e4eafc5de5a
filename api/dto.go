/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in package vacation from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  - Amounts are decimal strings ("1.5"); bodies may also send JSON numbers
  - Grant validity dates are "YYYY-MM-DD"
  - Usage ranges and timestamps are RFC 3339

VALIDATION:
  Validation is done by the service, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyDefinition doubles as the policy request body
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AssignRequest assigns a policy to a user.
type AssignRequest struct {
	UserID string `json:"user_id"`
}

// ManualGrantRequest credits a grant directly (MANUAL_GRANT / REPEAT_GRANT).
type ManualGrantRequest struct {
	UserID     string           `json:"user_id"`
	PolicyID   int64            `json:"policy_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	GrantDate  string           `json:"grant_date"`
	ExpiryDate string           `json:"expiry_date"`
	Desc       string           `json:"desc"`
}

// VacationRequest asks for an ON_REQUEST grant through the approval chain.
// The requester is the caller (X-User-ID).
type VacationRequest struct {
	PolicyID     int64            `json:"policy_id"`
	Desc         string           `json:"desc"`
	ApproverIDs  []string         `json:"approver_ids"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	RequestStart *time.Time       `json:"request_start,omitempty"`
	RequestEnd   *time.Time       `json:"request_end,omitempty"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// UsageRequest creates or replaces a usage of the caller (X-User-ID).
type UsageRequest struct {
	VacationType string    `json:"vacation_type"`
	TimeType     string    `json:"time_type"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Desc         string    `json:"desc"`
}

func (r UsageRequest) toInput(user vacation.UserID) vacation.UseInput {
	return vacation.UseInput{
		UserID:       user,
		VacationType: vacation.VacationType(r.VacationType),
		TimeType:     vacation.TimeType(r.TimeType),
		Start:        r.Start,
		End:          r.End,
		Desc:         r.Desc,
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type PolicyDTO struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	VacationType          string          `json:"vacation_type"`
	GrantMethod           string          `json:"grant_method"`
	Amount                decimal.Decimal `json:"amount"`
	FlexibleAmount        bool            `json:"flexible_amount"`
	ApprovalRequiredCount *int            `json:"approval_required_count,omitempty"`
	Effective             string          `json:"effective"`
	Expiration            string          `json:"expiration"`
	Repeat                *RepeatDTO      `json:"repeat,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	DeletedAt             *time.Time      `json:"deleted_at,omitempty"`
}

type RepeatDTO struct {
	Unit  string `json:"unit"`
	Month int    `json:"month,omitempty"`
	Day   int    `json:"day"`
}

type AssignmentDTO struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	PolicyID   int64     `json:"policy_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

type GrantDTO struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	PolicyID     int64           `json:"policy_id"`
	VacationType string          `json:"vacation_type"`
	GrantTime    decimal.Decimal `json:"grant_time"`
	RemainTime   decimal.Decimal `json:"remain_time"`
	GrantDate    string          `json:"grant_date"`
	ExpiryDate   string          `json:"expiry_date"`
	Status       string          `json:"status"`
	Desc         string          `json:"desc"`
	RequestStart *time.Time      `json:"request_start,omitempty"`
	RequestEnd   *time.Time      `json:"request_end,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ApprovalDTO struct {
	ID              int64      `json:"id"`
	GrantID         int64      `json:"grant_id"`
	ApproverID      string     `json:"approver_id"`
	Order           int        `json:"order"`
	Status          string     `json:"status"`
	ApprovalDate    *time.Time `json:"approval_date,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// RequestResultDTO is the response of POST /api/requests.
type RequestResultDTO struct {
	Grant     GrantDTO      `json:"grant"`
	Approvals []ApprovalDTO `json:"approvals"`
}

type UsageDTO struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	VacationType string          `json:"vacation_type"`
	TimeType     string          `json:"time_type"`
	Desc         string          `json:"desc"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	UsedTime     decimal.Decimal `json:"used_time"`
	CreatedAt    time.Time       `json:"created_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	Deductions   []DeductionDTO  `json:"deductions,omitempty"`
}

type DeductionDTO struct {
	ID           int64           `json:"id"`
	GrantID      int64           `json:"grant_id"`
	DeductedTime decimal.Decimal `json:"deducted_time"`
}

type BalanceDTO struct {
	UserID       string          `json:"user_id"`
	VacationType string          `json:"vacation_type"`
	At           time.Time       `json:"at"`
	Balance      decimal.Decimal `json:"balance"`
}

type TimeTypeDTO struct {
	Name       string          `json:"name"`
	Multiplier decimal.Decimal `json:"multiplier"`
	WholeDay   bool            `json:"whole_day"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details string         `json:"details,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPolicyDTO(p vacation.Policy) PolicyDTO {
	dto := PolicyDTO{
		ID:                    int64(p.ID),
		Name:                  p.Name,
		VacationType:          string(p.VacationType),
		GrantMethod:           string(p.GrantMethod),
		Amount:                p.FixedAmount.Value,
		FlexibleAmount:        p.IsFlexibleGrant,
		ApprovalRequiredCount: p.ApprovalRequiredCount,
		Effective:             string(p.EffectiveType),
		Expiration:            string(p.ExpirationType),
		CreatedAt:             p.CreatedAt,
		DeletedAt:             p.DeletedAt,
	}
	if p.Repeat != nil {
		dto.Repeat = &RepeatDTO{Unit: string(p.Repeat.Unit), Month: int(p.Repeat.Month), Day: p.Repeat.Day}
	}
	return dto
}

func toAssignmentDTO(a vacation.Assignment) AssignmentDTO {
	return AssignmentDTO{ID: int64(a.ID), UserID: string(a.UserID), PolicyID: int64(a.PolicyID), AssignedAt: a.AssignedAt}
}

func toGrantDTO(g vacation.Grant) GrantDTO {
	return GrantDTO{
		ID:           int64(g.ID),
		UserID:       string(g.UserID),
		PolicyID:     int64(g.PolicyID),
		VacationType: string(g.VacationType),
		GrantTime:    g.GrantTime.Value,
		RemainTime:   g.RemainTime.Value,
		GrantDate:    generic.FormatDate(g.GrantDate),
		ExpiryDate:   generic.FormatDate(g.ExpiryDate),
		Status:       string(g.Status),
		Desc:         g.Desc,
		RequestStart: g.RequestStart,
		RequestEnd:   g.RequestEnd,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func toGrantDTOs(gs []vacation.Grant) []GrantDTO {
	out := make([]GrantDTO, len(gs))
	for i, g := range gs {
		out[i] = toGrantDTO(g)
	}
	return out
}

func toApprovalDTO(a vacation.Approval) ApprovalDTO {
	return ApprovalDTO{
		ID:              int64(a.ID),
		GrantID:         int64(a.GrantID),
		ApproverID:      string(a.ApproverID),
		Order:           a.Order,
		Status:          string(a.Status),
		ApprovalDate:    a.ApprovalDate,
		RejectionReason: a.RejectionReason,
	}
}

func toApprovalDTOs(as []vacation.Approval) []ApprovalDTO {
	out := make([]ApprovalDTO, len(as))
	for i, a := range as {
		out[i] = toApprovalDTO(a)
	}
	return out
}

func toUsageDTO(u vacation.Usage, ds []vacation.Deduction) UsageDTO {
	dto := UsageDTO{
		ID:           int64(u.ID),
		UserID:       string(u.UserID),
		VacationType: string(u.VacationType),
		TimeType:     string(u.TimeType),
		Desc:         u.Desc,
		StartDate:    u.StartDate,
		EndDate:      u.EndDate,
		UsedTime:     u.UsedTime.Value,
		CreatedAt:    u.CreatedAt,
		DeletedAt:    u.DeletedAt,
	}
	for _, d := range ds {
		dto.Deductions = append(dto.Deductions, DeductionDTO{ID: int64(d.ID), GrantID: int64(d.GrantID), DeductedTime: d.DeductedTime.Value})
	}
	return dto
}
