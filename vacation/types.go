/*
Package vacation implements the vacation ledger, the FIFO allocation engine
and the sequential approval workflow on top of the generic building blocks.

KEY CONCEPTS:
  Grant:      A credited batch of days with a validity window [GrantDate, ExpiryDate]
  Usage:      A debit consuming days from one or more grants
  Deduction:  The edge linking one usage to one grant for a specific amount
  Approval:   One step of a sequential, hierarchy-ordered approval chain

INVARIANTS:
  1. 0 <= grant.RemainTime <= grant.GrantTime at all times
  2. For every live usage, the sum of its deductions equals its UsedTime
  3. Approvals of one grant are approved strictly in increasing order
  4. Every mutation is all-or-nothing (one Store.WithTx per operation)

SEE ALSO:
  - generic/allocation.go: The greedy split used by UseVacation
  - store/: Store implementations (memory, sqlite, gorm/postgres)
*/
package vacation

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID is owned by the external user directory.
type UserID string

// Store-assigned sequences. Ascending ids follow creation order.
type (
	PolicyID     int64
	AssignmentID int64
	GrantID      int64
	UsageID      int64
	DeductionID  int64
	ApprovalID   int64
)

// VacationType groups grants that a usage may draw from (e.g. "ANNUAL").
type VacationType string

// =============================================================================
// ENUMS
// =============================================================================

type GrantMethod string

const (
	GrantManual    GrantMethod = "MANUAL_GRANT"
	GrantOnRequest GrantMethod = "ON_REQUEST"
	GrantRepeat    GrantMethod = "REPEAT_GRANT"
)

func (m GrantMethod) Valid() bool {
	switch m {
	case GrantManual, GrantOnRequest, GrantRepeat:
		return true
	}
	return false
}

type GrantStatus string

const (
	StatusPending   GrantStatus = "PENDING"
	StatusProgress  GrantStatus = "PROGRESS"
	StatusActive    GrantStatus = "ACTIVE"
	StatusRejected  GrantStatus = "REJECTED"
	StatusCanceled  GrantStatus = "CANCELED"
	StatusRevoked   GrantStatus = "REVOKED"
	StatusExpired   GrantStatus = "EXPIRED"
	StatusExhausted GrantStatus = "EXHAUSTED"
)

// IsAwaitingApproval returns true for PENDING and PROGRESS.
func (s GrantStatus) IsAwaitingApproval() bool {
	return s == StatusPending || s == StatusProgress
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)
