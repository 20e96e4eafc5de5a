/*
store.go - Persistence contract for the vacation engine

PURPOSE:
  Defines the interface between the domain logic and the database. Every
  Service operation runs inside exactly one Store.WithTx call; all reads
  that decide a mutation happen through the same Tx.

LOCKING:
  Tx methods taking forUpdate (or GrantQuery.ForUpdate) must lock the rows
  they return until the transaction ends. Grants are always locked in the
  FIFO order (ExpiryDate ASC, ID ASC) so that racing writers acquire them in
  the same sequence. A lock that cannot be acquired within the store's bound
  surfaces as generic.ErrLockTimeout.

  Policy reads take a RowLock: writers creating or activating grants under a
  policy hold it shared, DeletePolicy holds it exclusively, so no grant can
  become ACTIVE under a policy whose cascade already ran.

IDS:
  Save* assigns a new id when the entity's ID is zero, and updates otherwise.

IMPLEMENTATIONS:
  - store/memory:  single-writer gate + snapshot rollback (tests, dev)
  - store/sqlite:  database/sql + go-sqlite3
  - store/gormdb:  gorm, PostgreSQL in production (SELECT ... FOR UPDATE)
*/
package vacation

import (
	"context"
	"sort"
	"time"
)

// Store opens transactions.
type Store interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used by the Service.
type Tx interface {
	// Policies. GetPolicy returns soft-deleted policies too.
	GetPolicy(ctx context.Context, id PolicyID, lock RowLock) (*Policy, error)
	SavePolicy(ctx context.Context, p *Policy) error
	ListPolicies(ctx context.Context, includeDeleted bool) ([]Policy, error)

	// Assignments. Only live (not deleted) assignments are returned.
	GetAssignment(ctx context.Context, userID UserID, policyID PolicyID) (*Assignment, error)
	ListAssignments(ctx context.Context, policyID PolicyID) ([]Assignment, error)
	SaveAssignment(ctx context.Context, a *Assignment) error

	// Grants. FindGrants returns grants ordered ExpiryDate ASC, ID ASC.
	GetGrant(ctx context.Context, id GrantID, forUpdate bool) (*Grant, error)
	FindGrants(ctx context.Context, q GrantQuery) ([]Grant, error)
	SaveGrant(ctx context.Context, g *Grant) error

	// Usages and their deductions.
	GetUsage(ctx context.Context, id UsageID, forUpdate bool) (*Usage, error)
	ListUsages(ctx context.Context, userID UserID) ([]Usage, error)
	SaveUsage(ctx context.Context, u *Usage) error
	ListDeductions(ctx context.Context, usageID UsageID) ([]Deduction, error)
	SaveDeduction(ctx context.Context, d *Deduction) error

	// Approvals. ListApprovals is ordered by Order ASC.
	GetApproval(ctx context.Context, id ApprovalID, forUpdate bool) (*Approval, error)
	ListApprovals(ctx context.Context, grantID GrantID) ([]Approval, error)
	ListPendingApprovals(ctx context.Context, approverID UserID) ([]Approval, error)
	SaveApproval(ctx context.Context, a *Approval) error
}

// RowLock selects the lock a read takes on the returned row: none, shared
// (FOR SHARE) or exclusive (FOR UPDATE).
type RowLock int

const (
	NoLock RowLock = iota
	LockShare
	LockUpdate
)

// =============================================================================
// GRANT QUERY
// =============================================================================

// GrantQuery filters grants. Zero-valued fields do not filter.
type GrantQuery struct {
	IDs          []GrantID
	UserID       UserID
	PolicyID     PolicyID
	VacationType VacationType
	Statuses     []GrantStatus

	// CoversDate keeps grants with GrantDate <= date <= ExpiryDate.
	CoversDate *time.Time

	// ForUpdate locks the returned rows.
	ForUpdate bool
}

// Matches applies the query to one grant. Stores that filter in Go use it.
func (q GrantQuery) Matches(g *Grant) bool {
	if len(q.IDs) > 0 && !containsID(q.IDs, g.ID) {
		return false
	}
	if q.UserID != "" && g.UserID != q.UserID {
		return false
	}
	if q.PolicyID != 0 && g.PolicyID != q.PolicyID {
		return false
	}
	if q.VacationType != "" && g.VacationType != q.VacationType {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, g.Status) {
		return false
	}
	if q.CoversDate != nil && !g.Covers(*q.CoversDate) {
		return false
	}
	return true
}

// SortFIFO orders grants ExpiryDate ASC, ID ASC.
func SortFIFO(grants []Grant) {
	sort.SliceStable(grants, func(i, j int) bool {
		if !grants[i].ExpiryDate.Equal(grants[j].ExpiryDate) {
			return grants[i].ExpiryDate.Before(grants[j].ExpiryDate)
		}
		return grants[i].ID < grants[j].ID
	})
}

func containsID(ids []GrantID, id GrantID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsStatus(statuses []GrantStatus, s GrantStatus) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}
