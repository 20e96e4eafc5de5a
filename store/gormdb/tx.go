package gormdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// txView implements vacation.Tx over one gorm transaction.
type txView struct {
	db       *gorm.DB
	rowLocks bool
}

var _ vacation.Tx = (*txView)(nil)

func (v *txView) q(ctx context.Context, forUpdate bool) *gorm.DB {
	if forUpdate {
		return v.locked(ctx, vacation.LockUpdate)
	}
	return v.locked(ctx, vacation.NoLock)
}

// locked adds FOR SHARE / FOR UPDATE when the dialect has row locks; other
// dialects are already serialized by the store gate.
func (v *txView) locked(ctx context.Context, lock vacation.RowLock) *gorm.DB {
	q := v.db.WithContext(ctx)
	if !v.rowLocks {
		return q
	}
	switch lock {
	case vacation.LockShare:
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	case vacation.LockUpdate:
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// first loads one row by primary key, mapping "no row" to NotFoundError.
func first[R any](q *gorm.DB, kind string, id int64) (*R, error) {
	var row R
	err := q.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, generic.NotFound(kind, id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &row, nil
}

// save inserts when id is zero and updates otherwise; gorm fills row.ID on insert.
func save[R any](q *gorm.DB, row *R, id int64) error {
	if id == 0 {
		return q.Create(row).Error
	}
	return q.Save(row).Error
}

// =============================================================================
// POLICIES
// =============================================================================

func (v *txView) GetPolicy(ctx context.Context, id vacation.PolicyID, lock vacation.RowLock) (*vacation.Policy, error) {
	row, err := first[policyRow](v.locked(ctx, lock), "policy", int64(id))
	if err != nil {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

func (v *txView) SavePolicy(ctx context.Context, p *vacation.Policy) error {
	row := toPolicyRow(p)
	if err := save(v.q(ctx, false), &row, row.ID); err != nil {
		return fmt.Errorf("save policy: %w", mapError(err))
	}
	p.ID = vacation.PolicyID(row.ID)
	return nil
}

func (v *txView) ListPolicies(ctx context.Context, includeDeleted bool) ([]vacation.Policy, error) {
	var rows []policyRow
	q := v.q(ctx, false)
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]vacation.Policy, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (v *txView) GetAssignment(ctx context.Context, userID vacation.UserID, policyID vacation.PolicyID) (*vacation.Assignment, error) {
	var row assignmentRow
	err := v.q(ctx, false).
		Where("user_id = ? AND policy_id = ? AND deleted_at IS NULL", string(userID), int64(policyID)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, generic.NotFound("assignment", fmt.Sprintf("%s/%d", userID, policyID))
	}
	if err != nil {
		return nil, mapError(err)
	}
	a := row.toDomain()
	return &a, nil
}

func (v *txView) ListAssignments(ctx context.Context, policyID vacation.PolicyID) ([]vacation.Assignment, error) {
	var rows []assignmentRow
	if err := v.q(ctx, false).
		Where("policy_id = ? AND deleted_at IS NULL", int64(policyID)).
		Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]vacation.Assignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (v *txView) SaveAssignment(ctx context.Context, a *vacation.Assignment) error {
	row := toAssignmentRow(a)
	if err := save(v.q(ctx, false), &row, row.ID); err != nil {
		if isUniqueViolation(err) {
			return generic.Violation("already_assigned", "policy %d is already assigned to %s", a.PolicyID, a.UserID)
		}
		return fmt.Errorf("save assignment: %w", mapError(err))
	}
	a.ID = vacation.AssignmentID(row.ID)
	return nil
}

// =============================================================================
// GRANTS
// =============================================================================

func (v *txView) GetGrant(ctx context.Context, id vacation.GrantID, forUpdate bool) (*vacation.Grant, error) {
	row, err := first[grantRow](v.q(ctx, forUpdate), "grant", int64(id))
	if err != nil {
		return nil, err
	}
	g := row.toDomain()
	return &g, nil
}

// FindGrants filters in SQL on every column except CoversDate, which is
// applied in Go so that date semantics do not depend on the dialect. Rows of
// the same user outside the date window may therefore be locked too.
func (v *txView) FindGrants(ctx context.Context, q vacation.GrantQuery) ([]vacation.Grant, error) {
	db := v.q(ctx, q.ForUpdate)
	if len(q.IDs) > 0 {
		ids := make([]int64, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = int64(id)
		}
		db = db.Where("id IN ?", ids)
	}
	if q.UserID != "" {
		db = db.Where("user_id = ?", string(q.UserID))
	}
	if q.PolicyID != 0 {
		db = db.Where("policy_id = ?", int64(q.PolicyID))
	}
	if q.VacationType != "" {
		db = db.Where("vacation_type = ?", string(q.VacationType))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		db = db.Where("status IN ?", statuses)
	}

	var rows []grantRow
	if err := db.Order("expiry_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}

	out := make([]vacation.Grant, 0, len(rows))
	for _, r := range rows {
		g := r.toDomain()
		if q.CoversDate != nil && !g.Covers(*q.CoversDate) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (v *txView) SaveGrant(ctx context.Context, g *vacation.Grant) error {
	row := toGrantRow(g)
	if err := save(v.q(ctx, false), &row, row.ID); err != nil {
		return fmt.Errorf("save grant: %w", mapError(err))
	}
	g.ID = vacation.GrantID(row.ID)
	return nil
}

// =============================================================================
// USAGES & DEDUCTIONS
// =============================================================================

// GetUsage with forUpdate re-reads the latest committed row once the lock is
// granted, so a concurrent cancel is seen as already deleted.
func (v *txView) GetUsage(ctx context.Context, id vacation.UsageID, forUpdate bool) (*vacation.Usage, error) {
	row, err := first[usageRow](v.q(ctx, forUpdate), "usage", int64(id))
	if err != nil {
		return nil, err
	}
	u := row.toDomain()
	return &u, nil
}

func (v *txView) ListUsages(ctx context.Context, userID vacation.UserID) ([]vacation.Usage, error) {
	var rows []usageRow
	if err := v.q(ctx, false).Where("user_id = ?", string(userID)).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]vacation.Usage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (v *txView) SaveUsage(ctx context.Context, u *vacation.Usage) error {
	row := toUsageRow(u)
	if err := save(v.q(ctx, false), &row, row.ID); err != nil {
		return fmt.Errorf("save usage: %w", mapError(err))
	}
	u.ID = vacation.UsageID(row.ID)
	return nil
}

func (v *txView) ListDeductions(ctx context.Context, usageID vacation.UsageID) ([]vacation.Deduction, error) {
	var rows []deductionRow
	if err := v.q(ctx, false).Where("usage_id = ?", int64(usageID)).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]vacation.Deduction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (v *txView) SaveDeduction(ctx context.Context, d *vacation.Deduction) error {
	row := toDeductionRow(d)
	if err := save(v.q(ctx, false), &row, row.ID); err != nil {
		return fmt.Errorf("save deduction: %w", mapError(err))
	}
	d.ID = vacation.DeductionID(row.ID)
	return nil
}

// =============================================================================
// APPROVALS
// =============================================================================

func (v *txView) GetApproval(ctx context.Context, id vacation.ApprovalID, forUpdate bool) (*vacation.Approval, error) {
	row, err := first[approvalRow](v.q(ctx, forUpdate), "approval", int64(id))
	if err != nil {
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

func (v *txView) ListApprovals(ctx context.Context, grantID vacation.GrantID) ([]vacation.Approval, error) {
	return v.findApprovals(v.q(ctx, false).Where("grant_id = ?", int64(grantID)).Order("approval_order"))
}

func (v *txView) ListPendingApprovals(ctx context.Context, approverID vacation.UserID) ([]vacation.Approval, error) {
	return v.findApprovals(v.q(ctx, false).
		Where("approver_id = ? AND status = ?", string(approverID), string(vacation.ApprovalPending)).
		Order("id"))
}

func (v *txView) findApprovals(q *gorm.DB) ([]vacation.Approval, error) {
	var rows []approvalRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]vacation.Approval, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (v *txView) SaveApproval(ctx context.Context, a *vacation.Approval) error {
	row := toApprovalRow(a)
	if err := save(v.q(ctx, false), &row, row.ID); err != nil {
		if isUniqueViolation(err) {
			return generic.Violation("approval_order_unique", "grant %d already has approval order %d", a.GrantID, a.Order)
		}
		return fmt.Errorf("save approval: %w", mapError(err))
	}
	a.ID = vacation.ApprovalID(row.ID)
	return nil
}
