package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// txView implements vacation.Tx over one *sql.Tx. The immediate transaction
// already holds the database write lock, so forUpdate needs no extra SQL.
type txView struct {
	tx *sql.Tx
}

var _ vacation.Tx = (*txView)(nil)

func (v *txView) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := v.tx.QueryContext(ctx, query, args...)
	return rows, mapError(err)
}

func (v *txView) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := v.tx.ExecContext(ctx, query, args...)
	return res, mapError(err)
}

// insert runs an INSERT and returns the new row id.
func (v *txView) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := v.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// =============================================================================
// POLICIES
// =============================================================================

const policyColumns = `id, name, vacation_type, grant_method, fixed_amount, is_flexible_grant,
	approval_required_count, effective_type, expiration_type, repeat_unit, repeat_month,
	repeat_day, created_at, deleted_at`

func (v *txView) GetPolicy(ctx context.Context, id vacation.PolicyID, _ vacation.RowLock) (*vacation.Policy, error) {
	row := v.tx.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, int64(id))
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("policy", id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (v *txView) SavePolicy(ctx context.Context, p *vacation.Policy) error {
	var approvals sql.NullInt64
	if p.ApprovalRequiredCount != nil {
		approvals = sql.NullInt64{Int64: int64(*p.ApprovalRequiredCount), Valid: true}
	}
	var repeatUnit sql.NullString
	var repeatMonth, repeatDay sql.NullInt64
	if p.Repeat != nil {
		repeatUnit = sql.NullString{String: string(p.Repeat.Unit), Valid: true}
		repeatMonth = sql.NullInt64{Int64: int64(p.Repeat.Month), Valid: true}
		repeatDay = sql.NullInt64{Int64: int64(p.Repeat.Day), Valid: true}
	}
	args := []any{
		p.Name, string(p.VacationType), string(p.GrantMethod), p.FixedAmount.Value.String(),
		p.IsFlexibleGrant, approvals, string(p.EffectiveType), string(p.ExpirationType),
		repeatUnit, repeatMonth, repeatDay, formatTime(p.CreatedAt), nullTime(p.DeletedAt),
	}

	if p.ID == 0 {
		id, err := v.insert(ctx, `
			INSERT INTO policies (name, vacation_type, grant_method, fixed_amount, is_flexible_grant,
				approval_required_count, effective_type, expiration_type, repeat_unit, repeat_month,
				repeat_day, created_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("insert policy: %w", err)
		}
		p.ID = vacation.PolicyID(id)
		return nil
	}

	_, err := v.exec(ctx, `
		UPDATE policies SET name = ?, vacation_type = ?, grant_method = ?, fixed_amount = ?,
			is_flexible_grant = ?, approval_required_count = ?, effective_type = ?,
			expiration_type = ?, repeat_unit = ?, repeat_month = ?, repeat_day = ?,
			created_at = ?, deleted_at = ?
		WHERE id = ?`, append(args, int64(p.ID))...)
	if err != nil {
		return fmt.Errorf("update policy %d: %w", p.ID, err)
	}
	return nil
}

func (v *txView) ListPolicies(ctx context.Context, includeDeleted bool) ([]vacation.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	rows, err := v.query(ctx, query+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vacation.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPolicy(row rowScanner) (vacation.Policy, error) {
	var (
		p                      vacation.Policy
		id                     int64
		vacationType, method   string
		fixed                  string
		approvals              sql.NullInt64
		effective, expiration  string
		repeatUnit             sql.NullString
		repeatMonth, repeatDay sql.NullInt64
		createdAt              string
		deletedAt              sql.NullString
	)
	if err := row.Scan(&id, &p.Name, &vacationType, &method, &fixed, &p.IsFlexibleGrant,
		&approvals, &effective, &expiration, &repeatUnit, &repeatMonth, &repeatDay,
		&createdAt, &deletedAt); err != nil {
		return p, err
	}

	p.ID = vacation.PolicyID(id)
	p.VacationType = vacation.VacationType(vacationType)
	p.GrantMethod = vacation.GrantMethod(method)
	p.EffectiveType = vacation.EffectiveType(effective)
	p.ExpirationType = vacation.ExpirationType(expiration)

	var err error
	if p.FixedAmount, err = parseDays(fixed); err != nil {
		return p, fmt.Errorf("policy %d fixed_amount: %w", id, err)
	}
	if approvals.Valid {
		n := int(approvals.Int64)
		p.ApprovalRequiredCount = &n
	}
	if repeatUnit.Valid {
		p.Repeat = &vacation.RepeatSchedule{
			Unit:  vacation.RepeatUnit(repeatUnit.String),
			Month: time.Month(repeatMonth.Int64),
			Day:   int(repeatDay.Int64),
		}
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	p.DeletedAt, err = parseNullTime(deletedAt)
	return p, err
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

const assignmentColumns = `id, user_id, policy_id, assigned_at, deleted_at`

func (v *txView) GetAssignment(ctx context.Context, userID vacation.UserID, policyID vacation.PolicyID) (*vacation.Assignment, error) {
	row := v.tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
		WHERE user_id = ? AND policy_id = ? AND deleted_at IS NULL`, string(userID), int64(policyID))
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("assignment", fmt.Sprintf("%s/%d", userID, policyID))
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func (v *txView) ListAssignments(ctx context.Context, policyID vacation.PolicyID) ([]vacation.Assignment, error) {
	rows, err := v.query(ctx, `SELECT `+assignmentColumns+` FROM assignments
		WHERE policy_id = ? AND deleted_at IS NULL ORDER BY id`, int64(policyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vacation.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (v *txView) SaveAssignment(ctx context.Context, a *vacation.Assignment) error {
	if a.ID == 0 {
		id, err := v.insert(ctx, `INSERT INTO assignments (user_id, policy_id, assigned_at, deleted_at)
			VALUES (?, ?, ?, ?)`, string(a.UserID), int64(a.PolicyID), formatTime(a.AssignedAt), nullTime(a.DeletedAt))
		if isUniqueConstraintError(err) {
			return generic.Violation("already_assigned", "policy %d is already assigned to %s", a.PolicyID, a.UserID)
		}
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		a.ID = vacation.AssignmentID(id)
		return nil
	}

	_, err := v.exec(ctx, `UPDATE assignments SET user_id = ?, policy_id = ?, assigned_at = ?, deleted_at = ?
		WHERE id = ?`, string(a.UserID), int64(a.PolicyID), formatTime(a.AssignedAt), nullTime(a.DeletedAt), int64(a.ID))
	if err != nil {
		return fmt.Errorf("update assignment %d: %w", a.ID, err)
	}
	return nil
}

func scanAssignment(row rowScanner) (vacation.Assignment, error) {
	var (
		a          vacation.Assignment
		id, policy int64
		user       string
		assignedAt string
		deletedAt  sql.NullString
	)
	if err := row.Scan(&id, &user, &policy, &assignedAt, &deletedAt); err != nil {
		return a, err
	}
	a.ID = vacation.AssignmentID(id)
	a.UserID = vacation.UserID(user)
	a.PolicyID = vacation.PolicyID(policy)

	var err error
	if a.AssignedAt, err = parseTime(assignedAt); err != nil {
		return a, err
	}
	a.DeletedAt, err = parseNullTime(deletedAt)
	return a, err
}

// =============================================================================
// GRANTS
// =============================================================================

const grantColumns = `id, user_id, policy_id, vacation_type, grant_time, remain_time, grant_date,
	expiry_date, status, description, request_start, request_end, created_at, updated_at`

func (v *txView) GetGrant(ctx context.Context, id vacation.GrantID, _ bool) (*vacation.Grant, error) {
	row := v.tx.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM grants WHERE id = ?`, int64(id))
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("grant", id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

func (v *txView) FindGrants(ctx context.Context, q vacation.GrantQuery) ([]vacation.Grant, error) {
	var (
		where []string
		args  []any
	)
	if len(q.IDs) > 0 {
		where = append(where, `id IN (`+placeholders(len(q.IDs))+`)`)
		for _, id := range q.IDs {
			args = append(args, int64(id))
		}
	}
	if q.UserID != "" {
		where = append(where, `user_id = ?`)
		args = append(args, string(q.UserID))
	}
	if q.PolicyID != 0 {
		where = append(where, `policy_id = ?`)
		args = append(args, int64(q.PolicyID))
	}
	if q.VacationType != "" {
		where = append(where, `vacation_type = ?`)
		args = append(args, string(q.VacationType))
	}
	if len(q.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(q.Statuses))+`)`)
		for _, s := range q.Statuses {
			args = append(args, string(s))
		}
	}
	if q.CoversDate != nil {
		d := generic.FormatDate(*q.CoversDate)
		where = append(where, `grant_date <= ? AND expiry_date >= ?`)
		args = append(args, d, d)
	}

	query := `SELECT ` + grantColumns + ` FROM grants`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	rows, err := v.query(ctx, query+` ORDER BY expiry_date ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vacation.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (v *txView) SaveGrant(ctx context.Context, g *vacation.Grant) error {
	args := []any{
		string(g.UserID), int64(g.PolicyID), string(g.VacationType),
		g.GrantTime.Value.String(), g.RemainTime.Value.String(),
		generic.FormatDate(g.GrantDate), generic.FormatDate(g.ExpiryDate),
		string(g.Status), g.Desc, nullTime(g.RequestStart), nullTime(g.RequestEnd),
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	}

	if g.ID == 0 {
		id, err := v.insert(ctx, `
			INSERT INTO grants (user_id, policy_id, vacation_type, grant_time, remain_time, grant_date,
				expiry_date, status, description, request_start, request_end, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
		g.ID = vacation.GrantID(id)
		return nil
	}

	_, err := v.exec(ctx, `
		UPDATE grants SET user_id = ?, policy_id = ?, vacation_type = ?, grant_time = ?,
			remain_time = ?, grant_date = ?, expiry_date = ?, status = ?, description = ?,
			request_start = ?, request_end = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args, int64(g.ID))...)
	if err != nil {
		return fmt.Errorf("update grant %d: %w", g.ID, err)
	}
	return nil
}

func scanGrant(row rowScanner) (vacation.Grant, error) {
	var (
		g                        vacation.Grant
		id, policy               int64
		user, vacationType       string
		grantTime, remainTime    string
		grantDate, expiryDate    string
		status                   string
		requestStart, requestEnd sql.NullString
		createdAt, updatedAt     string
	)
	if err := row.Scan(&id, &user, &policy, &vacationType, &grantTime, &remainTime, &grantDate,
		&expiryDate, &status, &g.Desc, &requestStart, &requestEnd, &createdAt, &updatedAt); err != nil {
		return g, err
	}
	g.ID = vacation.GrantID(id)
	g.UserID = vacation.UserID(user)
	g.PolicyID = vacation.PolicyID(policy)
	g.VacationType = vacation.VacationType(vacationType)
	g.Status = vacation.GrantStatus(status)

	var err error
	if g.GrantTime, err = parseDays(grantTime); err != nil {
		return g, fmt.Errorf("grant %d grant_time: %w", id, err)
	}
	if g.RemainTime, err = parseDays(remainTime); err != nil {
		return g, fmt.Errorf("grant %d remain_time: %w", id, err)
	}
	if g.GrantDate, err = generic.ParseDate(grantDate); err != nil {
		return g, err
	}
	if g.ExpiryDate, err = generic.ParseDate(expiryDate); err != nil {
		return g, err
	}
	if g.RequestStart, err = parseNullTime(requestStart); err != nil {
		return g, err
	}
	if g.RequestEnd, err = parseNullTime(requestEnd); err != nil {
		return g, err
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return g, err
	}
	g.UpdatedAt, err = parseTime(updatedAt)
	return g, err
}

// =============================================================================
// USAGES & DEDUCTIONS
// =============================================================================

const usageColumns = `id, user_id, vacation_type, description, time_type, start_date, end_date,
	used_time, created_at, deleted_at`

func (v *txView) GetUsage(ctx context.Context, id vacation.UsageID, _ bool) (*vacation.Usage, error) {
	row := v.tx.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM usages WHERE id = ?`, int64(id))
	u, err := scanUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("usage", id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (v *txView) ListUsages(ctx context.Context, userID vacation.UserID) ([]vacation.Usage, error) {
	rows, err := v.query(ctx, `SELECT `+usageColumns+` FROM usages WHERE user_id = ? ORDER BY id`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vacation.Usage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (v *txView) SaveUsage(ctx context.Context, u *vacation.Usage) error {
	args := []any{
		string(u.UserID), string(u.VacationType), u.Desc, string(u.TimeType),
		formatTime(u.StartDate), formatTime(u.EndDate), u.UsedTime.Value.String(),
		formatTime(u.CreatedAt), nullTime(u.DeletedAt),
	}

	if u.ID == 0 {
		id, err := v.insert(ctx, `
			INSERT INTO usages (user_id, vacation_type, description, time_type, start_date, end_date,
				used_time, created_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
		u.ID = vacation.UsageID(id)
		return nil
	}

	_, err := v.exec(ctx, `
		UPDATE usages SET user_id = ?, vacation_type = ?, description = ?, time_type = ?,
			start_date = ?, end_date = ?, used_time = ?, created_at = ?, deleted_at = ?
		WHERE id = ?`, append(args, int64(u.ID))...)
	if err != nil {
		return fmt.Errorf("update usage %d: %w", u.ID, err)
	}
	return nil
}

func scanUsage(row rowScanner) (vacation.Usage, error) {
	var (
		u                   vacation.Usage
		id                  int64
		user, vacationType  string
		timeType            string
		startDate, endDate  string
		usedTime, createdAt string
		deletedAt           sql.NullString
	)
	if err := row.Scan(&id, &user, &vacationType, &u.Desc, &timeType, &startDate, &endDate,
		&usedTime, &createdAt, &deletedAt); err != nil {
		return u, err
	}
	u.ID = vacation.UsageID(id)
	u.UserID = vacation.UserID(user)
	u.VacationType = vacation.VacationType(vacationType)
	u.TimeType = vacation.TimeType(timeType)

	var err error
	if u.StartDate, err = parseTime(startDate); err != nil {
		return u, err
	}
	if u.EndDate, err = parseTime(endDate); err != nil {
		return u, err
	}
	if u.UsedTime, err = parseDays(usedTime); err != nil {
		return u, fmt.Errorf("usage %d used_time: %w", id, err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return u, err
	}
	u.DeletedAt, err = parseNullTime(deletedAt)
	return u, err
}

func (v *txView) ListDeductions(ctx context.Context, usageID vacation.UsageID) ([]vacation.Deduction, error) {
	rows, err := v.query(ctx, `SELECT id, usage_id, grant_id, deducted_time FROM deductions
		WHERE usage_id = ? ORDER BY id`, int64(usageID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vacation.Deduction
	for rows.Next() {
		var (
			id, usage, grant int64
			deducted         string
		)
		if err := rows.Scan(&id, &usage, &grant, &deducted); err != nil {
			return nil, err
		}
		amount, err := parseDays(deducted)
		if err != nil {
			return nil, fmt.Errorf("deduction %d: %w", id, err)
		}
		out = append(out, vacation.Deduction{
			ID:           vacation.DeductionID(id),
			UsageID:      vacation.UsageID(usage),
			GrantID:      vacation.GrantID(grant),
			DeductedTime: amount,
		})
	}
	return out, rows.Err()
}

func (v *txView) SaveDeduction(ctx context.Context, d *vacation.Deduction) error {
	if d.ID != 0 {
		_, err := v.exec(ctx, `UPDATE deductions SET usage_id = ?, grant_id = ?, deducted_time = ? WHERE id = ?`,
			int64(d.UsageID), int64(d.GrantID), d.DeductedTime.Value.String(), int64(d.ID))
		return err
	}
	id, err := v.insert(ctx, `INSERT INTO deductions (usage_id, grant_id, deducted_time) VALUES (?, ?, ?)`,
		int64(d.UsageID), int64(d.GrantID), d.DeductedTime.Value.String())
	if err != nil {
		return fmt.Errorf("insert deduction: %w", err)
	}
	d.ID = vacation.DeductionID(id)
	return nil
}

// =============================================================================
// APPROVALS
// =============================================================================

const approvalColumns = `id, grant_id, approver_id, approval_order, status, approval_date, rejection_reason`

func (v *txView) GetApproval(ctx context.Context, id vacation.ApprovalID, _ bool) (*vacation.Approval, error) {
	row := v.tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, int64(id))
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("approval", id)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func (v *txView) ListApprovals(ctx context.Context, grantID vacation.GrantID) ([]vacation.Approval, error) {
	return v.queryApprovals(ctx, `SELECT `+approvalColumns+` FROM approvals
		WHERE grant_id = ? ORDER BY approval_order`, int64(grantID))
}

func (v *txView) ListPendingApprovals(ctx context.Context, approverID vacation.UserID) ([]vacation.Approval, error) {
	return v.queryApprovals(ctx, `SELECT `+approvalColumns+` FROM approvals
		WHERE approver_id = ? AND status = ? ORDER BY id`, string(approverID), string(vacation.ApprovalPending))
}

func (v *txView) queryApprovals(ctx context.Context, query string, args ...any) ([]vacation.Approval, error) {
	rows, err := v.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vacation.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (v *txView) SaveApproval(ctx context.Context, a *vacation.Approval) error {
	args := []any{
		int64(a.GrantID), string(a.ApproverID), a.Order, string(a.Status),
		nullTime(a.ApprovalDate), a.RejectionReason,
	}

	var err error
	if a.ID == 0 {
		var id int64
		id, err = v.insert(ctx, `INSERT INTO approvals (grant_id, approver_id, approval_order, status,
			approval_date, rejection_reason) VALUES (?, ?, ?, ?, ?, ?)`, args...)
		if err == nil {
			a.ID = vacation.ApprovalID(id)
		}
	} else {
		_, err = v.exec(ctx, `UPDATE approvals SET grant_id = ?, approver_id = ?, approval_order = ?,
			status = ?, approval_date = ?, rejection_reason = ? WHERE id = ?`, append(args, int64(a.ID))...)
	}
	if isUniqueConstraintError(err) {
		return generic.Violation("approval_order_unique", "grant %d already has approval order %d", a.GrantID, a.Order)
	}
	if err != nil {
		return fmt.Errorf("save approval: %w", err)
	}
	return nil
}

func scanApproval(row rowScanner) (vacation.Approval, error) {
	var (
		a            vacation.Approval
		id, grant    int64
		approver     string
		status       string
		approvalDate sql.NullString
	)
	if err := row.Scan(&id, &grant, &approver, &a.Order, &status, &approvalDate, &a.RejectionReason); err != nil {
		return a, err
	}
	a.ID = vacation.ApprovalID(id)
	a.GrantID = vacation.GrantID(grant)
	a.ApproverID = vacation.UserID(approver)
	a.Status = vacation.ApprovalStatus(status)

	var err error
	a.ApprovalDate, err = parseNullTime(approvalDate)
	return a, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
