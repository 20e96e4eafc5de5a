// Package memory provides an in-memory vacation.Store (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps every table in maps. Writers are serialized by a TxGate with a
// bounded wait; a failed transaction restores the snapshot taken on entry.
type Store struct {
	gate *generic.TxGate
	data tables
}

type tables struct {
	seq         int64
	policies    map[vacation.PolicyID]vacation.Policy
	assignments map[vacation.AssignmentID]vacation.Assignment
	grants      map[vacation.GrantID]vacation.Grant
	usages      map[vacation.UsageID]vacation.Usage
	deductions  map[vacation.DeductionID]vacation.Deduction
	approvals   map[vacation.ApprovalID]vacation.Approval
}

var _ vacation.Store = (*Store)(nil)

// New returns an empty store. lockTimeout bounds how long WithTx waits for a
// concurrent transaction; zero means generic.DefaultLockTimeout.
func New(lockTimeout time.Duration) *Store {
	return &Store{
		gate: generic.NewTxGate(lockTimeout),
		data: tables{
			policies:    make(map[vacation.PolicyID]vacation.Policy),
			assignments: make(map[vacation.AssignmentID]vacation.Assignment),
			grants:      make(map[vacation.GrantID]vacation.Grant),
			usages:      make(map[vacation.UsageID]vacation.Usage),
			deductions:  make(map[vacation.DeductionID]vacation.Deduction),
			approvals:   make(map[vacation.ApprovalID]vacation.Approval),
		},
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Tx) error) error {
	release, err := s.gate.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	snapshot := s.data.clone()
	if err := fn(&txView{t: &s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (t tables) clone() tables {
	c := tables{
		seq:         t.seq,
		policies:    make(map[vacation.PolicyID]vacation.Policy, len(t.policies)),
		assignments: make(map[vacation.AssignmentID]vacation.Assignment, len(t.assignments)),
		grants:      make(map[vacation.GrantID]vacation.Grant, len(t.grants)),
		usages:      make(map[vacation.UsageID]vacation.Usage, len(t.usages)),
		deductions:  make(map[vacation.DeductionID]vacation.Deduction, len(t.deductions)),
		approvals:   make(map[vacation.ApprovalID]vacation.Approval, len(t.approvals)),
	}
	for k, v := range t.policies {
		c.policies[k] = v
	}
	for k, v := range t.assignments {
		c.assignments[k] = v
	}
	for k, v := range t.grants {
		c.grants[k] = v
	}
	for k, v := range t.usages {
		c.usages[k] = v
	}
	for k, v := range t.deductions {
		c.deductions[k] = v
	}
	for k, v := range t.approvals {
		c.approvals[k] = v
	}
	return c
}

func (t *tables) next() int64 {
	t.seq++
	return t.seq
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// txView works on the live maps; the gate guarantees it is the only writer.
// Values are copied in and out so callers never alias stored state.
type txView struct {
	t *tables
}

func (v *txView) GetPolicy(_ context.Context, id vacation.PolicyID, _ vacation.RowLock) (*vacation.Policy, error) {
	p, ok := v.t.policies[id]
	if !ok {
		return nil, generic.NotFound("policy", id)
	}
	return &p, nil
}

func (v *txView) SavePolicy(_ context.Context, p *vacation.Policy) error {
	if p.ID == 0 {
		p.ID = vacation.PolicyID(v.t.next())
	}
	v.t.policies[p.ID] = *p
	return nil
}

func (v *txView) ListPolicies(_ context.Context, includeDeleted bool) ([]vacation.Policy, error) {
	var out []vacation.Policy
	for _, p := range v.t.policies {
		if includeDeleted || !p.IsDeleted() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) GetAssignment(_ context.Context, userID vacation.UserID, policyID vacation.PolicyID) (*vacation.Assignment, error) {
	for _, a := range v.t.assignments {
		if a.UserID == userID && a.PolicyID == policyID && !a.IsDeleted() {
			return &a, nil
		}
	}
	return nil, generic.NotFound("assignment", fmt.Sprintf("%s/%d", userID, policyID))
}

func (v *txView) ListAssignments(_ context.Context, policyID vacation.PolicyID) ([]vacation.Assignment, error) {
	var out []vacation.Assignment
	for _, a := range v.t.assignments {
		if a.PolicyID == policyID && !a.IsDeleted() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) SaveAssignment(_ context.Context, a *vacation.Assignment) error {
	if a.ID == 0 {
		a.ID = vacation.AssignmentID(v.t.next())
	}
	v.t.assignments[a.ID] = *a
	return nil
}

func (v *txView) GetGrant(_ context.Context, id vacation.GrantID, _ bool) (*vacation.Grant, error) {
	g, ok := v.t.grants[id]
	if !ok {
		return nil, generic.NotFound("grant", id)
	}
	return &g, nil
}

func (v *txView) FindGrants(_ context.Context, q vacation.GrantQuery) ([]vacation.Grant, error) {
	var out []vacation.Grant
	for _, g := range v.t.grants {
		if q.Matches(&g) {
			out = append(out, g)
		}
	}
	vacation.SortFIFO(out)
	return out, nil
}

func (v *txView) SaveGrant(_ context.Context, g *vacation.Grant) error {
	if g.ID == 0 {
		g.ID = vacation.GrantID(v.t.next())
	}
	v.t.grants[g.ID] = *g
	return nil
}

func (v *txView) GetUsage(_ context.Context, id vacation.UsageID, _ bool) (*vacation.Usage, error) {
	u, ok := v.t.usages[id]
	if !ok {
		return nil, generic.NotFound("usage", id)
	}
	return &u, nil
}

func (v *txView) ListUsages(_ context.Context, userID vacation.UserID) ([]vacation.Usage, error) {
	var out []vacation.Usage
	for _, u := range v.t.usages {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) SaveUsage(_ context.Context, u *vacation.Usage) error {
	if u.ID == 0 {
		u.ID = vacation.UsageID(v.t.next())
	}
	v.t.usages[u.ID] = *u
	return nil
}

func (v *txView) ListDeductions(_ context.Context, usageID vacation.UsageID) ([]vacation.Deduction, error) {
	var out []vacation.Deduction
	for _, d := range v.t.deductions {
		if d.UsageID == usageID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) SaveDeduction(_ context.Context, d *vacation.Deduction) error {
	if d.ID == 0 {
		d.ID = vacation.DeductionID(v.t.next())
	}
	v.t.deductions[d.ID] = *d
	return nil
}

func (v *txView) GetApproval(_ context.Context, id vacation.ApprovalID, _ bool) (*vacation.Approval, error) {
	a, ok := v.t.approvals[id]
	if !ok {
		return nil, generic.NotFound("approval", id)
	}
	return &a, nil
}

func (v *txView) ListApprovals(_ context.Context, grantID vacation.GrantID) ([]vacation.Approval, error) {
	var out []vacation.Approval
	for _, a := range v.t.approvals {
		if a.GrantID == grantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (v *txView) ListPendingApprovals(_ context.Context, approverID vacation.UserID) ([]vacation.Approval, error) {
	var out []vacation.Approval
	for _, a := range v.t.approvals {
		if a.ApproverID == approverID && a.Status == vacation.ApprovalPending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *txView) SaveApproval(_ context.Context, a *vacation.Approval) error {
	if a.ID == 0 {
		a.ID = vacation.ApprovalID(v.t.next())
	}
	for _, other := range v.t.approvals {
		if other.GrantID == a.GrantID && other.Order == a.Order && other.ID != a.ID {
			return generic.Violation("approval_order_unique", "grant %d already has approval order %d", a.GrantID, a.Order)
		}
	}
	v.t.approvals[a.ID] = *a
	return nil
}
