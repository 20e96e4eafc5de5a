package vacation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// chain gives dave the hierarchy carol(1) -> bob(2) -> alice(3).
func chain(env *testEnv) {
	env.hierarchy["dave"] = []vacation.ApproverCandidate{
		{ApproverID: "carol", Level: 1},
		{ApproverID: "bob", Level: 2},
		{ApproverID: "alice", Level: 3},
	}
}

func (e *testEnv) request(t *testing.T, p *vacation.Policy, user vacation.UserID, approvers ...vacation.UserID) *vacation.RequestResult {
	t.Helper()
	res, err := e.svc.RequestVacation(context.Background(), vacation.RequestInput{
		UserID:      user,
		PolicyID:    p.ID,
		Desc:        "wedding",
		ApproverIDs: approvers,
	})
	require.NoError(t, err)
	return res
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequestVacation_EndToEnd_TwoOfThreeApprovers(t *testing.T) {
	// GIVEN: Policy requires 2 approvers, hierarchy yields 3 candidates
	// WHEN: dave picks alice(3) and carol(1), both approve in order
	// THEN: Approvals are ordered carol, alice; grant ends ACTIVE with full balance

	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "5", 2)
	env.assign(t, "dave", p)

	res := env.request(t, p, "dave", "alice", "carol")
	assert.Equal(t, vacation.StatusPending, res.Grant.Status)
	require.Len(t, res.Approvals, 2)
	assert.Equal(t, vacation.UserID("carol"), res.Approvals[0].ApproverID)
	assert.Equal(t, 1, res.Approvals[0].Order)
	assert.Equal(t, vacation.UserID("alice"), res.Approvals[1].ApproverID)
	assert.Equal(t, 2, res.Approvals[1].Order)

	g, err := env.svc.ApproveVacation(ctx, res.Approvals[0].ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusProgress, g.Status)

	env.now = env.now.Add(48 * time.Hour)
	g, err = env.svc.ApproveVacation(ctx, res.Approvals[1].ID, "alice")
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusActive, g.Status)
	assert.True(t, g.RemainTime.Equal(g.GrantTime))
	assert.True(t, g.GrantTime.Equal(days("5")))
	assert.Equal(t, "2025-01-08", generic.FormatDate(g.GrantDate), "dates computed at final approval")
	assert.Equal(t, "2026-01-07", generic.FormatDate(g.ExpiryDate))

	balance, err := env.svc.Balance(ctx, "dave", annual, date(2025, 1, 9))
	require.NoError(t, err)
	assert.True(t, balance.Equal(days("5")))
}

func TestApproveVacation_StrictOrder(t *testing.T) {
	// GIVEN: approvers [carol(order 1), bob(order 2)]
	// WHEN: bob approves first
	// THEN: out-of-order violation; after carol approves, bob activates the grant

	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "2", 2)
	env.assign(t, "dave", p)
	res := env.request(t, p, "dave", "bob", "carol")

	_, err := env.svc.ApproveVacation(ctx, res.Approvals[1].ID, "bob")
	require.Error(t, err)
	var rule *generic.RuleViolation
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "out_of_order", rule.Rule)
	assert.Equal(t, vacation.StatusPending, env.mustGrant(t, res.Grant.ID).Status)

	_, err = env.svc.ApproveVacation(ctx, res.Approvals[0].ID, "carol")
	require.NoError(t, err)

	g, err := env.svc.ApproveVacation(ctx, res.Approvals[1].ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusActive, g.Status)
}

func TestApproveVacation_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "2", 1)
	env.assign(t, "dave", p)
	res := env.request(t, p, "dave", "carol")
	approvalID := res.Approvals[0].ID

	_, err := env.svc.ApproveVacation(ctx, 4242, "carol")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = env.svc.ApproveVacation(ctx, approvalID, "bob")
	assert.ErrorIs(t, err, generic.ErrPermissionDenied)

	g, err := env.svc.ApproveVacation(ctx, approvalID, "carol")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusActive, g.Status, "single approver goes straight to ACTIVE")

	_, err = env.svc.ApproveVacation(ctx, approvalID, "carol")
	var rule *generic.RuleViolation
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "already_processed", rule.Rule)
}

func TestRequestVacation_ApproverValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "2", 2)
	env.assign(t, "dave", p)

	tests := []struct {
		name      string
		approvers []vacation.UserID
		want      error
	}{
		{"missing", nil, generic.ErrValidation},
		{"too few", []vacation.UserID{"carol"}, generic.ErrValidation},
		{"too many", []vacation.UserID{"carol", "bob", "alice"}, generic.ErrValidation},
		{"duplicate", []vacation.UserID{"carol", "carol"}, generic.ErrBusinessRule},
		{"self", []vacation.UserID{"carol", "dave"}, generic.ErrBusinessRule},
		{"outsider", []vacation.UserID{"carol", "mallory"}, generic.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.RequestVacation(ctx, vacation.RequestInput{
				UserID: "dave", PolicyID: p.ID, Desc: "trip", ApproverIDs: tt.approvers,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	grants, err := env.svc.ListGrants(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, grants, "failed requests leave nothing behind")
}

func TestRequestVacation_PolicyChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	onRequest := env.onRequestPolicy(t, "2", 1)
	manual := env.manualPolicy(t, "2")
	env.assign(t, "dave", manual)

	_, err := env.svc.RequestVacation(ctx, vacation.RequestInput{UserID: "dave", PolicyID: onRequest.ID, Desc: " ", ApproverIDs: []vacation.UserID{"carol"}})
	assert.ErrorIs(t, err, generic.ErrValidation, "blank desc")

	_, err = env.svc.RequestVacation(ctx, vacation.RequestInput{UserID: "dave", PolicyID: 999, Desc: "x"})
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = env.svc.RequestVacation(ctx, vacation.RequestInput{UserID: "dave", PolicyID: manual.ID, Desc: "x"})
	assert.ErrorIs(t, err, generic.ErrBusinessRule, "not ON_REQUEST")

	_, err = env.svc.RequestVacation(ctx, vacation.RequestInput{UserID: "dave", PolicyID: onRequest.ID, Desc: "x", ApproverIDs: []vacation.UserID{"carol"}})
	assert.ErrorIs(t, err, generic.ErrBusinessRule, "not assigned")
}

func TestRequestVacation_TopOfHierarchyBypass(t *testing.T) {
	// GIVEN: Policy asks for 2 approvers, the CEO has nobody above
	// THEN: Grant is ACTIVE immediately, no approvals created

	env := newTestEnv(t)
	p := env.onRequestPolicy(t, "3", 2)
	env.assign(t, "ceo", p)

	res := env.request(t, p, "ceo")

	assert.Equal(t, vacation.StatusActive, res.Grant.Status)
	assert.Empty(t, res.Approvals)
	assert.Equal(t, "2025-01-06", generic.FormatDate(res.Grant.GrantDate))
}

func TestRequestVacation_FewerAvailableThanRequired(t *testing.T) {
	// GIVEN: Policy asks for 3, only 1 candidate
	// THEN: Exactly 1 approver is required

	env := newTestEnv(t)
	env.hierarchy["erin"] = []vacation.ApproverCandidate{{ApproverID: "carol", Level: 1}}
	p := env.onRequestPolicy(t, "1", 3)
	env.assign(t, "erin", p)

	res := env.request(t, p, "erin", "carol")
	require.Len(t, res.Approvals, 1)
}

func TestRequestVacation_FlexibleAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p, err := env.svc.CreatePolicy(ctx, vacation.Policy{
		Name: "Comp time", VacationType: annual, GrantMethod: vacation.GrantOnRequest,
		IsFlexibleGrant: true, EffectiveType: vacation.EffectiveNextDay, ExpirationType: vacation.ExpireThreeMonths,
	})
	require.NoError(t, err)
	env.assign(t, "ceo", p)

	_, err = env.svc.RequestVacation(ctx, vacation.RequestInput{UserID: "ceo", PolicyID: p.ID, Desc: "overtime"})
	assert.ErrorIs(t, err, generic.ErrValidation, "amount required")

	amt := days("1.5")
	res, err := env.svc.RequestVacation(ctx, vacation.RequestInput{UserID: "ceo", PolicyID: p.ID, Desc: "overtime", Amount: &amt})
	require.NoError(t, err)
	assert.True(t, res.Grant.GrantTime.Equal(days("1.5")))
	assert.Equal(t, "2025-01-07", generic.FormatDate(res.Grant.GrantDate))
	assert.Equal(t, "2025-04-06", generic.FormatDate(res.Grant.ExpiryDate))
}

// =============================================================================
// REJECT / CANCEL
// =============================================================================

func TestRejectVacation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "2", 2)
	env.assign(t, "dave", p)
	res := env.request(t, p, "dave", "carol", "bob")

	_, err := env.svc.RejectVacation(ctx, res.Approvals[0].ID, "carol", "  ")
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = env.svc.ApproveVacation(ctx, res.Approvals[0].ID, "carol")
	require.NoError(t, err)

	g, err := env.svc.RejectVacation(ctx, res.Approvals[1].ID, "bob", "team offsite")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusRejected, g.Status)

	approvals, err := env.svc.ListApprovals(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.ApprovalApproved, approvals[0].Status)
	assert.Equal(t, vacation.ApprovalRejected, approvals[1].Status)
	assert.Equal(t, "team offsite", approvals[1].RejectionReason)

	pending, err := env.svc.PendingApprovals(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRejectVacation_ClosesRemainingApprovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "2", 2)
	env.assign(t, "dave", p)
	res := env.request(t, p, "dave", "carol", "bob")

	_, err := env.svc.RejectVacation(ctx, res.Approvals[0].ID, "carol", "no")
	require.NoError(t, err)

	_, err = env.svc.ApproveVacation(ctx, res.Approvals[1].ID, "bob")
	var rule *generic.RuleViolation
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "grant_not_pending", rule.Rule)

	pending, err := env.svc.PendingApprovals(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending, "moot approvals are hidden")
}

func TestCancelVacationRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "2", 2)
	env.assign(t, "dave", p)

	first := env.request(t, p, "dave", "carol", "bob")

	_, err := env.svc.CancelVacationRequest(ctx, first.Grant.ID, "carol")
	assert.ErrorIs(t, err, generic.ErrPermissionDenied)

	g, err := env.svc.CancelVacationRequest(ctx, first.Grant.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusCanceled, g.Status)

	// GIVEN: A request that already has one approval (PROGRESS)
	// THEN: It can no longer be canceled
	second := env.request(t, p, "dave", "carol", "bob")
	_, err = env.svc.ApproveVacation(ctx, second.Approvals[0].ID, "carol")
	require.NoError(t, err)

	_, err = env.svc.CancelVacationRequest(ctx, second.Grant.ID, "dave")
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}

func TestApproveVacation_RefusedAfterPolicyDeleted(t *testing.T) {
	// GIVEN: a pending request under a policy that is then deleted
	// WHEN: the approver approves it
	// THEN: the approval is refused, the grant stays PENDING with no balance,
	//       and the requester can still cancel it

	env := newTestEnv(t)
	ctx := context.Background()
	chain(env)
	p := env.onRequestPolicy(t, "3", 1)
	env.assign(t, "dave", p)
	res := env.request(t, p, "dave", "carol")

	_, err := env.svc.DeletePolicy(ctx, p.ID)
	require.NoError(t, err)

	_, err = env.svc.ApproveVacation(ctx, res.Approvals[0].ID, "carol")
	assert.ErrorIs(t, err, generic.ErrBusinessRule)

	g := env.mustGrant(t, res.Grant.ID)
	assert.Equal(t, vacation.StatusPending, g.Status)

	approvals, err := env.svc.ListApprovals(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.ApprovalPending, approvals[0].Status, "refused approval is not recorded")

	_, err = env.svc.UseVacation(ctx, dayOff("dave", date(2025, 1, 8), date(2025, 1, 8)))
	assert.ErrorIs(t, err, generic.ErrBusinessRule, "nothing to spend")

	g, err = env.svc.CancelVacationRequest(ctx, g.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusCanceled, g.Status)
}

// =============================================================================
// APPROVER RESOLUTION (pure)
// =============================================================================

func TestResolveApprovers_SortsByLevel(t *testing.T) {
	available := []vacation.ApproverCandidate{
		{ApproverID: "m1", Level: 1},
		{ApproverID: "m2", Level: 2},
		{ApproverID: "m3", Level: 3},
	}

	got, err := vacation.ResolveApprovers("emp", 2, available, []vacation.UserID{"m3", "m1"})
	require.NoError(t, err)
	assert.Equal(t, []vacation.ApproverCandidate{
		{ApproverID: "m1", Level: 1},
		{ApproverID: "m3", Level: 3},
	}, got)
}

func TestResolveApprovers_NoneRequired(t *testing.T) {
	got, err := vacation.ResolveApprovers("emp", 0, []vacation.ApproverCandidate{{ApproverID: "m1", Level: 1}}, []vacation.UserID{"m1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = vacation.ResolveApprovers("ceo", 2, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRequiredApprovers(t *testing.T) {
	two := make([]vacation.ApproverCandidate, 2)
	assert.Equal(t, 2, vacation.RequiredApprovers(5, two))
	assert.Equal(t, 1, vacation.RequiredApprovers(1, two))
	assert.Equal(t, 0, vacation.RequiredApprovers(-1, two))
	assert.Equal(t, 0, vacation.RequiredApprovers(3, nil))
}
