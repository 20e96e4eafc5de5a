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

// =============================================================================
// GRANT METHODS
// =============================================================================

func activeGrant(grant, remain string) *vacation.Grant {
	return &vacation.Grant{
		ID:         1,
		GrantTime:  days(grant),
		RemainTime: days(remain),
		GrantDate:  date(2025, 1, 1),
		ExpiryDate: date(2025, 12, 31),
		Status:     vacation.StatusActive,
	}
}

func TestGrant_DeductBeyondRemain_IsConsistencyError(t *testing.T) {
	g := activeGrant("2", "0.5")

	err := g.Deduct(days("1"), testNow)

	assert.ErrorIs(t, err, generic.ErrConsistency)
	assert.True(t, g.RemainTime.Equal(days("0.5")), "unchanged")
}

func TestGrant_RestoreCapsAtGrantTime(t *testing.T) {
	g := activeGrant("2", "1.5")

	require.NoError(t, g.Restore(days("1"), testNow))

	assert.True(t, g.RemainTime.Equal(days("2")))
}

func TestGrant_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    vacation.GrantStatus
		apply   func(*vacation.Grant) error
		want    vacation.GrantStatus
		wantErr bool
	}{
		{"pending to progress", vacation.StatusPending, func(g *vacation.Grant) error { return g.MarkProgress(testNow) }, vacation.StatusProgress, false},
		{"progress idempotent", vacation.StatusProgress, func(g *vacation.Grant) error { return g.MarkProgress(testNow) }, vacation.StatusProgress, false},
		{"active cannot progress", vacation.StatusActive, func(g *vacation.Grant) error { return g.MarkProgress(testNow) }, vacation.StatusActive, true},
		{"progress approve", vacation.StatusProgress, func(g *vacation.Grant) error { return g.Approve(testNow, testNow, testNow) }, vacation.StatusActive, false},
		{"rejected cannot approve", vacation.StatusRejected, func(g *vacation.Grant) error { return g.Approve(testNow, testNow, testNow) }, vacation.StatusRejected, true},
		{"progress reject", vacation.StatusProgress, func(g *vacation.Grant) error { return g.Reject(testNow) }, vacation.StatusRejected, false},
		{"pending cancel", vacation.StatusPending, func(g *vacation.Grant) error { return g.Cancel(testNow) }, vacation.StatusCanceled, false},
		{"progress cannot cancel", vacation.StatusProgress, func(g *vacation.Grant) error { return g.Cancel(testNow) }, vacation.StatusProgress, true},
		{"active expire", vacation.StatusActive, func(g *vacation.Grant) error { return g.Expire(testNow) }, vacation.StatusExpired, false},
		{"pending cannot expire", vacation.StatusPending, func(g *vacation.Grant) error { return g.Expire(testNow) }, vacation.StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := activeGrant("2", "2")
			g.Status = tt.from

			err := tt.apply(g)

			if tt.wantErr {
				assert.ErrorIs(t, err, generic.ErrBusinessRule)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, g.Status)
		})
	}
}

func TestGrant_RevokeOnlyWhenUnused(t *testing.T) {
	used := activeGrant("2", "1.5")
	err := used.Revoke(testNow)
	var rule *generic.RuleViolation
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "revoke_after_use", rule.Rule)

	require.NoError(t, used.CascadeRevoke(testNow))
	assert.Equal(t, vacation.StatusRevoked, used.Status)

	unused := activeGrant("2", "2")
	require.NoError(t, unused.Revoke(testNow))
	assert.Equal(t, vacation.StatusRevoked, unused.Status)
}

func TestGrant_ExhaustRequiresZeroBalance(t *testing.T) {
	g := activeGrant("2", "0.5")
	assert.ErrorIs(t, g.Exhaust(testNow), generic.ErrBusinessRule)

	require.NoError(t, g.Deduct(days("0.5"), testNow))
	require.NoError(t, g.Exhaust(testNow))
	assert.Equal(t, vacation.StatusExhausted, g.Status)
}

// =============================================================================
// MANUAL GRANTS
// =============================================================================

func TestGrantManually(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.manualPolicy(t, "15")

	_, err := env.svc.GrantManually(ctx, vacation.ManualGrantInput{UserID: "alice", PolicyID: p.ID})
	assert.ErrorIs(t, err, generic.ErrBusinessRule, "not assigned")

	env.assign(t, "alice", p)
	g, err := env.svc.GrantManually(ctx, vacation.ManualGrantInput{UserID: "alice", PolicyID: p.ID, Desc: "2025 allowance"})
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusActive, g.Status)
	assert.True(t, g.GrantTime.Equal(days("15")))
	assert.True(t, g.RemainTime.Equal(days("15")))
	assert.Equal(t, "2025-01-06", generic.FormatDate(g.GrantDate))
	assert.Equal(t, "2026-01-05", generic.FormatDate(g.ExpiryDate))

	_, err = env.svc.GrantManually(ctx, vacation.ManualGrantInput{
		UserID: "alice", PolicyID: p.ID, GrantDate: date(2025, 3, 1), ExpiryDate: date(2025, 2, 1),
	})
	assert.ErrorIs(t, err, generic.ErrValidation, "expiry before grant date")
}

func TestGrantManually_RejectsOnRequestPolicy(t *testing.T) {
	env := newTestEnv(t)
	p := env.onRequestPolicy(t, "2", 1)
	env.assign(t, "alice", p)

	_, err := env.svc.GrantManually(context.Background(), vacation.ManualGrantInput{UserID: "alice", PolicyID: p.ID})
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}

func TestRevokeGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unused := env.grant(t, "alice", "2", date(2025, 1, 1), date(2025, 1, 31))
	used := env.grant(t, "alice", "2", date(2025, 1, 1), date(2025, 12, 31))

	// Revoke the early-expiring grant first so the usage lands on the later one.
	_, err := env.svc.RevokeGrant(ctx, unused.ID)
	require.NoError(t, err)
	_, err = env.svc.UseVacation(ctx, dayOff("alice", date(2025, 1, 20), date(2025, 1, 20)))
	require.NoError(t, err)

	_, err = env.svc.RevokeGrant(ctx, used.ID)
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
	assert.Equal(t, vacation.StatusActive, env.mustGrant(t, used.ID).Status)
	assert.Equal(t, vacation.StatusRevoked, env.mustGrant(t, unused.ID).Status)

	_, err = env.svc.RevokeGrant(ctx, 12345)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// CASCADING REVOCATION
// =============================================================================

func TestDeletePolicy_CascadesToActiveGrantsOnly(t *testing.T) {
	// GIVEN: Under one policy: an unused ACTIVE grant, a partially used ACTIVE
	//        grant, and a PENDING request
	// WHEN: The policy is deleted
	// THEN: Both ACTIVE grants are REVOKED, the PENDING one stays PENDING

	env := newTestEnv(t)
	ctx := context.Background()
	env.hierarchy["dave"] = []vacation.ApproverCandidate{{ApproverID: "carol", Level: 1}}

	p, err := env.svc.CreatePolicy(ctx, vacation.Policy{
		Name: "Project leave", VacationType: annual, GrantMethod: vacation.GrantOnRequest,
		FixedAmount: days("2"), ApprovalRequiredCount: intPtr(1),
		EffectiveType: vacation.EffectiveImmediate, ExpirationType: vacation.ExpireEndOfYear,
	})
	require.NoError(t, err)
	env.assign(t, "dave", p)
	env.assign(t, "ceo", p)

	unused := env.request(t, p, "ceo").Grant // bypass -> ACTIVE
	used := env.request(t, p, "dave", "carol")
	_, err = env.svc.ApproveVacation(ctx, used.Approvals[0].ID, "carol")
	require.NoError(t, err)
	_, err = env.svc.UseVacation(ctx, dayOff("dave", date(2025, 1, 20), date(2025, 1, 20)))
	require.NoError(t, err)
	pending := env.request(t, p, "dave", "carol").Grant

	revoked, err := env.svc.DeletePolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, revoked, 2)

	assert.Equal(t, vacation.StatusRevoked, env.mustGrant(t, unused.ID).Status)
	usedAfter := env.mustGrant(t, used.Grant.ID)
	assert.Equal(t, vacation.StatusRevoked, usedAfter.Status)
	assert.True(t, usedAfter.RemainTime.Equal(days("1")), "balance kept for audit")
	assert.Equal(t, vacation.StatusPending, env.mustGrant(t, pending.ID).Status)

	policies, err := env.svc.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Empty(t, policies)

	_, err = env.svc.AssignPolicy(ctx, "erin", p.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound, "deleted policy")

	_, err = env.svc.DeletePolicy(ctx, p.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound, "already deleted")
}

func TestRevokeAssignment_ScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.manualPolicy(t, "3")
	env.assign(t, "alice", p)
	env.assign(t, "bob", p)

	ga, err := env.svc.GrantManually(ctx, vacation.ManualGrantInput{UserID: "alice", PolicyID: p.ID})
	require.NoError(t, err)
	gb, err := env.svc.GrantManually(ctx, vacation.ManualGrantInput{UserID: "bob", PolicyID: p.ID})
	require.NoError(t, err)

	revoked, err := env.svc.RevokeAssignment(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, ga.ID, revoked[0].ID)

	assert.Equal(t, vacation.StatusRevoked, env.mustGrant(t, ga.ID).Status)
	assert.Equal(t, vacation.StatusActive, env.mustGrant(t, gb.ID).Status)

	_, err = env.svc.GrantManually(ctx, vacation.ManualGrantInput{UserID: "alice", PolicyID: p.ID})
	assert.ErrorIs(t, err, generic.ErrBusinessRule, "no longer assigned")

	_, err = env.svc.RevokeAssignment(ctx, "alice", p.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestAssignPolicy_Twice(t *testing.T) {
	env := newTestEnv(t)
	p := env.manualPolicy(t, "1")
	env.assign(t, "alice", p)

	_, err := env.svc.AssignPolicy(context.Background(), "alice", p.ID)
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}

func TestBalance_IgnoresOutOfWindowGrants(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "alice", "2", date(2025, 1, 1), date(2025, 1, 31))
	env.grant(t, "alice", "3", date(2025, 1, 1), date(2025, 12, 31))

	jan, err := env.svc.Balance(context.Background(), "alice", annual, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	feb, err := env.svc.Balance(context.Background(), "alice", annual, date(2025, 2, 1))
	require.NoError(t, err)

	assert.True(t, jan.Equal(days("5")))
	assert.True(t, feb.Equal(days("3")))
}
