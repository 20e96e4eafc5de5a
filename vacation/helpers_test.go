package vacation_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const annual vacation.VacationType = "ANNUAL"

// Monday 2025-01-06 08:00 UTC.
var testNow = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

type fakeHierarchy map[vacation.UserID][]vacation.ApproverCandidate

func (h fakeHierarchy) CandidateApprovers(_ context.Context, id vacation.UserID) ([]vacation.ApproverCandidate, error) {
	return h[id], nil
}

type fakeHolidays map[time.Time]string

func (h fakeHolidays) PublicHolidays(_ context.Context, _ string, from, to time.Time) (map[time.Time]string, error) {
	out := make(map[time.Time]string)
	for d, name := range h {
		if !d.Before(from) && !d.After(to) {
			out[d] = name
		}
	}
	return out, nil
}

type testEnv struct {
	svc       *vacation.Service
	store     *memory.Store
	now       time.Time
	hierarchy fakeHierarchy
	holidays  fakeHolidays
}

func newTestEnv(t *testing.T, opts ...vacation.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     memory.New(time.Second),
		now:       testNow,
		hierarchy: fakeHierarchy{},
		holidays:  fakeHolidays{},
	}
	base := []vacation.Option{
		vacation.WithHierarchy(env.hierarchy),
		vacation.WithHolidays(env.holidays),
		vacation.WithClock(func() time.Time { return env.now }),
		vacation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	env.svc = vacation.NewService(env.store, append(base, opts...)...)
	return env
}

func days(s string) generic.Amount {
	return generic.MustParseAmount(s, generic.UnitDays)
}

func date(y int, m time.Month, d int) time.Time { return generic.NewDate(y, m, d) }

func intPtr(n int) *int { return &n }

func (e *testEnv) manualPolicy(t *testing.T, amount string) *vacation.Policy {
	t.Helper()
	p, err := e.svc.CreatePolicy(context.Background(), vacation.Policy{
		Name:           "Annual leave",
		VacationType:   annual,
		GrantMethod:    vacation.GrantManual,
		FixedAmount:    days(amount),
		EffectiveType:  vacation.EffectiveImmediate,
		ExpirationType: vacation.ExpireOneYear,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) onRequestPolicy(t *testing.T, amount string, approvers int) *vacation.Policy {
	t.Helper()
	p, err := e.svc.CreatePolicy(context.Background(), vacation.Policy{
		Name:                  "Special leave",
		VacationType:          annual,
		GrantMethod:           vacation.GrantOnRequest,
		FixedAmount:           days(amount),
		ApprovalRequiredCount: intPtr(approvers),
		EffectiveType:         vacation.EffectiveImmediate,
		ExpirationType:        vacation.ExpireOneYear,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) assign(t *testing.T, user vacation.UserID, p *vacation.Policy) {
	t.Helper()
	_, err := e.svc.AssignPolicy(context.Background(), user, p.ID)
	require.NoError(t, err)
}

// grant credits amount to user under a fresh manual policy, valid [from, to].
func (e *testEnv) grant(t *testing.T, user vacation.UserID, amount string, from, to time.Time) *vacation.Grant {
	t.Helper()
	p := e.manualPolicy(t, amount)
	e.assign(t, user, p)
	g, err := e.svc.GrantManually(context.Background(), vacation.ManualGrantInput{
		UserID:     user,
		PolicyID:   p.ID,
		GrantDate:  from,
		ExpiryDate: to,
		Desc:       "test grant",
	})
	require.NoError(t, err)
	return g
}

func (e *testEnv) mustGrant(t *testing.T, id vacation.GrantID) *vacation.Grant {
	t.Helper()
	g, err := e.svc.GetGrant(context.Background(), id)
	require.NoError(t, err)
	return g
}

// dayOff is a whole-day usage on [from, to].
func dayOff(user vacation.UserID, from, to time.Time) vacation.UseInput {
	return vacation.UseInput{
		UserID:       user,
		VacationType: annual,
		TimeType:     vacation.TimeDay,
		Start:        from,
		End:          to,
		Desc:         "day off",
	}
}

// requireLedgerInvariants checks balance bounds on every grant of user and that
// every live usage is fully covered by its deductions.
func (e *testEnv) requireLedgerInvariants(t *testing.T, user vacation.UserID) {
	t.Helper()
	ctx := context.Background()

	grants, err := e.svc.ListGrants(ctx, user)
	require.NoError(t, err)
	for _, g := range grants {
		require.False(t, g.RemainTime.IsNegative(), "grant %d remain negative", g.ID)
		require.False(t, g.RemainTime.GreaterThan(g.GrantTime), "grant %d remain above grant", g.ID)
	}

	usages, err := e.svc.ListUsages(ctx, user)
	require.NoError(t, err)
	for _, u := range usages {
		if u.IsDeleted() {
			continue
		}
		_, ds, err := e.svc.GetUsage(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, vacation.SumDeductions(ds).Equal(u.UsedTime),
			"usage %d deductions %s != used %s", u.ID, vacation.SumDeductions(ds), u.UsedTime)
	}
}
