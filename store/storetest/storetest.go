/*
storetest.go - Shared conformance suite for vacation.Store implementations

PURPOSE:
  Every store (memory, sqlite, gormdb) must behave identically from the
  Service's point of view: same ordering, same filters, same not-found and
  rule errors, same rollback. Each store's _test.go calls Run with a
  factory that returns a fresh, empty store.

SEE ALSO:
  - vacation/store.go: The contract being checked
*/
package storetest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) vacation.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PolicyRoundTrip", func(t *testing.T) { testPolicyRoundTrip(t, newStore(t)) })
	t.Run("AssignmentLiveness", func(t *testing.T) { testAssignmentLiveness(t, newStore(t)) })
	t.Run("GrantFIFOOrder", func(t *testing.T) { testGrantFIFOOrder(t, newStore(t)) })
	t.Run("GrantFilters", func(t *testing.T) { testGrantFilters(t, newStore(t)) })
	t.Run("UsageAndDeductions", func(t *testing.T) { testUsageAndDeductions(t, newStore(t)) })
	t.Run("ApprovalChain", func(t *testing.T) { testApprovalChain(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ServiceLifecycle", func(t *testing.T) { testServiceLifecycle(t, newStore(t)) })
	t.Run("ConcurrentCancelRestoresOnce", func(t *testing.T) { testConcurrentCancel(t, newStore(t)) })
	t.Run("ExactDecimals", func(t *testing.T) { testExactDecimals(t, newStore(t)) })
}

var (
	created = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	annual  = vacation.VacationType("ANNUAL")
)

func days(s string) generic.Amount { return generic.MustParseAmount(s, generic.UnitDays) }

func inTx(t *testing.T, s vacation.Store, fn func(ctx context.Context, tx vacation.Tx)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx vacation.Tx) error {
		fn(ctx, tx)
		return nil
	}))
}

func seedPolicy(t *testing.T, s vacation.Store) *vacation.Policy {
	t.Helper()
	p := &vacation.Policy{
		Name:           "Annual leave",
		VacationType:   annual,
		GrantMethod:    vacation.GrantManual,
		FixedAmount:    days("15"),
		EffectiveType:  vacation.EffectiveImmediate,
		ExpirationType: vacation.ExpireOneYear,
		CreatedAt:      created,
	}
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		require.NoError(t, tx.SavePolicy(ctx, p))
	})
	require.NotZero(t, p.ID)
	return p
}

func seedGrant(t *testing.T, s vacation.Store, p *vacation.Policy, user vacation.UserID, amount string, from, to time.Time) *vacation.Grant {
	t.Helper()
	g := vacation.NewManualGrant(user, p, days(amount), from, to, "seed", created)
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		require.NoError(t, tx.SaveGrant(ctx, g))
	})
	require.NotZero(t, g.ID)
	return g
}

// =============================================================================
// CASES
// =============================================================================

func testPolicyRoundTrip(t *testing.T, s vacation.Store) {
	// GIVEN: a repeat policy with an approval count
	required := 2
	p := &vacation.Policy{
		Name:                  "Monthly credit",
		VacationType:          annual,
		GrantMethod:           vacation.GrantRepeat,
		FixedAmount:           days("1.25"),
		ApprovalRequiredCount: &required,
		EffectiveType:         vacation.EffectiveNextMonthStart,
		ExpirationType:        vacation.ExpireEndOfYear,
		Repeat:                &vacation.RepeatSchedule{Unit: vacation.RepeatMonthly, Day: 31},
		CreatedAt:             created,
	}
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		require.NoError(t, tx.SavePolicy(ctx, p))
	})

	// WHEN: it is read back
	var got *vacation.Policy
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		var err error
		got, err = tx.GetPolicy(ctx, p.ID, vacation.NoLock)
		require.NoError(t, err)
	})

	// THEN: every field survives
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, vacation.GrantRepeat, got.GrantMethod)
	assert.True(t, got.FixedAmount.Equal(days("1.25")))
	require.NotNil(t, got.ApprovalRequiredCount)
	assert.Equal(t, 2, *got.ApprovalRequiredCount)
	require.NotNil(t, got.Repeat)
	assert.Equal(t, vacation.RepeatMonthly, got.Repeat.Unit)
	assert.Equal(t, 31, got.Repeat.Day)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.DeletedAt)

	// AND: soft delete hides it from the live listing only
	deleted := created.Add(time.Hour)
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		got.DeletedAt = &deleted
		require.NoError(t, tx.SavePolicy(ctx, got))

		live, err := tx.ListPolicies(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, live)

		all, err := tx.ListPolicies(ctx, true)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0].IsDeleted())
	})

	err := s.WithTx(context.Background(), func(tx vacation.Tx) error {
		_, err := tx.GetPolicy(context.Background(), p.ID+1000, vacation.NoLock)
		return err
	})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testAssignmentLiveness(t *testing.T, s vacation.Store) {
	p := seedPolicy(t, s)
	a := &vacation.Assignment{UserID: "alice", PolicyID: p.ID, AssignedAt: created}

	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		require.NoError(t, tx.SaveAssignment(ctx, a))

		got, err := tx.GetAssignment(ctx, "alice", p.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		list, err := tx.ListAssignments(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	// WHEN: the assignment is soft-deleted
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		now := created.Add(time.Hour)
		a.DeletedAt = &now
		require.NoError(t, tx.SaveAssignment(ctx, a))
	})

	// THEN: it is no longer visible, and the pair can be assigned again
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		_, err := tx.GetAssignment(ctx, "alice", p.ID)
		assert.ErrorIs(t, err, generic.ErrNotFound)

		list, err := tx.ListAssignments(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		again := &vacation.Assignment{UserID: "alice", PolicyID: p.ID, AssignedAt: created}
		require.NoError(t, tx.SaveAssignment(ctx, again))
		assert.NotEqual(t, a.ID, again.ID)
	})
}

func testGrantFIFOOrder(t *testing.T, s vacation.Store) {
	// GIVEN: grants inserted out of expiry order, two sharing an expiry
	p := seedPolicy(t, s)
	late := seedGrant(t, s, p, "alice", "5", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 12, 31))
	tieA := seedGrant(t, s, p, "alice", "1", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 6, 30))
	early := seedGrant(t, s, p, "alice", "2", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 3, 31))
	tieB := seedGrant(t, s, p, "alice", "1", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 6, 30))

	// WHEN: they are queried for update
	var got []vacation.Grant
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		var err error
		got, err = tx.FindGrants(ctx, vacation.GrantQuery{UserID: "alice", ForUpdate: true})
		require.NoError(t, err)
	})

	// THEN: ExpiryDate ASC, then ID ASC
	require.Len(t, got, 4)
	assert.Equal(t, []vacation.GrantID{early.ID, tieA.ID, tieB.ID, late.ID},
		[]vacation.GrantID{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func testGrantFilters(t *testing.T, s vacation.Store) {
	p := seedPolicy(t, s)
	q1 := seedGrant(t, s, p, "alice", "0.125", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 3, 31))
	q2 := seedGrant(t, s, p, "alice", "3", generic.NewDate(2025, 4, 1), generic.NewDate(2025, 6, 30))
	seedGrant(t, s, p, "bob", "3", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 6, 30))

	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		// decimal precision survives storage
		g, err := tx.GetGrant(ctx, q1.ID, false)
		require.NoError(t, err)
		assert.True(t, g.RemainTime.Equal(days("0.125")), "got %s", g.RemainTime)
		assert.True(t, g.ExpiryDate.Equal(generic.NewDate(2025, 3, 31)))

		// covers date is inclusive at both ends
		on := generic.NewDate(2025, 3, 31)
		covering, err := tx.FindGrants(ctx, vacation.GrantQuery{UserID: "alice", CoversDate: &on})
		require.NoError(t, err)
		require.Len(t, covering, 1)
		assert.Equal(t, q1.ID, covering[0].ID)

		byIDs, err := tx.FindGrants(ctx, vacation.GrantQuery{IDs: []vacation.GrantID{q2.ID, q1.ID}})
		require.NoError(t, err)
		assert.Len(t, byIDs, 2)

		// status filter
		g.Status = vacation.StatusRevoked
		require.NoError(t, tx.SaveGrant(ctx, g))
		active, err := tx.FindGrants(ctx, vacation.GrantQuery{
			UserID:       "alice",
			VacationType: annual,
			Statuses:     []vacation.GrantStatus{vacation.StatusActive},
		})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, q2.ID, active[0].ID)

		byPolicy, err := tx.FindGrants(ctx, vacation.GrantQuery{PolicyID: p.ID})
		require.NoError(t, err)
		assert.Len(t, byPolicy, 3)

		_, err = tx.GetGrant(ctx, q2.ID+1000, true)
		assert.ErrorIs(t, err, generic.ErrNotFound)
	})
}

func testUsageAndDeductions(t *testing.T, s vacation.Store) {
	p := seedPolicy(t, s)
	g := seedGrant(t, s, p, "alice", "5", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 12, 31))

	// GIVEN: a half-day usage keeping its wall-clock start
	start := time.Date(2025, 2, 3, 13, 30, 0, 0, time.UTC)
	u := vacation.NewUsage(vacation.UseInput{
		UserID:       "alice",
		VacationType: annual,
		TimeType:     vacation.TimeAfternoonHalf,
		Start:        start,
		End:          start.Add(4 * time.Hour),
		Desc:         "dentist",
	}, days("0.5"), created)

	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		require.NoError(t, tx.SaveUsage(ctx, u))
		require.NoError(t, tx.SaveDeduction(ctx, &vacation.Deduction{UsageID: u.ID, GrantID: g.ID, DeductedTime: days("0.5")}))
	})

	// THEN: the usage and its deductions read back intact
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		got, err := tx.GetUsage(ctx, u.ID, false)
		require.NoError(t, err)
		assert.True(t, got.StartDate.Equal(start))
		assert.Equal(t, vacation.TimeAfternoonHalf, got.TimeType)
		assert.True(t, got.UsedTime.Equal(days("0.5")))
		assert.False(t, got.IsDeleted())

		ds, err := tx.ListDeductions(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, g.ID, ds[0].GrantID)
		assert.True(t, vacation.SumDeductions(ds).Equal(days("0.5")))

		list, err := tx.ListUsages(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		none, err := tx.ListUsages(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func testApprovalChain(t *testing.T, s vacation.Store) {
	p := seedPolicy(t, s)
	g := seedGrant(t, s, p, "alice", "1", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 12, 31))

	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		// inserted in reverse order on purpose
		for _, a := range []vacation.Approval{
			{GrantID: g.ID, ApproverID: "carol", Order: 2, Status: vacation.ApprovalPending},
			{GrantID: g.ID, ApproverID: "bob", Order: 1, Status: vacation.ApprovalPending},
		} {
			a := a
			require.NoError(t, tx.SaveApproval(ctx, &a))
		}
	})

	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		chain, err := tx.ListApprovals(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, vacation.UserID("bob"), chain[0].ApproverID)
		assert.Equal(t, vacation.UserID("carol"), chain[1].ApproverID)

		// approving bob's step removes it from his pending list
		now := created.Add(time.Hour)
		first := chain[0]
		first.Status = vacation.ApprovalApproved
		first.ApprovalDate = &now
		require.NoError(t, tx.SaveApproval(ctx, &first))

		pending, err := tx.ListPendingApprovals(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, pending)

		pending, err = tx.ListPendingApprovals(ctx, "carol")
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		got, err := tx.GetApproval(ctx, first.ID, true)
		require.NoError(t, err)
		require.NotNil(t, got.ApprovalDate)
		assert.True(t, got.ApprovalDate.Equal(now))
	})

	// order is unique per grant
	err := s.WithTx(context.Background(), func(tx vacation.Tx) error {
		return tx.SaveApproval(context.Background(), &vacation.Approval{
			GrantID: g.ID, ApproverID: "dave", Order: 1, Status: vacation.ApprovalPending,
		})
	})
	assert.ErrorIs(t, err, generic.ErrBusinessRule)
}

func testRollback(t *testing.T, s vacation.Store) {
	p := seedPolicy(t, s)
	boom := errors.New("boom")

	// WHEN: a transaction writes then fails
	err := s.WithTx(context.Background(), func(tx vacation.Tx) error {
		g := vacation.NewManualGrant("alice", p, days("3"), generic.NewDate(2025, 1, 1), generic.NewDate(2025, 12, 31), "", created)
		if err := tx.SaveGrant(context.Background(), g); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: nothing it wrote is visible
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		gs, err := tx.FindGrants(ctx, vacation.GrantQuery{UserID: "alice"})
		require.NoError(t, err)
		assert.Empty(t, gs)
	})
}

func testServiceLifecycle(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	now := created
	svc := vacation.NewService(s,
		vacation.WithClock(func() time.Time { return now }),
		vacation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	// GIVEN: two manual grants with different expiries
	p, err := svc.CreatePolicy(ctx, vacation.Policy{
		Name: "Annual", VacationType: annual, GrantMethod: vacation.GrantManual,
		FixedAmount: days("2"), EffectiveType: vacation.EffectiveImmediate, ExpirationType: vacation.ExpireOneYear,
	})
	require.NoError(t, err)
	_, err = svc.AssignPolicy(ctx, "alice", p.ID)
	require.NoError(t, err)

	first, err := svc.GrantManually(ctx, vacation.ManualGrantInput{
		UserID: "alice", PolicyID: p.ID,
		GrantDate: generic.NewDate(2025, 1, 1), ExpiryDate: generic.NewDate(2025, 3, 31),
	})
	require.NoError(t, err)
	second, err := svc.GrantManually(ctx, vacation.ManualGrantInput{
		UserID: "alice", PolicyID: p.ID,
		GrantDate: generic.NewDate(2025, 1, 1), ExpiryDate: generic.NewDate(2025, 12, 31),
	})
	require.NoError(t, err)

	// WHEN: three days (Mon-Wed) are used
	usage, err := svc.UseVacation(ctx, vacation.UseInput{
		UserID: "alice", VacationType: annual, TimeType: vacation.TimeDay,
		Start: generic.NewDate(2025, 2, 3), End: generic.NewDate(2025, 2, 5),
	})
	require.NoError(t, err)

	// THEN: the earlier-expiring grant is drained first
	g1, err := svc.GetGrant(ctx, first.ID)
	require.NoError(t, err)
	g2, err := svc.GetGrant(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, g1.RemainTime.IsZero())
	assert.True(t, g2.RemainTime.Equal(days("1")))

	// AND: canceling restores both
	_, err = svc.CancelUsage(ctx, usage.ID, "alice")
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, "alice", annual, generic.NewDate(2025, 2, 3))
	require.NoError(t, err)
	assert.True(t, balance.Equal(days("4")), "got %s", balance)
}

func testConcurrentCancel(t *testing.T, s vacation.Store) {
	ctx := context.Background()
	svc := vacation.NewService(s,
		vacation.WithClock(func() time.Time { return created }),
		vacation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	// GIVEN: a 5 day grant funding two live one-day usages
	p, err := svc.CreatePolicy(ctx, vacation.Policy{
		Name: "Annual", VacationType: annual, GrantMethod: vacation.GrantManual,
		FixedAmount: days("5"), EffectiveType: vacation.EffectiveImmediate, ExpirationType: vacation.ExpireOneYear,
	})
	require.NoError(t, err)
	_, err = svc.AssignPolicy(ctx, "alice", p.ID)
	require.NoError(t, err)
	g, err := svc.GrantManually(ctx, vacation.ManualGrantInput{
		UserID: "alice", PolicyID: p.ID,
		GrantDate: generic.NewDate(2025, 1, 1), ExpiryDate: generic.NewDate(2025, 12, 31),
	})
	require.NoError(t, err)

	use := func(day int) *vacation.Usage {
		u, err := svc.UseVacation(ctx, vacation.UseInput{
			UserID: "alice", VacationType: annual, TimeType: vacation.TimeDay,
			Start: generic.NewDate(2025, 2, day), End: generic.NewDate(2025, 2, day),
		})
		require.NoError(t, err)
		return u
	}
	target := use(3)
	use(4)

	// WHEN: the same usage is canceled twice at once
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CancelUsage(ctx, target.ID, "alice")
		}(i)
	}
	wg.Wait()

	// THEN: exactly one cancel wins, the other sees the usage already canceled
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, generic.ErrBusinessRule)
	}
	assert.Equal(t, 1, succeeded)

	// AND: the grant is restored once; the other usage still holds its day
	got, err := svc.GetGrant(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.RemainTime.Equal(days("4")), "got %s", got.RemainTime)
}

func testExactDecimals(t *testing.T, s vacation.Store) {
	p := seedPolicy(t, s)

	// GIVEN: amounts with more fractional digits than a day split needs
	odd := days("0.33335")
	g := seedGrant(t, s, p, "alice", "1.00005", generic.NewDate(2025, 1, 1), generic.NewDate(2025, 12, 31))
	u := vacation.NewUsage(vacation.UseInput{
		UserID: "alice", VacationType: annual, TimeType: vacation.TimeHour3,
		Start: generic.NewDate(2025, 2, 3), End: generic.NewDate(2025, 2, 3),
	}, odd, created)

	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		require.NoError(t, tx.SaveUsage(ctx, u))
		require.NoError(t, tx.SaveDeduction(ctx, &vacation.Deduction{UsageID: u.ID, GrantID: g.ID, DeductedTime: odd}))
		g.RemainTime = g.RemainTime.Sub(odd)
		require.NoError(t, tx.SaveGrant(ctx, g))
	})

	// THEN: nothing is rounded on the way through the store
	inTx(t, s, func(ctx context.Context, tx vacation.Tx) {
		gotGrant, err := tx.GetGrant(ctx, g.ID, false)
		require.NoError(t, err)
		assert.True(t, gotGrant.GrantTime.Equal(days("1.00005")), "grant %s", gotGrant.GrantTime)
		assert.True(t, gotGrant.RemainTime.Equal(days("0.6667")), "remain %s", gotGrant.RemainTime)

		gotUsage, err := tx.GetUsage(ctx, u.ID, false)
		require.NoError(t, err)
		assert.True(t, gotUsage.UsedTime.Equal(odd), "used %s", gotUsage.UsedTime)

		ds, err := tx.ListDeductions(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, vacation.SumDeductions(ds).Equal(gotUsage.UsedTime))
	})
}
