/*
allocation.go - Using vacation: FIFO-by-expiry allocation across grants

PURPOSE:
  Turns a leave request (dates + time type) into a Usage and the Deductions
  that fund it, and reverses that on cancellation.

ALGORITHM (UseVacation):
  1. start <= end
  2. Partial-day types must lie inside the user's work hours
  3. businessDates = [start, end] minus weekends minus public holidays
  4. required = TimeTypes.QuantityFor(timeType, |businessDates|)
  5. candidates = ACTIVE grants of the vacation type covering start.date,
     locked in ExpiryDate ASC, ID ASC order
  6. sum(candidates.RemainTime) < required -> InsufficientBalanceError
  7. generic.Distribute splits required across the candidates in order;
     each allocation becomes a Deduction and a Grant.Deduct
  8. Anything left undistributed is a ConsistencyError

  Example: A(expires 2025-01-31, remain 1.0), B(expires 2025-06-30, remain 5.0)
           request 1.0 -> A: 1.0, B untouched

CANCELLATION:
  Allowed only before the usage starts. Every deduction is restored to its
  grant (capped at GrantTime), then the usage is soft-deleted.

SEE ALSO:
  - generic/allocation.go: The pure split
  - grant.go: Deduct/Restore
*/
package vacation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// UseInput describes a leave request.
type UseInput struct {
	UserID       UserID
	VacationType VacationType
	TimeType     TimeType
	Start        time.Time
	End          time.Time
	Desc         string
}

// usagePlan is what UseVacation learns before opening the transaction.
type usagePlan struct {
	businessDates []time.Time
	required      generic.Amount
}

// =============================================================================
// USE
// =============================================================================

// UseVacation records a usage and deducts it from the user's grants.
func (s *Service) UseVacation(ctx context.Context, in UseInput) (*Usage, error) {
	plan, err := s.planUsage(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var usage *Usage
	var deductions []Deduction
	err = s.inTx(ctx, "use_vacation", func(tx Tx) error {
		u, ds, err := s.allocate(ctx, tx, in, plan, now)
		usage, deductions = u, ds
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "vacation used",
		slog.Int64("usage_id", int64(usage.ID)),
		slog.String("user_id", string(usage.UserID)),
		slog.String("used", usage.UsedTime.Value.String()),
		slog.Int("grants", len(deductions)))
	return usage, nil
}

// planUsage validates the request and computes the required amount.
func (s *Service) planUsage(ctx context.Context, in UseInput) (usagePlan, error) {
	if strings.TrimSpace(string(in.VacationType)) == "" {
		return usagePlan{}, generic.Invalid("vacation_type", "must not be blank")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return usagePlan{}, generic.Invalid("start", "start and end are required")
	}
	if in.End.Before(in.Start) {
		return usagePlan{}, generic.Invalid("end", "%s is before start %s",
			in.End.Format(time.RFC3339), in.Start.Format(time.RFC3339))
	}
	if _, ok := s.timeTypes[in.TimeType]; !ok {
		return usagePlan{}, generic.Invalid("time_type", "unknown time type %q", in.TimeType)
	}

	user, err := s.user(ctx, in.UserID)
	if err != nil {
		return usagePlan{}, err
	}

	if !s.timeTypes.IsWholeDay(in.TimeType) {
		if !user.WorkHours.Contains(in.Start) || !user.WorkHours.Contains(in.End) {
			return usagePlan{}, generic.Invalid("time", "%s-%s is outside work hours %s",
				generic.ClockOf(in.Start), generic.ClockOf(in.End), user.WorkHours)
		}
	}

	period := generic.NewPeriod(in.Start, in.End)
	holidays, err := s.holidays.PublicHolidays(ctx, user.CountryCode, period.Start, period.End)
	if err != nil {
		return usagePlan{}, fmt.Errorf("load public holidays: %w", err)
	}

	dates := generic.BusinessDates(period, holidays)
	if len(dates) == 0 {
		return usagePlan{}, generic.Invalid("start", "%s contains no business days", period)
	}

	required, err := s.timeTypes.QuantityFor(in.TimeType, len(dates))
	if err != nil {
		return usagePlan{}, err
	}
	return usagePlan{businessDates: dates, required: required}, nil
}

// allocate performs the locked part of UseVacation inside tx.
func (s *Service) allocate(ctx context.Context, tx Tx, in UseInput, plan usagePlan, now time.Time) (*Usage, []Deduction, error) {
	startDate := generic.DateOf(in.Start)
	candidates, err := tx.FindGrants(ctx, GrantQuery{
		UserID:       in.UserID,
		VacationType: in.VacationType,
		Statuses:     []GrantStatus{StatusActive},
		CoversDate:   &startDate,
		ForUpdate:    true,
	})
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[GrantID]*Grant, len(candidates))
	buckets := make([]generic.Bucket[GrantID], 0, len(candidates))
	for i := range candidates {
		g := &candidates[i]
		if !g.IsEligibleOn(startDate) {
			continue
		}
		byID[g.ID] = g
		buckets = append(buckets, generic.Bucket[GrantID]{Key: g.ID, Available: g.RemainTime})
	}

	available := generic.TotalAvailable(buckets)
	if available.LessThan(plan.required) {
		return nil, nil, &generic.InsufficientBalanceError{
			Available: available,
			Requested: plan.required,
			Shortfall: plan.required.Sub(available),
		}
	}

	usage := NewUsage(in, plan.required, now)
	if err := tx.SaveUsage(ctx, usage); err != nil {
		return nil, nil, err
	}

	dist := generic.Distribute(plan.required, buckets)
	deductions := make([]Deduction, 0, len(dist.Allocations))
	for _, alloc := range dist.Allocations {
		g := byID[alloc.Key]
		if err := g.Deduct(alloc.Amount, now); err != nil {
			return nil, nil, err
		}
		if err := tx.SaveGrant(ctx, g); err != nil {
			return nil, nil, err
		}
		d := Deduction{UsageID: usage.ID, GrantID: g.ID, DeductedTime: alloc.Amount}
		if err := tx.SaveDeduction(ctx, &d); err != nil {
			return nil, nil, err
		}
		deductions = append(deductions, d)
	}

	if !dist.Shortfall.IsZero() || !dist.Allocated().Equal(usage.UsedTime) {
		return nil, nil, &generic.ConsistencyError{
			Invariant: "usage_fully_allocated",
			Detail:    fmt.Sprintf("usage for %s left %s unallocated", in.UserID, dist.Shortfall),
		}
	}
	return usage, deductions, nil
}

// =============================================================================
// CANCEL / UPDATE
// =============================================================================

// CancelUsage soft-deletes a usage that has not started and restores its
// grants. Only the usage's owner may cancel it.
func (s *Service) CancelUsage(ctx context.Context, id UsageID, userID UserID) (*Usage, error) {
	now := s.now()
	var usage *Usage
	err := s.inTx(ctx, "cancel_usage", func(tx Tx) error {
		u, err := s.cancelUsage(ctx, tx, id, userID, "cancel", now)
		usage = u
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "usage canceled",
		slog.Int64("usage_id", int64(usage.ID)),
		slog.String("user_id", string(usage.UserID)),
		slog.String("restored", usage.UsedTime.Value.String()))
	return usage, nil
}

// cancelUsage locks the usage row first: a concurrent cancel that committed
// meanwhile is then seen as deleted instead of restoring the grants twice.
func (s *Service) cancelUsage(ctx context.Context, tx Tx, id UsageID, userID UserID, action string, now time.Time) (*Usage, error) {
	u, err := tx.GetUsage(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if u.UserID != userID {
		return nil, &generic.PermissionError{Actor: string(userID), Action: fmt.Sprintf("%s usage %d", action, id)}
	}
	if err := u.SoftDelete(now); err != nil {
		return nil, err
	}

	deductions, err := tx.ListDeductions(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if len(deductions) == 0 {
		return u, tx.SaveUsage(ctx, u)
	}

	restore := make(map[GrantID]generic.Amount, len(deductions))
	ids := make([]GrantID, 0, len(deductions))
	for _, d := range deductions {
		if _, seen := restore[d.GrantID]; !seen {
			ids = append(ids, d.GrantID)
			restore[d.GrantID] = d.DeductedTime.Zero()
		}
		restore[d.GrantID] = restore[d.GrantID].Add(d.DeductedTime)
	}

	grants, err := tx.FindGrants(ctx, GrantQuery{IDs: ids, ForUpdate: true})
	if err != nil {
		return nil, err
	}
	if len(grants) != len(ids) {
		return nil, &generic.ConsistencyError{
			Invariant: "deduction_grant_exists",
			Detail:    fmt.Sprintf("usage %d references %d grants, found %d", u.ID, len(ids), len(grants)),
		}
	}

	for i := range grants {
		g := &grants[i]
		if err := g.Restore(restore[g.ID], now); err != nil {
			return nil, err
		}
		if err := tx.SaveGrant(ctx, g); err != nil {
			return nil, err
		}
	}
	return u, tx.SaveUsage(ctx, u)
}

// UpdateUsage replaces a usage: cancel the old one and use again, atomically.
// If the new usage cannot be funded, the old one stays in place.
func (s *Service) UpdateUsage(ctx context.Context, id UsageID, in UseInput) (*Usage, error) {
	plan, err := s.planUsage(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var replaced, usage *Usage
	err = s.inTx(ctx, "update_usage", func(tx Tx) error {
		var err error
		if replaced, err = s.cancelUsage(ctx, tx, id, in.UserID, "update", now); err != nil {
			return err
		}
		usage, _, err = s.allocate(ctx, tx, in, plan, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "usage updated",
		slog.Int64("old_usage_id", int64(replaced.ID)),
		slog.Int64("usage_id", int64(usage.ID)),
		slog.String("used", usage.UsedTime.Value.String()))
	return usage, nil
}
