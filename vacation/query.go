package vacation

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// QUERIES - Read-only views, each in its own transaction
// =============================================================================

// Balance is the sum of RemainTime over grants eligible for a usage starting at.
func (s *Service) Balance(ctx context.Context, userID UserID, vacationType VacationType, at time.Time) (generic.Amount, error) {
	day := generic.DateOf(at)
	total := generic.ZeroDays()
	err := s.store.WithTx(ctx, func(tx Tx) error {
		grants, err := tx.FindGrants(ctx, GrantQuery{
			UserID:       userID,
			VacationType: vacationType,
			Statuses:     []GrantStatus{StatusActive},
			CoversDate:   &day,
		})
		if err != nil {
			return err
		}
		for i := range grants {
			if grants[i].IsEligibleOn(day) {
				total = total.Add(grants[i].RemainTime)
			}
		}
		return nil
	})
	return total, err
}

func (s *Service) ListGrants(ctx context.Context, userID UserID) ([]Grant, error) {
	var grants []Grant
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		grants, err = tx.FindGrants(ctx, GrantQuery{UserID: userID})
		return err
	})
	return grants, err
}

func (s *Service) GetGrant(ctx context.Context, id GrantID) (*Grant, error) {
	var grant *Grant
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		grant, err = tx.GetGrant(ctx, id, false)
		return err
	})
	return grant, err
}

// ListUsages returns every usage of the user, canceled ones included.
func (s *Service) ListUsages(ctx context.Context, userID UserID) ([]Usage, error) {
	var usages []Usage
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		usages, err = tx.ListUsages(ctx, userID)
		return err
	})
	return usages, err
}

// GetUsage returns a usage with its deductions.
func (s *Service) GetUsage(ctx context.Context, id UsageID) (*Usage, []Deduction, error) {
	var (
		usage      *Usage
		deductions []Deduction
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		if usage, err = tx.GetUsage(ctx, id, false); err != nil {
			return err
		}
		deductions, err = tx.ListDeductions(ctx, id)
		return err
	})
	return usage, deductions, err
}

func (s *Service) ListApprovals(ctx context.Context, grantID GrantID) ([]Approval, error) {
	var approvals []Approval
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetGrant(ctx, grantID, false); err != nil {
			return err
		}
		var err error
		approvals, err = tx.ListApprovals(ctx, grantID)
		return err
	})
	return approvals, err
}

// PendingApprovals lists the approver's open approvals on grants still
// awaiting a decision.
func (s *Service) PendingApprovals(ctx context.Context, approverID UserID) ([]Approval, error) {
	var open []Approval
	err := s.store.WithTx(ctx, func(tx Tx) error {
		pending, err := tx.ListPendingApprovals(ctx, approverID)
		if err != nil {
			return err
		}
		for _, a := range pending {
			g, err := tx.GetGrant(ctx, a.GrantID, false)
			if err != nil {
				return err
			}
			if g.Status.IsAwaitingApproval() {
				open = append(open, a)
			}
		}
		return nil
	})
	return open, err
}

// =============================================================================
// POLICY ADMINISTRATION
// =============================================================================

func (s *Service) CreatePolicy(ctx context.Context, p Policy) (*Policy, error) {
	p.ID = 0
	p.DeletedAt = nil
	if p.FixedAmount.Unit == "" {
		p.FixedAmount = generic.Days(p.FixedAmount.Value)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.CreatedAt = s.now()

	err := s.inTx(ctx, "create_policy", func(tx Tx) error {
		return tx.SavePolicy(ctx, &p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "policy created",
		slog.Int64("policy_id", int64(p.ID)),
		slog.String("name", p.Name),
		slog.String("grant_method", string(p.GrantMethod)))
	return &p, nil
}

// ListPolicies returns live policies.
func (s *Service) ListPolicies(ctx context.Context) ([]Policy, error) {
	var policies []Policy
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		policies, err = tx.ListPolicies(ctx, false)
		return err
	})
	return policies, err
}

func (s *Service) GetPolicy(ctx context.Context, id PolicyID) (*Policy, error) {
	var policy *Policy
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		policy, err = tx.GetPolicy(ctx, id, NoLock)
		return err
	})
	return policy, err
}

// AssignPolicy links a user to a live policy. A user holds at most one live
// assignment per policy.
func (s *Service) AssignPolicy(ctx context.Context, userID UserID, policyID PolicyID) (*Assignment, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	var assignment *Assignment
	err := s.inTx(ctx, "assign_policy", func(tx Tx) error {
		if _, err := livePolicy(ctx, tx, policyID, LockShare); err != nil {
			return err
		}
		_, err := tx.GetAssignment(ctx, userID, policyID)
		switch {
		case err == nil:
			return generic.Violation("already_assigned", "policy %d is already assigned to %s", policyID, userID)
		case !generic.IsNotFound(err):
			return err
		}

		assignment = &Assignment{UserID: userID, PolicyID: policyID, AssignedAt: now}
		return tx.SaveAssignment(ctx, assignment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "policy assigned",
		slog.String("user_id", string(userID)),
		slog.Int64("policy_id", int64(policyID)))
	return assignment, nil
}
