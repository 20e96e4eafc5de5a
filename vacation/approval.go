/*
approval.go - Sequential, hierarchy-ordered approval of ON_REQUEST grants

PURPOSE:
  An ON_REQUEST policy does not credit days directly. The employee requests
  a grant; it starts PENDING and becomes ACTIVE only after every chosen
  approver has approved, strictly in order.

STATE MACHINE:
  request  -> Grant PENDING, one PENDING Approval per approver (order 1..N)
  approve  -> Approval APPROVED; all approved -> Grant ACTIVE,
              else (N >= 2) -> Grant PROGRESS
  reject   -> Approval REJECTED, Grant REJECTED (other approvals become moot)
  cancel   -> requester only, Grant PENDING -> CANCELED

  Example: approvers [alice(1), bob(2)]
    bob approves first      -> out_of_order
    alice approves          -> PROGRESS
    bob approves            -> ACTIVE

TOP-OF-HIERARCHY BYPASS:
  When min(policy.ApprovalRequiredCount, |available approvers|) is zero the
  grant is approved at once. If the policy did ask for approvers this is
  logged at WARN.

SEE ALSO:
  - approver.go: Pure approver validation and ordering
  - grant.go: Grant transitions
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

// =============================================================================
// APPROVAL
// =============================================================================

type Approval struct {
	ID              ApprovalID
	GrantID         GrantID
	ApproverID      UserID
	Order           int // 1-based, unique per grant
	Status          ApprovalStatus
	ApprovalDate    *time.Time
	RejectionReason string
}

// RequestInput asks for an ON_REQUEST grant.
type RequestInput struct {
	UserID       UserID
	PolicyID     PolicyID
	Desc         string
	ApproverIDs  []UserID
	Amount       *generic.Amount // flexible policies only
	RequestStart *time.Time
	RequestEnd   *time.Time
}

// RequestResult is the created grant and its approval chain (empty on bypass).
type RequestResult struct {
	Grant     *Grant
	Approvals []Approval
}

// =============================================================================
// REQUEST
// =============================================================================

func (s *Service) RequestVacation(ctx context.Context, in RequestInput) (*RequestResult, error) {
	desc := strings.TrimSpace(in.Desc)
	if desc == "" {
		return nil, generic.Invalid("desc", "must not be blank")
	}
	if in.RequestStart != nil && in.RequestEnd != nil && in.RequestEnd.Before(*in.RequestStart) {
		return nil, generic.Invalid("request_end", "is before request_start")
	}
	if _, err := s.user(ctx, in.UserID); err != nil {
		return nil, err
	}

	available, err := s.candidateApprovers(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve approvers for %s: %w", in.UserID, err)
	}

	now := s.now()
	var (
		result   RequestResult
		bypassed bool
		policy   *Policy
	)
	err = s.inTx(ctx, "request_vacation", func(tx Tx) error {
		p, err := livePolicy(ctx, tx, in.PolicyID, LockShare)
		if err != nil {
			return err
		}
		policy = p
		if p.GrantMethod != GrantOnRequest {
			return generic.Violation("grant_method", "policy %d is %s, not %s", p.ID, p.GrantMethod, GrantOnRequest)
		}
		if err := requireAssignment(ctx, tx, in.UserID, p.ID); err != nil {
			return err
		}

		approvers, err := ResolveApprovers(in.UserID, p.RequiredApprovers(), available, in.ApproverIDs)
		if err != nil {
			return err
		}
		amount, err := p.AmountFor(in.Amount)
		if err != nil {
			return err
		}

		g := NewPendingGrant(in.UserID, p, amount, in.RequestStart, in.RequestEnd, desc, now)
		if err := tx.SaveGrant(ctx, g); err != nil {
			return err
		}
		result.Grant = g

		if len(approvers) == 0 {
			bypassed = true
			grantDate, expiryDate := p.ValidityFrom(now)
			if err := g.Approve(grantDate, expiryDate, now); err != nil {
				return err
			}
			return tx.SaveGrant(ctx, g)
		}

		for i, c := range approvers {
			a := Approval{GrantID: g.ID, ApproverID: c.ApproverID, Order: i + 1, Status: ApprovalPending}
			if err := tx.SaveApproval(ctx, &a); err != nil {
				return err
			}
			result.Approvals = append(result.Approvals, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if bypassed && policy.RequiredApprovers() > 0 {
		s.logger.WarnContext(ctx, "approval bypassed: no approvers available",
			slog.Int64("grant_id", int64(result.Grant.ID)),
			slog.String("user_id", string(in.UserID)),
			slog.Int("policy_required", policy.RequiredApprovers()))
	}
	s.logger.InfoContext(ctx, "vacation requested",
		slog.Int64("grant_id", int64(result.Grant.ID)),
		slog.String("user_id", string(in.UserID)),
		slog.String("status", string(result.Grant.Status)),
		slog.Int("approvers", len(result.Approvals)))
	return &result, nil
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

// ApproveVacation records one approver's approval. The last approval
// activates the grant with dates computed from the policy at now.
func (s *Service) ApproveVacation(ctx context.Context, approvalID ApprovalID, approverID UserID) (*Grant, error) {
	now := s.now()
	var grant *Grant
	err := s.inTx(ctx, "approve_vacation", func(tx Tx) error {
		a, g, err := lockPendingApproval(ctx, tx, approvalID, approverID, "approve")
		if err != nil {
			return err
		}
		p, err := tx.GetPolicy(ctx, g.PolicyID, LockShare)
		if err != nil {
			return err
		}
		if p.IsDeleted() {
			return generic.Violation("policy_deleted",
				"policy %d was deleted; grant %d can only be canceled or rejected", p.ID, g.ID)
		}

		chain, err := tx.ListApprovals(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, other := range chain {
			if other.Order < a.Order && other.Status != ApprovalApproved {
				return generic.Violation("out_of_order",
					"approval %d (order %d) must wait for order %d", a.ID, a.Order, other.Order)
			}
		}

		a.Status = ApprovalApproved
		a.ApprovalDate = &now
		if err := tx.SaveApproval(ctx, a); err != nil {
			return err
		}

		approved := 0
		for _, other := range chain {
			if other.ID == a.ID || other.Status == ApprovalApproved {
				approved++
			}
		}

		switch {
		case approved == len(chain):
			grantDate, expiryDate := p.ValidityFrom(now)
			if err := g.Approve(grantDate, expiryDate, now); err != nil {
				return err
			}
		case len(chain) >= 2:
			if err := g.MarkProgress(now); err != nil {
				return err
			}
		}

		grant = g
		return tx.SaveGrant(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "vacation approval recorded",
		slog.Int64("approval_id", int64(approvalID)),
		slog.Int64("grant_id", int64(grant.ID)),
		slog.String("approver_id", string(approverID)),
		slog.String("grant_status", string(grant.Status)))
	return grant, nil
}

// RejectVacation rejects the request; the grant becomes REJECTED at once.
func (s *Service) RejectVacation(ctx context.Context, approvalID ApprovalID, approverID UserID, reason string) (*Grant, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, generic.Invalid("reason", "must not be blank")
	}

	now := s.now()
	var grant *Grant
	err := s.inTx(ctx, "reject_vacation", func(tx Tx) error {
		a, g, err := lockPendingApproval(ctx, tx, approvalID, approverID, "reject")
		if err != nil {
			return err
		}

		a.Status = ApprovalRejected
		a.ApprovalDate = &now
		a.RejectionReason = reason
		if err := tx.SaveApproval(ctx, a); err != nil {
			return err
		}
		if err := g.Reject(now); err != nil {
			return err
		}
		grant = g
		return tx.SaveGrant(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "vacation rejected",
		slog.Int64("approval_id", int64(approvalID)),
		slog.Int64("grant_id", int64(grant.ID)),
		slog.String("approver_id", string(approverID)))
	return grant, nil
}

// lockPendingApproval loads and locks an approval and its grant, checking that
// approverID owns it and that both are still open.
func lockPendingApproval(ctx context.Context, tx Tx, id ApprovalID, approverID UserID, action string) (*Approval, *Grant, error) {
	a, err := tx.GetApproval(ctx, id, true)
	if err != nil {
		return nil, nil, err
	}
	if a.ApproverID != approverID {
		return nil, nil, &generic.PermissionError{Actor: string(approverID), Action: fmt.Sprintf("%s approval %d", action, id)}
	}
	if a.Status != ApprovalPending {
		return nil, nil, generic.Violation("already_processed", "approval %d is %s", a.ID, a.Status)
	}

	g, err := tx.GetGrant(ctx, a.GrantID, true)
	if err != nil {
		return nil, nil, err
	}
	if !g.Status.IsAwaitingApproval() {
		return nil, nil, generic.Violation("grant_not_pending", "grant %d is %s", g.ID, g.Status)
	}
	return a, g, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelVacationRequest lets the requester withdraw a request nobody has approved yet.
func (s *Service) CancelVacationRequest(ctx context.Context, grantID GrantID, userID UserID) (*Grant, error) {
	now := s.now()
	var grant *Grant
	err := s.inTx(ctx, "cancel_vacation_request", func(tx Tx) error {
		g, err := tx.GetGrant(ctx, grantID, true)
		if err != nil {
			return err
		}
		if g.UserID != userID {
			return &generic.PermissionError{Actor: string(userID), Action: fmt.Sprintf("cancel grant %d", grantID)}
		}
		if err := g.Cancel(now); err != nil {
			return err
		}
		grant = g
		return tx.SaveGrant(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "vacation request canceled",
		slog.Int64("grant_id", int64(grant.ID)),
		slog.String("user_id", string(userID)))
	return grant, nil
}
