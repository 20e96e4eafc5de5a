/*
grant.go - Grant (credit) lifecycle and balance mutation

PURPOSE:
  A Grant credits GrantTime days valid on [GrantDate, ExpiryDate]. Its
  RemainTime is the live balance. Every status change and balance mutation
  goes through a method here so that the lifecycle stays in one place.

LIFECYCLE:
  PENDING --markProgress--> PROGRESS
  PENDING|PROGRESS --approve--> ACTIVE
  PENDING|PROGRESS --reject---> REJECTED
  PENDING --cancel--> CANCELED
  ACTIVE --revoke (unused only) | cascadeRevoke--> REVOKED
  ACTIVE --expire--> EXPIRED, --exhaust (remain 0)--> EXHAUSTED
  EXHAUSTED --restore--> ACTIVE

INVARIANT:
  0 <= RemainTime <= GrantTime. Deduct refuses to go below zero (that would
  mean the caller skipped its balance check); Restore caps at GrantTime.

SEE ALSO:
  - allocation.go: Deduct/Restore callers
  - approval.go: Approve/Reject/MarkProgress/Cancel callers
  - cascade.go: CascadeRevoke caller
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
// GRANT
// =============================================================================

type Grant struct {
	ID           GrantID
	UserID       UserID
	PolicyID     PolicyID
	VacationType VacationType

	GrantTime  generic.Amount
	RemainTime generic.Amount

	// Inclusive validity window. Provisional while awaiting approval; the
	// final dates are computed when the grant becomes ACTIVE.
	GrantDate  time.Time
	ExpiryDate time.Time

	Status GrantStatus
	Desc   string

	// Request window (ON_REQUEST only).
	RequestStart *time.Time
	RequestEnd   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewManualGrant builds an ACTIVE grant with its full balance.
func NewManualGrant(user UserID, p *Policy, amount generic.Amount, grantDate, expiryDate time.Time, desc string, now time.Time) *Grant {
	return &Grant{
		UserID:       user,
		PolicyID:     p.ID,
		VacationType: p.VacationType,
		GrantTime:    amount,
		RemainTime:   amount,
		GrantDate:    generic.DateOf(grantDate),
		ExpiryDate:   generic.DateOf(expiryDate),
		Status:       StatusActive,
		Desc:         desc,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewPendingGrant builds a PENDING grant for an ON_REQUEST policy.
func NewPendingGrant(user UserID, p *Policy, amount generic.Amount, start, end *time.Time, desc string, now time.Time) *Grant {
	grantDate, expiryDate := p.ValidityFrom(now)
	g := NewManualGrant(user, p, amount, grantDate, expiryDate, desc, now)
	g.Status = StatusPending
	g.RequestStart = start
	g.RequestEnd = end
	return g
}

// Covers reports whether date d falls within [GrantDate, ExpiryDate].
func (g *Grant) Covers(d time.Time) bool {
	day := generic.DateOf(d)
	return !day.Before(g.GrantDate) && !day.After(g.ExpiryDate)
}

// IsEligibleOn returns true if the grant can fund a usage starting on d.
func (g *Grant) IsEligibleOn(d time.Time) bool {
	return g.Status == StatusActive && g.Covers(d) && g.RemainTime.IsPositive()
}

// IsUnused is true while nothing has been deducted.
func (g *Grant) IsUnused() bool { return g.RemainTime.Equal(g.GrantTime) }

// Used returns GrantTime - RemainTime.
func (g *Grant) Used() generic.Amount { return g.GrantTime.Sub(g.RemainTime) }

func (g *Grant) checkBalance() error {
	if g.RemainTime.IsNegative() || g.RemainTime.GreaterThan(g.GrantTime) {
		return &generic.ConsistencyError{
			Invariant: "grant_balance",
			Detail:    fmt.Sprintf("grant %d remain %s outside [0, %s]", g.ID, g.RemainTime, g.GrantTime),
		}
	}
	return nil
}

// =============================================================================
// BALANCE MUTATION
// =============================================================================

// Deduct lowers RemainTime by amt. amt above RemainTime is a ConsistencyError:
// callers check the balance first.
func (g *Grant) Deduct(amt generic.Amount, now time.Time) error {
	if !amt.IsPositive() {
		return &generic.ConsistencyError{Invariant: "deduction_positive", Detail: "deduct " + amt.String()}
	}
	if amt.GreaterThan(g.RemainTime) {
		return &generic.ConsistencyError{
			Invariant: "grant_balance",
			Detail:    fmt.Sprintf("deduct %s from grant %d with remain %s", amt, g.ID, g.RemainTime),
		}
	}
	g.RemainTime = g.RemainTime.Sub(amt)
	g.UpdatedAt = now
	return g.checkBalance()
}

// Restore raises RemainTime by amt, capped at GrantTime. An EXHAUSTED grant
// becomes ACTIVE again.
func (g *Grant) Restore(amt generic.Amount, now time.Time) error {
	if amt.IsNegative() {
		return &generic.ConsistencyError{Invariant: "restore_positive", Detail: "restore " + amt.String()}
	}
	g.RemainTime = g.RemainTime.Add(amt).Min(g.GrantTime)
	if g.Status == StatusExhausted && g.RemainTime.IsPositive() {
		g.Status = StatusActive
	}
	g.UpdatedAt = now
	return g.checkBalance()
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func (g *Grant) transitionError(action string) error {
	return generic.Violation("invalid_transition", "cannot %s grant %d in status %s", action, g.ID, g.Status)
}

// Approve activates a PENDING or PROGRESS grant with its final dates.
func (g *Grant) Approve(grantDate, expiryDate time.Time, now time.Time) error {
	if !g.Status.IsAwaitingApproval() {
		return g.transitionError("approve")
	}
	g.GrantDate = generic.DateOf(grantDate)
	g.ExpiryDate = generic.DateOf(expiryDate)
	g.Status = StatusActive
	g.UpdatedAt = now
	return nil
}

// MarkProgress moves PENDING to PROGRESS. No-op on PROGRESS.
func (g *Grant) MarkProgress(now time.Time) error {
	switch g.Status {
	case StatusProgress:
		return nil
	case StatusPending:
		g.Status = StatusProgress
		g.UpdatedAt = now
		return nil
	}
	return g.transitionError("mark in progress")
}

func (g *Grant) Reject(now time.Time) error {
	if !g.Status.IsAwaitingApproval() {
		return g.transitionError("reject")
	}
	g.Status = StatusRejected
	g.UpdatedAt = now
	return nil
}

func (g *Grant) Cancel(now time.Time) error {
	if g.Status != StatusPending {
		return generic.Violation("cancel_not_pending", "grant %d is %s, only PENDING requests can be canceled", g.ID, g.Status)
	}
	g.Status = StatusCanceled
	g.UpdatedAt = now
	return nil
}

// Revoke is the admin path: only an unused ACTIVE grant may be revoked.
func (g *Grant) Revoke(now time.Time) error {
	if g.Status != StatusActive {
		return g.transitionError("revoke")
	}
	if !g.IsUnused() {
		return generic.Violation("revoke_after_use", "grant %d already used %s", g.ID, g.Used())
	}
	return g.CascadeRevoke(now)
}

// CascadeRevoke revokes an ACTIVE grant whatever its balance.
func (g *Grant) CascadeRevoke(now time.Time) error {
	if g.Status != StatusActive {
		return g.transitionError("revoke")
	}
	g.Status = StatusRevoked
	g.UpdatedAt = now
	return nil
}

func (g *Grant) Expire(now time.Time) error {
	if g.Status != StatusActive {
		return g.transitionError("expire")
	}
	g.Status = StatusExpired
	g.UpdatedAt = now
	return nil
}

// Exhaust marks an ACTIVE grant with nothing left as EXHAUSTED.
func (g *Grant) Exhaust(now time.Time) error {
	if g.Status != StatusActive {
		return g.transitionError("exhaust")
	}
	if !g.RemainTime.IsZero() {
		return generic.Violation("exhaust_with_balance", "grant %d still has %s", g.ID, g.RemainTime)
	}
	g.Status = StatusExhausted
	g.UpdatedAt = now
	return nil
}

// =============================================================================
// SERVICE OPERATIONS
// =============================================================================

// ManualGrantInput credits days outside the request workflow.
// Zero dates fall back to the policy's date rules evaluated at now.
type ManualGrantInput struct {
	UserID     UserID
	PolicyID   PolicyID
	Amount     *generic.Amount // flexible policies only
	GrantDate  time.Time
	ExpiryDate time.Time
	Desc       string
}

// GrantManually creates an ACTIVE grant for a MANUAL_GRANT or REPEAT_GRANT
// policy assigned to the user.
func (s *Service) GrantManually(ctx context.Context, in ManualGrantInput) (*Grant, error) {
	if _, err := s.user(ctx, in.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	var grant *Grant
	err := s.inTx(ctx, "grant_manually", func(tx Tx) error {
		p, err := livePolicy(ctx, tx, in.PolicyID, LockShare)
		if err != nil {
			return err
		}
		if p.GrantMethod == GrantOnRequest {
			return generic.Violation("grant_method", "policy %d is %s, use a vacation request", p.ID, p.GrantMethod)
		}
		if err := requireAssignment(ctx, tx, in.UserID, p.ID); err != nil {
			return err
		}

		amount, err := p.AmountFor(in.Amount)
		if err != nil {
			return err
		}

		grantDate, expiryDate := p.ValidityFrom(now)
		if !in.GrantDate.IsZero() {
			grantDate = generic.DateOf(in.GrantDate)
			expiryDate = p.ExpirationType.Compute(grantDate)
		}
		if !in.ExpiryDate.IsZero() {
			expiryDate = generic.DateOf(in.ExpiryDate)
		}
		if expiryDate.Before(grantDate) {
			return generic.Invalid("expiry_date", "%s is before grant date %s",
				generic.FormatDate(expiryDate), generic.FormatDate(grantDate))
		}

		grant = NewManualGrant(in.UserID, p, amount, grantDate, expiryDate, strings.TrimSpace(in.Desc), now)
		return tx.SaveGrant(ctx, grant)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "grant created",
		slog.Int64("grant_id", int64(grant.ID)),
		slog.String("user_id", string(grant.UserID)),
		slog.String("amount", grant.GrantTime.Value.String()))
	return grant, nil
}

// RevokeGrant revokes an unused ACTIVE grant.
func (s *Service) RevokeGrant(ctx context.Context, id GrantID) (*Grant, error) {
	return s.transitionGrant(ctx, "revoke_grant", id, (*Grant).Revoke)
}

// ExpireGrant is the entry point for an external expiry sweep.
func (s *Service) ExpireGrant(ctx context.Context, id GrantID) (*Grant, error) {
	return s.transitionGrant(ctx, "expire_grant", id, (*Grant).Expire)
}

// ExhaustGrant marks a fully consumed ACTIVE grant as EXHAUSTED.
func (s *Service) ExhaustGrant(ctx context.Context, id GrantID) (*Grant, error) {
	return s.transitionGrant(ctx, "exhaust_grant", id, (*Grant).Exhaust)
}

func (s *Service) transitionGrant(ctx context.Context, op string, id GrantID, apply func(*Grant, time.Time) error) (*Grant, error) {
	now := s.now()
	var grant *Grant
	err := s.inTx(ctx, op, func(tx Tx) error {
		g, err := tx.GetGrant(ctx, id, true)
		if err != nil {
			return err
		}
		if err := apply(g, now); err != nil {
			return err
		}
		grant = g
		return tx.SaveGrant(ctx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "grant status changed",
		slog.String("op", op),
		slog.Int64("grant_id", int64(grant.ID)),
		slog.String("status", string(grant.Status)))
	return grant, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// livePolicy loads and locks a policy; a soft-deleted policy is reported as
// not found.
func livePolicy(ctx context.Context, tx Tx, id PolicyID, lock RowLock) (*Policy, error) {
	p, err := tx.GetPolicy(ctx, id, lock)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, generic.NotFound("policy", id)
	}
	return p, nil
}

func requireAssignment(ctx context.Context, tx Tx, user UserID, policy PolicyID) error {
	_, err := tx.GetAssignment(ctx, user, policy)
	if generic.IsNotFound(err) {
		return generic.Violation("policy_not_assigned", "policy %d is not assigned to %s", policy, user)
	}
	return err
}
