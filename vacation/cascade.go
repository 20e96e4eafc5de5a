package vacation

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// CASCADING REVOCATION
// =============================================================================

// DeletePolicy soft-deletes a policy and its assignments, and revokes every
// ACTIVE grant under it regardless of remaining balance. Grants in any other
// status are left alone. Returns the revoked grants.
func (s *Service) DeletePolicy(ctx context.Context, id PolicyID) ([]Grant, error) {
	now := s.now()
	var revoked []Grant
	err := s.inTx(ctx, "delete_policy", func(tx Tx) error {
		p, err := livePolicy(ctx, tx, id, LockUpdate)
		if err != nil {
			return err
		}
		p.DeletedAt = &now
		if err := tx.SavePolicy(ctx, p); err != nil {
			return err
		}

		assignments, err := tx.ListAssignments(ctx, id)
		if err != nil {
			return err
		}
		for i := range assignments {
			assignments[i].DeletedAt = &now
			if err := tx.SaveAssignment(ctx, &assignments[i]); err != nil {
				return err
			}
		}

		revoked, err = cascadeRevoke(ctx, tx, GrantQuery{PolicyID: id}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "policy deleted",
		slog.Int64("policy_id", int64(id)),
		slog.Int("revoked_grants", len(revoked)))
	return revoked, nil
}

// RevokeAssignment removes a policy from one user with the same cascade,
// scoped to that user's grants under the policy.
func (s *Service) RevokeAssignment(ctx context.Context, userID UserID, policyID PolicyID) ([]Grant, error) {
	now := s.now()
	var revoked []Grant
	err := s.inTx(ctx, "revoke_assignment", func(tx Tx) error {
		if _, err := tx.GetPolicy(ctx, policyID, LockUpdate); err != nil {
			return err
		}
		a, err := tx.GetAssignment(ctx, userID, policyID)
		if err != nil {
			return err
		}
		a.DeletedAt = &now
		if err := tx.SaveAssignment(ctx, a); err != nil {
			return err
		}

		revoked, err = cascadeRevoke(ctx, tx, GrantQuery{UserID: userID, PolicyID: policyID}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "assignment revoked",
		slog.String("user_id", string(userID)),
		slog.Int64("policy_id", int64(policyID)),
		slog.Int("revoked_grants", len(revoked)))
	return revoked, nil
}

func cascadeRevoke(ctx context.Context, tx Tx, q GrantQuery, now time.Time) ([]Grant, error) {
	q.Statuses = []GrantStatus{StatusActive}
	q.ForUpdate = true
	grants, err := tx.FindGrants(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if err := grants[i].CascadeRevoke(now); err != nil {
			return nil, err
		}
		if err := tx.SaveGrant(ctx, &grants[i]); err != nil {
			return nil, err
		}
	}
	return grants, nil
}
