package vacation

import (
	"context"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// EXTERNAL COLLABORATORS - Read-only, owned outside the engine
// =============================================================================

// ApproverCandidate is one ancestor of a requester in the org hierarchy.
// Level 1 is the most immediate superior.
type ApproverCandidate struct {
	ApproverID UserID
	Level      int
}

// OrgHierarchyResolver returns the ordered chain of candidate approvers for a
// requester. The chain is trusted to be acyclic.
type OrgHierarchyResolver interface {
	CandidateApprovers(ctx context.Context, userID UserID) ([]ApproverCandidate, error)
}

// User is what the engine needs to know about an employee.
type User struct {
	ID          UserID
	CountryCode string
	WorkHours   generic.WorkHours
}

// UserDirectory resolves users.
type UserDirectory interface {
	Get(ctx context.Context, userID UserID) (User, error)
	Exists(ctx context.Context, userID UserID) (bool, error)
}
