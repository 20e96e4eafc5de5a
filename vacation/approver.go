package vacation

import (
	"sort"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// APPROVER RESOLUTION - pure, no store
// =============================================================================

// RequiredApprovers is min(policyRequired, |available|), never negative.
func RequiredApprovers(policyRequired int, available []ApproverCandidate) int {
	n := policyRequired
	if n > len(available) {
		n = len(available)
	}
	if n < 0 {
		return 0
	}
	return n
}

// ResolveApprovers validates the approvers a requester picked and returns them
// sorted by hierarchy level (most immediate superior first). Position i in the
// result is approval order i+1.
//
// When fewer approvers are available than the policy asks for, only the
// available number is required. When none are required the supplied list is
// ignored and the result is empty.
func ResolveApprovers(requester UserID, policyRequired int, available []ApproverCandidate, supplied []UserID) ([]ApproverCandidate, error) {
	required := RequiredApprovers(policyRequired, available)
	if required == 0 {
		return nil, nil
	}

	if len(supplied) == 0 {
		return nil, generic.Invalid("approver_ids", "%d approver(s) required", required)
	}
	if len(supplied) != required {
		return nil, generic.Invalid("approver_ids", "expected %d approver(s), got %d", required, len(supplied))
	}

	levels := make(map[UserID]int, len(available))
	for _, c := range available {
		if lvl, ok := levels[c.ApproverID]; !ok || c.Level < lvl {
			levels[c.ApproverID] = c.Level
		}
	}

	seen := make(map[UserID]bool, len(supplied))
	resolved := make([]ApproverCandidate, 0, len(supplied))
	for _, id := range supplied {
		if seen[id] {
			return nil, generic.Violation("duplicate_approver", "%s listed more than once", id)
		}
		seen[id] = true
		if id == requester {
			return nil, generic.Violation("self_approval", "%s cannot approve their own request", id)
		}
		lvl, ok := levels[id]
		if !ok {
			return nil, generic.Invalid("approver_ids", "%s is not in the approval chain of %s", id, requester)
		}
		resolved = append(resolved, ApproverCandidate{ApproverID: id, Level: lvl})
	}

	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Level < resolved[j].Level })
	return resolved, nil
}
