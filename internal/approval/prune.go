package approval

import (
	"cmp"
	"slices"
)

// PruneDelay returns how many milliseconds from nowMS until the soonest
// pending approval becomes prunable (its expiry plus the grace period).
// The second return value is false when nothing is pending, in which case
// no prune pass needs to be scheduled. The delay may be negative if a prune
// is already overdue.
func PruneDelay(state PendingState, nowMS, graceMS int64) (int64, bool) {
	var soonest int64
	found := false

	consider := func(ap Approval) {
		if !found || ap.ExpiresAtMS < soonest {
			soonest = ap.ExpiresAtMS
			found = true
		}
	}

	for _, list := range state.Scoped {
		for _, ap := range list {
			consider(ap)
		}
	}
	for _, ap := range state.Unscoped {
		consider(ap)
	}

	if !found {
		return 0, false
	}
	return soonest + graceMS - nowMS, true
}

// Prune removes every approval whose expiry plus grace period has passed,
// preserving the relative order of survivors. Pure: the input state is not
// mutated.
func Prune(state PendingState, nowMS, graceMS int64) PendingState {
	expired := func(ap Approval) bool {
		return ap.ExpiresAtMS+graceMS <= nowMS
	}

	next := PendingState{Scoped: make(map[string][]Approval, len(state.Scoped))}
	for agentID, list := range state.Scoped {
		kept := keepUnexpired(list, expired)
		if len(kept) > 0 {
			next.Scoped[agentID] = kept
		}
	}
	next.Unscoped = keepUnexpired(state.Unscoped, expired)
	return next
}

func keepUnexpired(list []Approval, expired func(Approval) bool) []Approval {
	var kept []Approval
	for _, ap := range list {
		if !expired(ap) {
			kept = append(kept, ap)
		}
	}
	return kept
}

// AwaitingInputPatches derives, for each known agent, whether its "awaiting
// user input" flag should change: the flag must equal "has at least one
// scoped pending approval". Only patches whose value differs from the
// agent's current flag are returned, sorted by agent id for determinism.
func AwaitingInputPatches(agents AgentsSnapshot, state PendingState) []AwaitingPatch {
	var patches []AwaitingPatch
	for id, agent := range agents {
		want := len(state.Scoped[id]) > 0
		if agent.AwaitingInput != want {
			patches = append(patches, AwaitingPatch{AgentID: id, AwaitingInput: want})
		}
	}
	slices.SortFunc(patches, func(a, b AwaitingPatch) int {
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return patches
}
