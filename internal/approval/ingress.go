package approval

// ScopedUpsert binds an approval to the agent it targets.
type ScopedUpsert struct {
	AgentID  string
	Approval Approval
}

// Delta is one batch of remote approval notifications to merge into local
// pending state.
type Delta struct {
	ScopedUpserts    []ScopedUpsert
	UnscopedUpserts  []Approval
	Removals         []string
	ActivityAgentIDs []string
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.ScopedUpserts) == 0 &&
		len(d.UnscopedUpserts) == 0 &&
		len(d.Removals) == 0 &&
		len(d.ActivityAgentIDs) == 0
}

// PauseRequest asks the pause controller to stop the run an approval is
// blocking on.
type PauseRequest struct {
	Approval         Approval
	PreferredAgentID string
}

// ReduceResult is the output of one ingress pass.
type ReduceResult struct {
	State            PendingState
	PauseRequests    []PauseRequest
	ActivityAgentIDs []string
}

// Reduce merges a delta into pending state. It is a pure function: the input
// state is not mutated and the result carries a fresh copy. Removals are
// applied first, then upserts; an approval id ends up in at most one slot
// across the scoped and unscoped collections.
//
// For every scoped upsert a pause request is emitted unless the paused-run
// table already records the agent's current run id as paused, which makes a
// second pause of the same run a no-op at the source.
func Reduce(state PendingState, delta Delta, agents AgentsSnapshot, paused PausedRuns) ReduceResult {
	next := state.Clone()
	if next.Scoped == nil {
		next.Scoped = make(map[string][]Approval)
	}

	for _, id := range delta.Removals {
		next = removeApproval(next, id)
	}

	for _, up := range delta.ScopedUpserts {
		next = upsertScoped(next, up.AgentID, up.Approval)
	}
	for _, ap := range delta.UnscopedUpserts {
		next = upsertUnscoped(next, ap)
	}

	var requests []PauseRequest
	for _, up := range delta.ScopedUpserts {
		if runID, ok := paused[up.AgentID]; ok {
			if agent, known := agents[up.AgentID]; known && agent.RunID != "" && agent.RunID == runID {
				// The agent's current run is already paused.
				continue
			}
		}
		requests = append(requests, PauseRequest{
			Approval:         up.Approval,
			PreferredAgentID: up.AgentID,
		})
	}

	return ReduceResult{
		State:            next,
		PauseRequests:    requests,
		ActivityAgentIDs: delta.ActivityAgentIDs,
	}
}

// removeApproval drops the id from every collection it appears in.
func removeApproval(state PendingState, id string) PendingState {
	for agentID, list := range state.Scoped {
		filtered := deleteByID(list, id)
		if len(filtered) == 0 {
			delete(state.Scoped, agentID)
		} else {
			state.Scoped[agentID] = filtered
		}
	}
	state.Unscoped = deleteByID(state.Unscoped, id)
	return state
}

// upsertScoped places the approval in the agent's list, replacing in place
// when the id is already there. Copies of the id elsewhere are removed so
// the uniqueness invariant holds even when an approval moves between agents
// or gets bound from the unscoped list.
func upsertScoped(state PendingState, agentID string, ap Approval) PendingState {
	if replaced, list := replaceByID(state.Scoped[agentID], ap); replaced {
		state.Scoped[agentID] = list
		return state
	}
	state = removeApproval(state, ap.ID)
	state.Scoped[agentID] = append(state.Scoped[agentID], ap)
	return state
}

// upsertUnscoped is the unscoped counterpart of upsertScoped.
func upsertUnscoped(state PendingState, ap Approval) PendingState {
	if replaced, list := replaceByID(state.Unscoped, ap); replaced {
		state.Unscoped = list
		return state
	}
	state = removeApproval(state, ap.ID)
	state.Unscoped = append(state.Unscoped, ap)
	return state
}

func deleteByID(list []Approval, id string) []Approval {
	for i, ap := range list {
		if ap.ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func replaceByID(list []Approval, ap Approval) (bool, []Approval) {
	for i, existing := range list {
		if existing.ID == ap.ID {
			list[i] = ap
			return true, list
		}
	}
	return false, list
}
