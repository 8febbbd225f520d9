package approval

import (
	"testing"
)

func TestReduce_UpsertsAndRemovals(t *testing.T) {
	t.Parallel()

	state := NewPendingState()
	state.Scoped["agent-1"] = []Approval{scopedApproval("a1", "agent-1", 5000)}
	state.Unscoped = []Approval{{ID: "u1", Command: "ls", ExpiresAtMS: 9000}}

	delta := Delta{
		Removals: []string{"a1"},
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-2", Approval: scopedApproval("a2", "agent-2", 6000)},
		},
		UnscopedUpserts: []Approval{{ID: "u2", Command: "pwd", ExpiresAtMS: 9500}},
	}

	result := Reduce(state, delta, AgentsSnapshot{}, PausedRuns{})

	if _, _, ok := result.State.Find("a1"); ok {
		t.Fatal("removed approval a1 still present")
	}
	if got := len(result.State.Scoped["agent-2"]); got != 1 {
		t.Fatalf("agent-2 scoped count = %d, want 1", got)
	}
	if got := len(result.State.Unscoped); got != 2 {
		t.Fatalf("unscoped count = %d, want 2", got)
	}

	// Input state must not be mutated.
	if _, _, ok := state.Find("a1"); !ok {
		t.Fatal("input state was mutated")
	}
}

func TestReduce_RemovalsApplyBeforeUpserts(t *testing.T) {
	t.Parallel()

	state := NewPendingState()
	state.Scoped["agent-1"] = []Approval{scopedApproval("a1", "agent-1", 5000)}

	// The same batch removes and re-adds the id: the upsert must win.
	delta := Delta{
		Removals: []string{"a1"},
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-1", Approval: scopedApproval("a1", "agent-1", 7000)},
		},
	}

	result := Reduce(state, delta, AgentsSnapshot{}, PausedRuns{})

	ap, agentID, ok := result.State.Find("a1")
	if !ok {
		t.Fatal("a1 missing after removal+upsert in one batch")
	}
	if agentID != "agent-1" || ap.ExpiresAtMS != 7000 {
		t.Fatalf("got agent %q expiry %d, want agent-1 / 7000", agentID, ap.ExpiresAtMS)
	}
}

func TestReduce_IDUniqueAcrossCollections(t *testing.T) {
	t.Parallel()

	state := NewPendingState()
	state.Unscoped = []Approval{{ID: "a1", Command: "ls", ExpiresAtMS: 5000}}

	// Binding a previously unscoped approval to an agent moves it.
	delta := Delta{
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-1", Approval: scopedApproval("a1", "agent-1", 5000)},
		},
	}
	result := Reduce(state, delta, AgentsSnapshot{}, PausedRuns{})

	if got := len(result.State.Unscoped); got != 0 {
		t.Fatalf("unscoped count = %d, want 0", got)
	}
	if got := len(result.State.Scoped["agent-1"]); got != 1 {
		t.Fatalf("agent-1 scoped count = %d, want 1", got)
	}

	// Moving it between agents must not leave a copy behind.
	delta = Delta{
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-2", Approval: scopedApproval("a1", "agent-2", 5000)},
		},
	}
	result = Reduce(result.State, delta, AgentsSnapshot{}, PausedRuns{})

	if got := len(result.State.Scoped["agent-1"]); got != 0 {
		t.Fatalf("agent-1 still holds %d approvals after move", got)
	}
	if got := len(result.State.Scoped["agent-2"]); got != 1 {
		t.Fatalf("agent-2 scoped count = %d, want 1", got)
	}
}

func TestReduce_ReplaceInPlacePreservesOrder(t *testing.T) {
	t.Parallel()

	state := NewPendingState()
	state.Scoped["agent-1"] = []Approval{
		scopedApproval("a1", "agent-1", 5000),
		scopedApproval("a2", "agent-1", 6000),
		scopedApproval("a3", "agent-1", 7000),
	}

	updated := scopedApproval("a2", "agent-1", 6500)
	updated.Command = "make deploy"
	delta := Delta{ScopedUpserts: []ScopedUpsert{{AgentID: "agent-1", Approval: updated}}}

	result := Reduce(state, delta, AgentsSnapshot{}, PausedRuns{})

	list := result.State.Scoped["agent-1"]
	if len(list) != 3 {
		t.Fatalf("scoped count = %d, want 3", len(list))
	}
	if list[1].ID != "a2" || list[1].Command != "make deploy" {
		t.Fatalf("a2 not replaced in place: %+v", list[1])
	}
}

func TestReduce_EmitsPauseRequestPerScopedUpsert(t *testing.T) {
	t.Parallel()

	delta := Delta{
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-1", Approval: scopedApproval("a1", "agent-1", 5000)},
			{AgentID: "agent-2", Approval: scopedApproval("a2", "agent-2", 5000)},
		},
		UnscopedUpserts: []Approval{{ID: "u1", ExpiresAtMS: 5000}},
	}

	result := Reduce(NewPendingState(), delta, AgentsSnapshot{}, PausedRuns{})

	if got := len(result.PauseRequests); got != 2 {
		t.Fatalf("pause requests = %d, want 2 (unscoped upserts never pause)", got)
	}
	if result.PauseRequests[0].PreferredAgentID != "agent-1" {
		t.Fatalf("first pause target = %q, want agent-1", result.PauseRequests[0].PreferredAgentID)
	}
}

func TestReduce_SuppressesPauseWhenRunAlreadyPaused(t *testing.T) {
	t.Parallel()

	agents := AgentsSnapshot{
		"agent-1": {ID: "agent-1", RunID: "run-1"},
		"agent-2": {ID: "agent-2", RunID: "run-9"},
	}
	// agent-1's current run is recorded as paused; agent-2's entry is stale.
	paused := PausedRuns{"agent-1": "run-1", "agent-2": "run-2"}

	delta := Delta{
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-1", Approval: scopedApproval("a1", "agent-1", 5000)},
			{AgentID: "agent-2", Approval: scopedApproval("a2", "agent-2", 5000)},
		},
	}

	result := Reduce(NewPendingState(), delta, agents, paused)

	if got := len(result.PauseRequests); got != 1 {
		t.Fatalf("pause requests = %d, want 1", got)
	}
	if result.PauseRequests[0].PreferredAgentID != "agent-2" {
		t.Fatalf("pause target = %q, want agent-2", result.PauseRequests[0].PreferredAgentID)
	}
}

func TestReduce_PassesActivityThrough(t *testing.T) {
	t.Parallel()

	delta := Delta{ActivityAgentIDs: []string{"agent-1", "agent-3"}}
	result := Reduce(NewPendingState(), delta, AgentsSnapshot{}, PausedRuns{})

	if len(result.ActivityAgentIDs) != 2 || result.ActivityAgentIDs[0] != "agent-1" {
		t.Fatalf("activity ids = %v, want [agent-1 agent-3]", result.ActivityAgentIDs)
	}
}
