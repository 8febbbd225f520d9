package approval

import (
	"context"
	"testing"
	"time"
)

func TestApplyIngress_PublishesActivityAndAwaitingInput(t *testing.T) {
	t.Parallel()

	c, deps := newTestCoordinator(t, Config{},
		Agent{ID: "agent-1", SessionKey: "agent:agent-1:main", RunID: "run-1"},
	)

	c.ApplyIngress(context.Background(), Delta{
		ScopedUpserts: []ScopedUpsert{
			{AgentID: "agent-1", Approval: scopedApproval("a1", "agent-1", 9000)},
		},
		ActivityAgentIDs: []string{"agent-1"},
	})

	if got := len(deps.status.activity); got != 1 {
		t.Fatalf("activity publishes = %d, want 1", got)
	}
	if got := deps.status.activity[0]; len(got) != 1 || got[0] != "agent-1" {
		t.Fatalf("activity ids = %v, want [agent-1]", got)
	}

	if got := len(deps.status.awaiting); got != 1 {
		t.Fatalf("awaiting publishes = %d, want 1", got)
	}
	patch := deps.status.awaiting[0][0]
	if patch.AgentID != "agent-1" || !patch.AwaitingInput {
		t.Fatalf("awaiting patch = %+v, want agent-1 awaiting", patch)
	}
}

func TestApplyIngress_EmptyDeltaIsNoop(t *testing.T) {
	t.Parallel()

	c, deps := newTestCoordinator(t, Config{})
	c.ApplyIngress(context.Background(), Delta{})

	if len(deps.status.activity)+len(deps.status.awaiting) != 0 {
		t.Fatal("empty delta produced publishes")
	}
}

func TestPrunePending_RemovesOverdue(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(5000)
	c, _ := newTestCoordinator(t, Config{
		GracePeriod: 500 * time.Millisecond,
		Now:         func() time.Time { return now },
	})
	seedPending(c, scopedApproval("a1", "agent-1", 4000), "agent-1", "")
	seedPending(c, scopedApproval("a2", "agent-1", 6000), "agent-1", "")
	seedPending(c, Approval{ID: "u1", ExpiresAtMS: 4100}, "", "")
	seedPending(c, Approval{ID: "u2", ExpiresAtMS: 8000}, "", "")

	if removed := c.PrunePending(); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	state := c.PendingSnapshot()
	if _, _, ok := state.Find("a2"); !ok {
		t.Fatal("a2 missing")
	}
	if _, _, ok := state.Find("u2"); !ok {
		t.Fatal("u2 missing")
	}
	if state.Count() != 2 {
		t.Fatalf("pending count = %d, want 2", state.Count())
	}
}

func TestPrunePending_NothingOverdue(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(5000)
	c, _ := newTestCoordinator(t, Config{
		GracePeriod: 500 * time.Millisecond,
		Now:         func() time.Time { return now },
	})
	seedPending(c, scopedApproval("a1", "agent-1", 6000), "agent-1", "")

	if removed := c.PrunePending(); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestPendingList_ScopedSortedThenUnscoped(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(t, Config{})
	seedPending(c, scopedApproval("b1", "agent-b", 9000), "agent-b", "")
	seedPending(c, scopedApproval("a1", "agent-a", 9000), "agent-a", "")
	seedPending(c, Approval{ID: "u1", ExpiresAtMS: 9000}, "", "")

	list := c.PendingList()
	if len(list) != 3 {
		t.Fatalf("list length = %d, want 3", len(list))
	}
	if list[0].ID != "a1" || list[0].AgentID != "agent-a" {
		t.Fatalf("list[0] = %+v, want a1 owned by agent-a", list[0])
	}
	if list[1].ID != "b1" || list[2].ID != "u1" {
		t.Fatalf("list order = [%s %s %s], want [a1 b1 u1]", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	deps := &testDeps{
		runtime: &fakeRuntime{},
		agents:  newFakeAgents(),
		status:  &fakeStatus{},
	}

	if _, err := New(Config{}, nil, &fakeResolver{}, deps.agents, deps.status, nil); err == nil {
		t.Fatal("nil runtime accepted")
	}
	if _, err := New(Config{}, deps.runtime, nil, deps.agents, deps.status, nil); err == nil {
		t.Fatal("nil resolver accepted")
	}
	if _, err := New(Config{}, deps.runtime, &fakeResolver{}, nil, deps.status, nil); err == nil {
		t.Fatal("nil agent source accepted")
	}
	if _, err := New(Config{}, deps.runtime, &fakeResolver{}, deps.agents, nil, nil); err == nil {
		t.Fatal("nil status sink accepted")
	}
	// The recorder is optional.
	if _, err := New(Config{}, deps.runtime, &fakeResolver{}, deps.agents, deps.status, nil); err != nil {
		t.Fatalf("nil recorder rejected: %v", err)
	}
}

func TestDecisionValid(t *testing.T) {
	t.Parallel()

	for _, d := range []Decision{DecisionAllowOnce, DecisionAllowAlways, DecisionDeny} {
		if !d.Valid() {
			t.Fatalf("%q reported invalid", d)
		}
	}
	if Decision("maybe").Valid() {
		t.Fatal("unknown decision reported valid")
	}
}
