package state

import (
	"testing"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

func TestStore_UpsertSnapshotIsolation(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{ID: "agent-1", SessionKey: "agent:agent-1:main", RunID: "run-1"})

	snap := s.Snapshot()
	snap["agent-1"] = approval.Agent{ID: "agent-1", RunID: "tampered"}

	got, ok := s.Get("agent-1")
	if !ok || got.RunID != "run-1" {
		t.Fatalf("store agent = %+v, want run-1 untouched by snapshot mutation", got)
	}
}

func TestStore_UpsertReplacesAndRemoves(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{ID: "agent-1", Status: "idle"})
	s.Upsert(approval.Agent{ID: "agent-1", Status: "running", RunID: "run-1"})

	if got, _ := s.Get("agent-1"); got.Status != "running" {
		t.Fatalf("status = %q, want running", got.Status)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}

	s.Remove("agent-1")
	if _, ok := s.Get("agent-1"); ok {
		t.Fatal("agent still present after Remove")
	}
}

func TestStore_UpsertIgnoresEmptyID(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{SessionKey: "agent:x:main"})
	if s.Count() != 0 {
		t.Fatal("agent with empty id was stored")
	}
}

func TestStore_ListSorted(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{ID: "agent-b"})
	s.Upsert(approval.Agent{ID: "agent-a"})
	s.Upsert(approval.Agent{ID: "agent-c"})

	list := s.List()
	if len(list) != 3 || list[0].ID != "agent-a" || list[2].ID != "agent-c" {
		t.Fatalf("list = %v, want sorted by id", list)
	}
}

func TestStore_PublishRunning(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{ID: "agent-1", Status: "paused", AwaitingInput: true})

	s.PublishRunning("agent-1", "run-1", 5000)

	got, _ := s.Get("agent-1")
	if got.Status != "running" || got.RunID != "run-1" || got.AwaitingInput {
		t.Fatalf("agent = %+v, want running run-1 not awaiting", got)
	}
	if got.LastActivityMS != 5000 {
		t.Fatalf("activity = %d, want 5000", got.LastActivityMS)
	}

	// Unknown agent must be a no-op, not a phantom record.
	s.PublishRunning("ghost", "run-9", 5000)
	if s.Count() != 1 {
		t.Fatal("PublishRunning created a record for an unknown agent")
	}
}

func TestStore_PublishAwaitingInput(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{ID: "agent-1"})
	s.Upsert(approval.Agent{ID: "agent-2", AwaitingInput: true})

	s.PublishAwaitingInput([]approval.AwaitingPatch{
		{AgentID: "agent-1", AwaitingInput: true},
		{AgentID: "agent-2", AwaitingInput: false},
		{AgentID: "ghost", AwaitingInput: true},
	})

	if got, _ := s.Get("agent-1"); !got.AwaitingInput {
		t.Fatal("agent-1 flag not raised")
	}
	if got, _ := s.Get("agent-2"); got.AwaitingInput {
		t.Fatal("agent-2 flag not cleared")
	}
	if s.Count() != 2 {
		t.Fatal("patch for unknown agent created a record")
	}
}

func TestStore_MarkActivityMonotonic(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.Upsert(approval.Agent{ID: "agent-1", LastActivityMS: 9000})

	s.MarkActivity([]string{"agent-1"}, 5000)
	if got, _ := s.Get("agent-1"); got.LastActivityMS != 9000 {
		t.Fatalf("activity = %d, want 9000 (older timestamp must not regress)", got.LastActivityMS)
	}

	s.MarkActivity([]string{"agent-1"}, 9500)
	if got, _ := s.Get("agent-1"); got.LastActivityMS != 9500 {
		t.Fatalf("activity = %d, want 9500", got.LastActivityMS)
	}
}
