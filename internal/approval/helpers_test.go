package approval

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeRuntime records remote calls and returns programmable results.
type fakeRuntime struct {
	mu        sync.Mutex
	connected bool

	abortErr   error
	abortCalls []string

	waitStatus RunStatus
	waitErr    error
	waitCalls  []waitCall
	onWait     func() // runs while the wait is "in flight"

	sendErr   error
	sendCalls []sendCall
}

type waitCall struct {
	runID   string
	timeout time.Duration
}

type sendCall struct {
	sessionKey string
	text       string
	opts       SendOptions
}

func (f *fakeRuntime) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRuntime) Abort(_ context.Context, sessionKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalls = append(f.abortCalls, sessionKey)
	return f.abortErr
}

func (f *fakeRuntime) Wait(_ context.Context, runID string, timeout time.Duration) (RunStatus, error) {
	f.mu.Lock()
	f.waitCalls = append(f.waitCalls, waitCall{runID: runID, timeout: timeout})
	hook := f.onWait
	status, err := f.waitStatus, f.waitErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if status == "" {
		status = StatusAborted
	}
	return status, err
}

func (f *fakeRuntime) SendMessage(_ context.Context, sessionKey, text string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, sendCall{sessionKey: sessionKey, text: text, opts: opts})
	return f.sendErr
}

// fakeAgents is an in-memory AgentSource.
type fakeAgents struct {
	mu     sync.Mutex
	agents AgentsSnapshot
}

func newFakeAgents(agents ...Agent) *fakeAgents {
	snap := make(AgentsSnapshot, len(agents))
	for _, a := range agents {
		snap[a.ID] = a
	}
	return &fakeAgents{agents: snap}
}

func (f *fakeAgents) Snapshot() AgentsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(AgentsSnapshot, len(f.agents))
	for id, a := range f.agents {
		cp[id] = a
	}
	return cp
}

func (f *fakeAgents) set(a Agent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.ID] = a
}

// fakeStatus records published patches.
type fakeStatus struct {
	mu       sync.Mutex
	running  []struct {
		agentID    string
		runID      string
		activityMS int64
	}
	awaiting [][]AwaitingPatch
	activity [][]string
}

func (f *fakeStatus) PublishRunning(agentID, runID string, activityMS int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = append(f.running, struct {
		agentID    string
		runID      string
		activityMS int64
	}{agentID, runID, activityMS})
}

func (f *fakeStatus) PublishAwaitingInput(patches []AwaitingPatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaiting = append(f.awaiting, patches)
}

func (f *fakeStatus) MarkActivity(agentIDs []string, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, agentIDs)
}

// fakeResolver applies a canned outcome.
type fakeResolver struct {
	mu            sync.Mutex
	allow         bool
	err           error
	targetAgentID string
	calls         int
}

func (f *fakeResolver) Resolve(_ context.Context, approvalID string, _ Decision, onAllowed func(Approval, string)) error {
	f.mu.Lock()
	f.calls++
	allow, err, target := f.allow, f.err, f.targetAgentID
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if allow {
		onAllowed(Approval{ID: approvalID}, target)
	}
	return nil
}

// fakeRecorder collects audit records.
type fakeRecorder struct {
	mu      sync.Mutex
	records []DecisionRecord
}

func (f *fakeRecorder) Record(_ context.Context, rec DecisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

// testDeps bundles the fakes behind a coordinator built for tests.
type testDeps struct {
	runtime  *fakeRuntime
	agents   *fakeAgents
	status   *fakeStatus
	resolver *fakeResolver
	recorder *fakeRecorder
}

func newTestCoordinator(t *testing.T, cfg Config, agents ...Agent) (*Coordinator, *testDeps) {
	t.Helper()

	deps := &testDeps{
		runtime:  &fakeRuntime{connected: true},
		agents:   newFakeAgents(agents...),
		status:   &fakeStatus{},
		resolver: &fakeResolver{},
		recorder: &fakeRecorder{},
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}

	c, err := New(cfg, deps.runtime, deps.resolver, deps.agents, deps.status, deps.recorder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, deps
}

func scopedApproval(id, agentID string, expiresAtMS int64) Approval {
	return Approval{
		ID:          id,
		AgentID:     agentID,
		SessionKey:  "agent:" + agentID + ":main",
		Command:     "rm -rf ./build",
		CreatedAtMS: 1000,
		ExpiresAtMS: expiresAtMS,
	}
}
