// Package approval implements the exec-approval runtime coordinator: it
// merges approval notifications from the remote agent runtime into local
// pending state, pauses in-flight runs while a decision is outstanding,
// resumes exactly once after an allow decision, and prunes stale approvals.
package approval

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for coordinator operations.
var (
	ErrUnknownApproval  = errors.New("approval: unknown approval id")
	ErrAlreadyResolving = errors.New("approval: decision already in flight")
	ErrNotStarted       = errors.New("approval: coordinator not started")
)

// Decision is a human verdict on a pending approval.
type Decision string

// Supported decisions. Persistence of allow-always rules is owned by the
// remote resolver, not by this package.
const (
	DecisionAllowOnce   Decision = "allow-once"
	DecisionAllowAlways Decision = "allow-always"
	DecisionDeny        Decision = "deny"
)

// Valid reports whether d is one of the supported decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAllowOnce, DecisionAllowAlways, DecisionDeny:
		return true
	}
	return false
}

// Approval is a pending authorization request an agent must wait on before
// executing a sensitive action. All fields except Resolving and Err are
// immutable once the approval has been ingested.
type Approval struct {
	ID           string `json:"id"`
	AgentID      string `json:"agentId,omitempty"` // empty = not yet bound to an agent
	SessionKey   string `json:"sessionKey"`
	Command      string `json:"command"`
	Cwd          string `json:"cwd,omitempty"`
	Host         string `json:"host,omitempty"`
	Security     string `json:"security,omitempty"`
	AskPolicy    string `json:"askPolicy,omitempty"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
	CreatedAtMS  int64  `json:"createdAtMs"`
	ExpiresAtMS  int64  `json:"expiresAtMs"`

	// Resolving is set while a decision is in flight so input surfaces can
	// disable their controls; Err carries the last resolution failure.
	Resolving bool   `json:"resolving,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Agent is a read-only snapshot of an agent known to the remote runtime.
type Agent struct {
	ID             string `json:"id"`
	SessionKey     string `json:"sessionKey"`
	Status         string `json:"status"`
	RunID          string `json:"runId,omitempty"` // empty = no run in flight
	AwaitingInput  bool   `json:"awaitingInput"`
	LastActivityMS int64  `json:"lastActivityMs,omitempty"`
}

// AgentsSnapshot is a point-in-time view of all known agents, keyed by id.
type AgentsSnapshot map[string]Agent

// PausedRuns maps an agent id to the run id that was paused on its behalf.
// An entry is live only while the agent's current run id still equals the
// recorded value; any mismatch makes it stale garbage.
type PausedRuns map[string]string

// Clone returns an independent copy of the table.
func (p PausedRuns) Clone() PausedRuns {
	cp := make(PausedRuns, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// PendingState holds all undecided approvals: per-agent ordered lists plus a
// separate ordered list of approvals not yet bound to an agent. An approval
// id occupies at most one slot across all collections.
type PendingState struct {
	Scoped   map[string][]Approval `json:"scoped"`
	Unscoped []Approval            `json:"unscoped"`
}

// NewPendingState returns an empty pending state.
func NewPendingState() PendingState {
	return PendingState{Scoped: make(map[string][]Approval)}
}

// Clone returns a deep copy of the state.
func (s PendingState) Clone() PendingState {
	cp := PendingState{
		Scoped:   make(map[string][]Approval, len(s.Scoped)),
		Unscoped: append([]Approval(nil), s.Unscoped...),
	}
	for agentID, list := range s.Scoped {
		cp.Scoped[agentID] = append([]Approval(nil), list...)
	}
	return cp
}

// Find locates an approval by id. The second return value is the owning
// agent id, or empty for an unscoped approval.
func (s PendingState) Find(id string) (Approval, string, bool) {
	for agentID, list := range s.Scoped {
		for _, ap := range list {
			if ap.ID == id {
				return ap, agentID, true
			}
		}
	}
	for _, ap := range s.Unscoped {
		if ap.ID == id {
			return ap, "", true
		}
	}
	return Approval{}, "", false
}

// Count returns the total number of pending approvals.
func (s PendingState) Count() int {
	n := len(s.Unscoped)
	for _, list := range s.Scoped {
		n += len(list)
	}
	return n
}

// RunStatus is the terminal (or timeout) status reported by the remote
// runtime for a run.
type RunStatus string

// Run statuses returned by RuntimeClient.Wait. StatusTimeout is a normal
// decision point, not an error.
const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusAborted   RunStatus = "aborted"
	StatusTimeout   RunStatus = "timeout"
)

// SendOptions control delivery of a synthetic message to an agent session.
type SendOptions struct {
	// SuppressEcho prevents the message from being echoed back to observers
	// as user-authored text.
	SuppressEcho bool

	// Marker tags the message so it is distinguishable from genuine user
	// input.
	Marker string
}

// RuntimeClient is the remote runtime RPC surface the coordinator depends
// on. All calls suspend the caller until a response, error, or timeout.
type RuntimeClient interface {
	// Connected reports whether the runtime connection is currently up.
	Connected() bool

	// Abort stops the session's in-flight run.
	Abort(ctx context.Context, sessionKey string) error

	// Wait blocks until the run reaches a terminal state or the timeout
	// elapses; a timeout is reported via StatusTimeout, not an error.
	Wait(ctx context.Context, runID string, timeout time.Duration) (RunStatus, error)

	// SendMessage delivers text to the agent's session.
	SendMessage(ctx context.Context, sessionKey, text string, opts SendOptions) error
}

// Resolver applies a decision to an approval. The implementation owns
// policy application and any persistence of allow-always rules. onAllowed
// is invoked at most once, and only when the outcome is an allow, carrying
// the resolved approval and the agent id it targeted.
type Resolver interface {
	Resolve(ctx context.Context, approvalID string, decision Decision, onAllowed func(Approval, string)) error
}

// AgentSource supplies read-only agent snapshots.
type AgentSource interface {
	Snapshot() AgentsSnapshot
}

// AwaitingPatch flips an agent's "awaiting user input" flag.
type AwaitingPatch struct {
	AgentID       string `json:"agentId"`
	AwaitingInput bool   `json:"awaitingInput"`
}

// StatusSink receives agent state updates derived by the coordinator.
type StatusSink interface {
	// PublishRunning marks an agent as running again with the given run id
	// and a fresh activity timestamp.
	PublishRunning(agentID, runID string, activityMS int64)

	// PublishAwaitingInput applies derived awaiting-input flag changes.
	PublishAwaitingInput(patches []AwaitingPatch)

	// MarkActivity refreshes the activity timestamp of the given agents.
	MarkActivity(agentIDs []string, nowMS int64)
}

// DecisionRecord is an audit entry for a resolved decision.
type DecisionRecord struct {
	ApprovalID  string
	AgentID     string
	Command     string
	Decision    Decision
	Outcome     string // "applied" or "failed"
	Err         string
	DecidedAtMS int64
}

// DecisionRecorder persists decision outcomes for audit purposes.
type DecisionRecorder interface {
	Record(ctx context.Context, rec DecisionRecord) error
}
