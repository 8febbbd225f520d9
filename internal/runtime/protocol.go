package runtime

import (
	"encoding/json"
	"time"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

// MessageType identifies the kind of WebSocket message in the runtime protocol.
type MessageType string

// Protocol message types exchanged over the WebSocket connection.
const (
	MsgHello         MessageType = "hello"
	MsgHelloAck      MessageType = "hello_ack"
	MsgAbort         MessageType = "abort"
	MsgAbortResult   MessageType = "abort_result"
	MsgWait          MessageType = "wait"
	MsgWaitResult    MessageType = "wait_result"
	MsgSend          MessageType = "send"
	MsgSendResult    MessageType = "send_result"
	MsgResolve       MessageType = "resolve"
	MsgResolveResult MessageType = "resolve_result"
	MsgEvent         MessageType = "event"
	MsgError         MessageType = "error"
)

// Envelope is the wire format for all WebSocket messages.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HelloPayload authenticates the client after dialing.
type HelloPayload struct {
	Token   string `json:"token,omitempty"`
	Client  string `json:"client"`
	Version string `json:"version,omitempty"`
}

// HelloAckPayload is the runtime's answer to a hello.
type HelloAckPayload struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// AbortRequest asks the runtime to stop a session's in-flight run.
type AbortRequest struct {
	SessionKey string `json:"sessionKey"`
}

// AbortResult reports whether the abort was applied.
type AbortResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// WaitRequest asks the runtime to block until a run reaches a terminal state
// or the timeout elapses. A timeout is reported via Status, not Error.
type WaitRequest struct {
	RunID     string `json:"runId"`
	TimeoutMS int64  `json:"timeoutMs"`
}

// WaitResult carries the run's terminal (or timeout) status.
type WaitResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SendRequest delivers text to an agent session.
type SendRequest struct {
	SessionKey   string `json:"sessionKey"`
	Text         string `json:"text"`
	SuppressEcho bool   `json:"suppressEcho,omitempty"`
	Marker       string `json:"marker,omitempty"`
}

// SendResult reports whether the message was delivered.
type SendResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ResolveRequest applies a decision to an approval on the runtime side.
type ResolveRequest struct {
	ApprovalID string `json:"approvalId"`
	Decision   string `json:"decision"`
}

// ResolveResult reports the outcome of a decision. Allowed is set when the
// decision permits execution, in which case Approval and TargetAgentID
// identify the run to resume.
type ResolveResult struct {
	Applied       bool               `json:"applied"`
	Allowed       bool               `json:"allowed"`
	TargetAgentID string             `json:"targetAgentId,omitempty"`
	Approval      *approval.Approval `json:"approval,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// EventKind identifies the kind of unsolicited event pushed by the runtime.
type EventKind string

// Event kinds the dispatcher understands. Anything else is forwarded to the
// passthrough handler untouched.
const (
	EventApprovalRequested EventKind = "approval.requested"
	EventApprovalUpdated   EventKind = "approval.updated"
	EventApprovalRemoved   EventKind = "approval.removed"
	EventApprovalDelta     EventKind = "approval.delta"
	EventAgentUpserted     EventKind = "agent.upserted"
	EventAgentRemoved      EventKind = "agent.removed"
	EventAgentActivity     EventKind = "agent.activity"
)

// Event is an unsolicited notification from the runtime. Data is decoded
// per kind by the dispatcher.
type Event struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ApprovalEventPayload carries a single approval upsert. An empty AgentID
// means the approval is not yet bound to an agent.
type ApprovalEventPayload struct {
	AgentID  string            `json:"agentId,omitempty"`
	Approval approval.Approval `json:"approval"`
}

// ApprovalRemovedPayload names the approval to drop.
type ApprovalRemovedPayload struct {
	ID string `json:"id"`
}

// ApprovalDeltaPayload batches several approval changes into one event.
type ApprovalDeltaPayload struct {
	Upserts          []ApprovalEventPayload `json:"upserts,omitempty"`
	Removals         []string               `json:"removals,omitempty"`
	ActivityAgentIDs []string               `json:"activityAgentIds,omitempty"`
}

// AgentEventPayload carries an agent record change.
type AgentEventPayload struct {
	Agent approval.Agent `json:"agent"`
}

// AgentRemovedPayload names the agent to drop.
type AgentRemovedPayload struct {
	ID string `json:"id"`
}

// AgentActivityPayload refreshes activity timestamps.
type AgentActivityPayload struct {
	AgentIDs []string `json:"agentIds"`
}
