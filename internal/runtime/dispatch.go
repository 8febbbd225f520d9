package runtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

// ApprovalSink receives merged approval deltas. Satisfied by the approval
// coordinator.
type ApprovalSink interface {
	ApplyIngress(ctx context.Context, delta approval.Delta)
}

// AgentStore receives agent record changes. Satisfied by the state store.
type AgentStore interface {
	Upsert(agent approval.Agent)
	Remove(agentID string)
}

// Dispatcher routes runtime events: approval events become deltas for the
// sink, agent events update the store, and everything else is handed to the
// passthrough handler untouched.
type Dispatcher struct {
	sink        ApprovalSink
	store       AgentStore
	logger      *slog.Logger
	passthrough func(Event)
}

// NewDispatcher creates a Dispatcher. passthrough may be nil, in which case
// unknown events are logged and dropped.
func NewDispatcher(sink ApprovalSink, store AgentStore, logger *slog.Logger, passthrough func(Event)) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:        sink,
		store:       store,
		logger:      logger,
		passthrough: passthrough,
	}
}

// Dispatch handles one event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventApprovalRequested, EventApprovalUpdated:
		var payload ApprovalEventPayload
		if !d.decode(ev, &payload) {
			return
		}
		d.sink.ApplyIngress(ctx, upsertDelta(payload))

	case EventApprovalRemoved:
		var payload ApprovalRemovedPayload
		if !d.decode(ev, &payload) {
			return
		}
		d.sink.ApplyIngress(ctx, approval.Delta{Removals: []string{payload.ID}})

	case EventApprovalDelta:
		var payload ApprovalDeltaPayload
		if !d.decode(ev, &payload) {
			return
		}
		d.sink.ApplyIngress(ctx, batchDelta(payload))

	case EventAgentUpserted:
		var payload AgentEventPayload
		if !d.decode(ev, &payload) {
			return
		}
		d.store.Upsert(payload.Agent)

	case EventAgentRemoved:
		var payload AgentRemovedPayload
		if !d.decode(ev, &payload) {
			return
		}
		d.store.Remove(payload.ID)

	case EventAgentActivity:
		var payload AgentActivityPayload
		if !d.decode(ev, &payload) {
			return
		}
		d.sink.ApplyIngress(ctx, approval.Delta{ActivityAgentIDs: payload.AgentIDs})

	default:
		if d.passthrough != nil {
			d.passthrough(ev)
			return
		}
		d.logger.Debug("unhandled runtime event", "kind", string(ev.Kind))
	}
}

func (d *Dispatcher) decode(ev Event, into any) bool {
	if err := json.Unmarshal(ev.Data, into); err != nil {
		d.logger.Warn("invalid event data", "kind", string(ev.Kind), "error", err)
		return false
	}
	return true
}

// upsertDelta builds a single-approval delta. The approval's agent binding
// decides whether it lands scoped or unscoped; a scoped upsert also counts
// as activity for its agent.
func upsertDelta(payload ApprovalEventPayload) approval.Delta {
	agentID := payload.AgentID
	if agentID == "" {
		agentID = payload.Approval.AgentID
	}
	if agentID == "" {
		return approval.Delta{UnscopedUpserts: []approval.Approval{payload.Approval}}
	}

	ap := payload.Approval
	ap.AgentID = agentID
	return approval.Delta{
		ScopedUpserts:    []approval.ScopedUpsert{{AgentID: agentID, Approval: ap}},
		ActivityAgentIDs: []string{agentID},
	}
}

// batchDelta flattens a batched payload into one delta, preserving the
// order of the upserts.
func batchDelta(payload ApprovalDeltaPayload) approval.Delta {
	delta := approval.Delta{
		Removals:         payload.Removals,
		ActivityAgentIDs: payload.ActivityAgentIDs,
	}
	for _, up := range payload.Upserts {
		single := upsertDelta(up)
		delta.ScopedUpserts = append(delta.ScopedUpserts, single.ScopedUpserts...)
		delta.UnscopedUpserts = append(delta.UnscopedUpserts, single.UnscopedUpserts...)
	}
	return delta
}
