package approval

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PauseRunForApproval stops the run of the agent an approval targets so the
// agent cannot continue past the privileged action while the decision is
// outstanding. Pausing is best-effort: a failed pause leaves the approval
// pending and the run running, and is never surfaced as a fatal error.
func (c *Coordinator) PauseRunForApproval(ctx context.Context, ap Approval, preferredAgentID string) {
	if !c.runtime.Connected() {
		return
	}

	ctx, span := c.tracer.Start(ctx, "approval.pause", trace.WithAttributes(
		attribute.String("approval.id", ap.ID),
		attribute.String("agent.id", preferredAgentID),
	))
	defer span.End()

	agents := c.agents.Snapshot()

	c.mu.Lock()
	// Sweep stale paused entries first: a recorded run id that no longer
	// matches the agent's current run is garbage from a finished run, and
	// must never block future pause detection.
	for agentID, runID := range c.paused {
		if agent, ok := agents[agentID]; !ok || agent.RunID != runID {
			delete(c.paused, agentID)
		}
	}

	target, ok := resolveTarget(ap, preferredAgentID, agents)
	if !ok || target.RunID == "" {
		// Nothing to pause.
		c.mu.Unlock()
		return
	}
	runID := target.RunID
	c.paused[target.ID] = runID
	c.mu.Unlock()

	if err := c.runtime.Abort(ctx, target.SessionKey); err != nil {
		if c.isDisconnect(err) {
			// State unknown: the abort may have landed. Keep the entry so
			// a resume can still validate against it.
			c.logger.Debug("pause abort interrupted by disconnect",
				"agent_id", target.ID,
				"run_id", runID,
			)
			return
		}

		c.mu.Lock()
		// Roll back only our own write.
		if c.paused[target.ID] == runID {
			delete(c.paused, target.ID)
		}
		c.mu.Unlock()

		c.metrics.ObservePauseFailure()
		c.logger.Warn("failed to pause run for approval",
			"approval_id", ap.ID,
			"agent_id", target.ID,
			"run_id", runID,
			"error", err,
		)
		return
	}

	c.metrics.ObservePause()
	c.logger.Info("run paused for approval",
		"approval_id", ap.ID,
		"agent_id", target.ID,
		"run_id", runID,
	)
}

// resolveTarget picks the agent whose run should be paused: the preferred
// agent when known, otherwise the agent owning the approval's session key.
func resolveTarget(ap Approval, preferredAgentID string, agents AgentsSnapshot) (Agent, bool) {
	if preferredAgentID != "" {
		if agent, ok := agents[preferredAgentID]; ok {
			return agent, true
		}
	}
	if ap.SessionKey != "" {
		for _, agent := range agents {
			if agent.SessionKey == ap.SessionKey {
				return agent, true
			}
		}
	}
	return Agent{}, false
}
