package approval

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SkipReason explains why an auto-resume attempt did not proceed. Skips are
// explicit outcomes, not errors: if the pause context moved on, a pending
// resume is silently dropped rather than forcibly aborted.
type SkipReason string

// Auto-resume skip reasons.
const (
	// SkipBlockingPendingApprovals: the agent still has other scoped
	// approvals pending; resuming now would let it act before those are
	// decided.
	SkipBlockingPendingApprovals SkipReason = "blocking-pending-approvals"

	// SkipNoPausedRun: no paused run is recorded for the agent.
	SkipNoPausedRun SkipReason = "no-paused-run"

	// SkipRunReplaced: at re-validation the agent's current run id no
	// longer matched the run that was paused.
	SkipRunReplaced SkipReason = "run-replaced"
)

// ResumePlan identifies the paused run a resume attempt will target.
type ResumePlan struct {
	AgentID string
	RunID   string
}

// ResumePreflight validates that resuming is still applicable immediately
// before the attempt. It returns a plan, or a non-empty skip reason.
func ResumePreflight(ap Approval, targetAgentID string, state PendingState, paused PausedRuns) (ResumePlan, SkipReason) {
	for _, sibling := range state.Scoped[targetAgentID] {
		if sibling.ID != ap.ID {
			return ResumePlan{}, SkipBlockingPendingApprovals
		}
	}

	runID, ok := paused[targetAgentID]
	if !ok {
		return ResumePlan{}, SkipNoPausedRun
	}

	return ResumePlan{AgentID: targetAgentID, RunID: runID}, ""
}

// ResolveApproval applies a human decision to a pending approval by
// delegating to the injected resolver. When the resolver reports an allow
// outcome, at most one auto-resume attempt is triggered synchronously after
// resolution completes. The approval's resolving flag is cleared on both
// success and failure so input controls re-enable.
func (c *Coordinator) ResolveApproval(ctx context.Context, approvalID string, decision Decision) error {
	ctx, span := c.tracer.Start(ctx, "approval.resolve", trace.WithAttributes(
		attribute.String("approval.id", approvalID),
		attribute.String("approval.decision", string(decision)),
	))
	defer span.End()

	c.mu.Lock()
	ap, agentID, ok := c.pending.Find(approvalID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownApproval
	}
	if ap.Resolving {
		c.mu.Unlock()
		return ErrAlreadyResolving
	}
	c.setResolvingLocked(approvalID, true, "")
	c.mu.Unlock()

	// Capture the allow outcome instead of resuming from inside the
	// resolver callback: the resume must run after resolution completes,
	// and must run at most once even if a resolver misbehaves.
	var allowed *struct {
		approval Approval
		agentID  string
	}
	err := c.resolver.Resolve(ctx, approvalID, decision, func(resolved Approval, targetAgentID string) {
		if allowed != nil {
			return
		}
		if targetAgentID == "" {
			targetAgentID = agentID
		}
		allowed = &struct {
			approval Approval
			agentID  string
		}{resolved, targetAgentID}
	})

	nowMS := c.now().UnixMilli()
	if err != nil {
		c.mu.Lock()
		c.setResolvingLocked(approvalID, false, err.Error())
		c.mu.Unlock()
		c.recordDecision(ctx, ap, agentID, decision, "failed", err.Error(), nowMS)
		c.logger.Warn("approval resolution failed",
			"approval_id", approvalID,
			"decision", string(decision),
			"error", err,
		)
		return err
	}

	c.mu.Lock()
	c.pending = removeApproval(c.pending, approvalID)
	c.schedulePruneLocked()
	c.mu.Unlock()

	c.metrics.ObserveResolution(decision)
	c.recordDecision(ctx, ap, agentID, decision, "applied", "", nowMS)
	c.publishDerivedState()

	if allowed != nil {
		c.autoResume(ctx, allowed.approval, allowed.agentID)
	}
	return nil
}

// autoResume continues a previously paused run. The numbered steps are
// strictly ordered; only the wait in step 3 performs a long-running remote
// call, and the re-validation in step 4 is what protects against the world
// having changed while it ran.
func (c *Coordinator) autoResume(ctx context.Context, ap Approval, targetAgentID string) {
	ctx, span := c.tracer.Start(ctx, "approval.auto_resume", trace.WithAttributes(
		attribute.String("approval.id", ap.ID),
		attribute.String("agent.id", targetAgentID),
	))
	defer span.End()

	c.mu.Lock()
	plan, skip := ResumePreflight(ap, targetAgentID, c.pending, c.paused)
	if skip != "" {
		c.mu.Unlock()
		c.skipResume(ap.ID, targetAgentID, skip)
		return
	}

	// Step 1: clear the paused-run entry while still holding the lock.
	// Whoever clears it owns the resume; a racing attempt becomes a
	// no-paused-run skip.
	delete(c.paused, plan.AgentID)
	c.mu.Unlock()

	// Step 2: reflect resumption for observers before any remote
	// confirmation arrives.
	c.status.PublishRunning(plan.AgentID, plan.RunID, c.now().UnixMilli())

	// Step 3: wait for the paused run to settle, bounded by the configured
	// timeout. A timeout status is a normal decision point.
	if _, err := c.runtime.Wait(ctx, plan.RunID, c.waitTimeout); err != nil {
		if c.isDisconnect(err) {
			// State unknown; do not resume blindly.
			c.logger.Debug("resume wait interrupted by disconnect",
				"agent_id", plan.AgentID,
				"run_id", plan.RunID,
			)
			return
		}
		c.logger.Warn("resume wait failed",
			"agent_id", plan.AgentID,
			"run_id", plan.RunID,
			"error", err,
		)
		return
	}

	// Step 4: re-validate run ownership against the current snapshot. If
	// the run was replaced while we waited, the pause context is obsolete.
	agent, ok := c.agents.Snapshot()[plan.AgentID]
	if !ok || agent.RunID != plan.RunID {
		c.skipResume(ap.ID, plan.AgentID, SkipRunReplaced)
		return
	}

	// Step 5: deliver the synthetic continuation, tagged and unechoed.
	err := c.runtime.SendMessage(ctx, agent.SessionKey, c.continuation, SendOptions{
		SuppressEcho: true,
		Marker:       ContinuationMarker,
	})
	if err != nil {
		if !c.isDisconnect(err) {
			c.logger.Warn("continuation send failed",
				"agent_id", plan.AgentID,
				"run_id", plan.RunID,
				"error", err,
			)
		}
		return
	}

	c.metrics.ObserveResume()
	c.logger.Info("run resumed after approval",
		"agent_id", plan.AgentID,
		"run_id", plan.RunID,
		"approval_id", ap.ID,
	)
}

func (c *Coordinator) skipResume(approvalID, agentID string, reason SkipReason) {
	c.metrics.ObserveResumeSkip(reason)
	c.logger.Debug("auto-resume skipped",
		"approval_id", approvalID,
		"agent_id", agentID,
		"reason", string(reason),
	)
}

// setResolvingLocked updates the resolving flag and error of the approval
// wherever it currently sits. Caller holds c.mu.
func (c *Coordinator) setResolvingLocked(id string, resolving bool, errText string) {
	update := func(list []Approval) {
		for i := range list {
			if list[i].ID == id {
				list[i].Resolving = resolving
				list[i].Err = errText
				return
			}
		}
	}
	for _, list := range c.pending.Scoped {
		update(list)
	}
	update(c.pending.Unscoped)
}

func (c *Coordinator) recordDecision(ctx context.Context, ap Approval, agentID string, decision Decision, outcome, errText string, nowMS int64) {
	if c.recorder == nil {
		return
	}
	rec := DecisionRecord{
		ApprovalID:  ap.ID,
		AgentID:     agentID,
		Command:     ap.Command,
		Decision:    decision,
		Outcome:     outcome,
		Err:         errText,
		DecidedAtMS: nowMS,
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		c.logger.Warn("decision audit write failed", "approval_id", ap.ID, "error", err)
	}
}
