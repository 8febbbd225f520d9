package approval

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ContinuationMarker tags auto-resume continuation messages so downstream
// consumers can tell them apart from genuine user input.
const ContinuationMarker = "exec-approval:auto-resume"

// defaultContinuation is the synthetic message sent to a resumed session.
const defaultContinuation = "The requested command was approved. Continue where you left off."

const (
	defaultWaitTimeout = 60 * time.Second
	defaultGracePeriod = 60 * time.Second
)

// Config holds coordinator tuning knobs.
type Config struct {
	// WaitTimeout bounds the blocking wait on a paused run during
	// auto-resume. Default 60s.
	WaitTimeout time.Duration

	// GracePeriod is the extra time past expiry before an undecided
	// approval is pruned. Default 60s.
	GracePeriod time.Duration

	// Continuation overrides the synthetic continuation text.
	Continuation string

	Logger  *slog.Logger
	Metrics *Metrics

	// Now is injectable for testing.
	Now func() time.Time

	// IsDisconnect classifies transport errors whose outcome is unknown.
	IsDisconnect func(error) bool
}

func (c Config) withDefaults() Config {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = defaultWaitTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.Continuation == "" {
		c.Continuation = defaultContinuation
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.IsDisconnect == nil {
		c.IsDisconnect = func(error) bool { return false }
	}
	return c
}

// Coordinator owns the pending approval state and the paused-run table and
// exposes the four entry points: apply-ingress, pause-for-approval,
// resolve-approval, and prune. The mutex protects the two collections; it
// is never held across a remote call; re-validation after each suspension
// point is what keeps interleavings safe.
type Coordinator struct {
	mu      sync.Mutex
	pending PendingState
	paused  PausedRuns

	runtime  RuntimeClient
	resolver Resolver
	agents   AgentSource
	status   StatusSink
	recorder DecisionRecorder

	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	now          func() time.Time
	isDisconnect func(error) bool
	waitTimeout  time.Duration
	graceMS      int64
	continuation string

	pruneTimer *time.Timer
}

// New creates a Coordinator. The recorder may be nil; every other
// collaborator is required.
func New(cfg Config, runtime RuntimeClient, resolver Resolver, agents AgentSource, status StatusSink, recorder DecisionRecorder) (*Coordinator, error) {
	if runtime == nil {
		return nil, errors.New("approval: nil RuntimeClient")
	}
	if resolver == nil {
		return nil, errors.New("approval: nil Resolver")
	}
	if agents == nil {
		return nil, errors.New("approval: nil AgentSource")
	}
	if status == nil {
		return nil, errors.New("approval: nil StatusSink")
	}

	cfg = cfg.withDefaults()
	return &Coordinator{
		pending:      NewPendingState(),
		paused:       make(PausedRuns),
		runtime:      runtime,
		resolver:     resolver,
		agents:       agents,
		status:       status,
		recorder:     recorder,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       otel.Tracer("github.com/joeblack2k/openclaw-studio-sub002/internal/approval"),
		now:          cfg.Now,
		isDisconnect: cfg.IsDisconnect,
		waitTimeout:  cfg.WaitTimeout,
		graceMS:      cfg.GracePeriod.Milliseconds(),
		continuation: cfg.Continuation,
	}, nil
}

// ApplyIngress merges one remote delta into pending state, marks activity,
// publishes derived flags, and executes the resulting pause requests in
// order.
func (c *Coordinator) ApplyIngress(ctx context.Context, delta Delta) {
	if delta.Empty() {
		return
	}

	c.mu.Lock()
	result := Reduce(c.pending, delta, c.agents.Snapshot(), c.paused)
	c.pending = result.State
	c.schedulePruneLocked()
	c.mu.Unlock()

	if len(result.ActivityAgentIDs) > 0 {
		c.status.MarkActivity(result.ActivityAgentIDs, c.now().UnixMilli())
	}
	c.publishDerivedState()

	for _, req := range result.PauseRequests {
		c.PauseRunForApproval(ctx, req.Approval, req.PreferredAgentID)
	}
}

// PrunePending removes approvals whose expiry plus grace period has passed
// and reschedules the next pass. Returns the number removed.
func (c *Coordinator) PrunePending() int {
	nowMS := c.now().UnixMilli()

	c.mu.Lock()
	before := c.pending.Count()
	c.pending = Prune(c.pending, nowMS, c.graceMS)
	removed := before - c.pending.Count()
	c.schedulePruneLocked()
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.ObservePruned(removed)
		c.publishDerivedState()
		c.logger.Info("pruned stale approvals", "count", removed)
	}
	return removed
}

// schedulePruneLocked arms the prune timer for the soonest prunable
// approval. Caller holds c.mu.
func (c *Coordinator) schedulePruneLocked() {
	delayMS, ok := PruneDelay(c.pending, c.now().UnixMilli(), c.graceMS)
	if !ok {
		if c.pruneTimer != nil {
			c.pruneTimer.Stop()
		}
		return
	}
	if delayMS < 0 {
		delayMS = 0
	}

	delay := time.Duration(delayMS) * time.Millisecond
	if c.pruneTimer == nil {
		c.pruneTimer = time.AfterFunc(delay, func() { c.PrunePending() })
		return
	}
	c.pruneTimer.Reset(delay)
}

// Close stops the prune timer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pruneTimer != nil {
		c.pruneTimer.Stop()
		c.pruneTimer = nil
	}
}

// publishDerivedState pushes awaiting-input flag changes and refreshes the
// pending gauge.
func (c *Coordinator) publishDerivedState() {
	c.mu.Lock()
	state := c.pending.Clone()
	c.mu.Unlock()

	c.metrics.SetPending(state.Count())

	patches := AwaitingInputPatches(c.agents.Snapshot(), state)
	if len(patches) > 0 {
		c.status.PublishAwaitingInput(patches)
	}
}

// PendingSnapshot returns a copy of the current pending state.
func (c *Coordinator) PendingSnapshot() PendingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Clone()
}

// PausedSnapshot returns a copy of the paused-run table.
func (c *Coordinator) PausedSnapshot() PausedRuns {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused.Clone()
}

// PendingList flattens the pending state into a single list: scoped
// approvals sorted by agent id first (with AgentID populated), then the
// unscoped ones in their original order.
func (c *Coordinator) PendingList() []Approval {
	state := c.PendingSnapshot()

	agentIDs := make([]string, 0, len(state.Scoped))
	for id := range state.Scoped {
		agentIDs = append(agentIDs, id)
	}
	slices.SortFunc(agentIDs, func(a, b string) int { return cmp.Compare(a, b) })

	var list []Approval
	for _, agentID := range agentIDs {
		for _, ap := range state.Scoped[agentID] {
			ap.AgentID = agentID
			list = append(list, ap)
		}
	}
	return append(list, state.Unscoped...)
}
