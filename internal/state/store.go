// Package state maintains the local mirror of agents known to the remote
// runtime. The runtime connection feeds it upserts and removals; the
// coordinator reads snapshots from it and pushes derived status back.
package state

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

// Store is a thread-safe agent registry.
type Store struct {
	mu     sync.RWMutex
	agents map[string]approval.Agent
	logger *slog.Logger
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		agents: make(map[string]approval.Agent),
		logger: logger,
	}
}

// Upsert inserts or replaces an agent record.
func (s *Store) Upsert(agent approval.Agent) {
	if agent.ID == "" {
		return
	}
	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()
}

// Remove drops an agent record.
func (s *Store) Remove(agentID string) {
	s.mu.Lock()
	delete(s.agents, agentID)
	s.mu.Unlock()
}

// Snapshot implements approval.AgentSource.
func (s *Store) Snapshot() approval.AgentsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(approval.AgentsSnapshot, len(s.agents))
	for id, agent := range s.agents {
		cp[id] = agent
	}
	return cp
}

// List returns all agents sorted by id.
func (s *Store) List() []approval.Agent {
	s.mu.RLock()
	list := make([]approval.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		list = append(list, agent)
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b approval.Agent) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return list
}

// Get returns a single agent record.
func (s *Store) Get(agentID string) (approval.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	return agent, ok
}

// PublishRunning implements approval.StatusSink. Unknown agents are ignored:
// the record may have been removed while a resume was in flight.
func (s *Store) PublishRunning(agentID, runID string, activityMS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return
	}
	agent.Status = "running"
	agent.RunID = runID
	agent.AwaitingInput = false
	agent.LastActivityMS = activityMS
	s.agents[agentID] = agent
}

// PublishAwaitingInput implements approval.StatusSink.
func (s *Store) PublishAwaitingInput(patches []approval.AwaitingPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, patch := range patches {
		agent, ok := s.agents[patch.AgentID]
		if !ok {
			continue
		}
		agent.AwaitingInput = patch.AwaitingInput
		s.agents[patch.AgentID] = agent
	}
}

// MarkActivity implements approval.StatusSink.
func (s *Store) MarkActivity(agentIDs []string, nowMS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range agentIDs {
		agent, ok := s.agents[id]
		if !ok {
			continue
		}
		if nowMS > agent.LastActivityMS {
			agent.LastActivityMS = nowMS
			s.agents[id] = agent
		}
	}
}

// Count returns the number of known agents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}
