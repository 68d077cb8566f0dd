// Package coordinator provides the SwarmCoordinator for multi-agent orchestration.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/superdisco-agents/moai-flow-sub005/internal/application/healer"
	"github.com/superdisco-agents/moai-flow-sub005/internal/application/metrics"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// probeTimeout bounds one liveness probe within a sync tick.
const probeTimeout = 500 * time.Millisecond

// session is one live coordination run. Exactly one writer goroutine (run)
// mutates the session record, agent set, and topology graph; everything
// else reads copy-on-write snapshots under the read lock. Public
// operations that need a mutation hand the writer a closure through the
// commands channel.
type session struct {
	mu      sync.RWMutex
	record  *shared.SwarmSession
	graph   *shared.TopologyGraph
	agents  map[string]*shared.AgentInfo
	handles map[string]shared.AgentHandle

	collector *metrics.Collector
	healer    *healer.Healer

	ctx      context.Context
	cancel   context.CancelFunc
	commands chan func()
	done     chan struct{}

	// degraded is set when the background loop hits a non-fatal error;
	// GetStatus keeps serving the last-known-good snapshot with the
	// flag raised.
	degraded bool

	closeOnce sync.Once
}

// snapshot returns copies of the session record and graph.
func (s *session) snapshot() (*shared.SwarmSession, *shared.TopologyGraph) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return shared.CloneSession(s.record), shared.CloneGraph(s.graph)
}

// agentList returns the current agents sorted by id.
func (s *session) agentList() []shared.AgentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]shared.AgentInfo, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, *shared.CloneAgentInfo(a))
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// submit hands a mutation to the writer goroutine and waits for it.
// Returns ErrSessionNotFound when the session has already closed.
func (s *session) submit(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.commands <- func() { reply <- fn() }:
	case <-s.ctx.Done():
		return fmt.Errorf("%w: session closed", shared.ErrSessionNotFound)
	}

	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return fmt.Errorf("%w: session closed", shared.ErrSessionNotFound)
	}
}

// run is the session's writer loop: processes mutation commands and runs
// the fixed-interval health/metrics tick until the session closes.
func (c *Coordinator) run(s *session) {
	defer close(s.done)

	ticker := time.NewTicker(c.config.Engine.SyncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.commands:
			cmd()
		case <-ticker.C:
			c.tick(s)
		}
	}
}

// tick runs one sync interval: probe agents, evaluate anomalies, attempt
// recovery, detect bottlenecks, and refresh the session snapshot file.
func (c *Coordinator) tick(s *session) {
	ctx := s.ctx

	if c.config.Engine.HealthChecksEnabled {
		c.probeAgents(s)
	}

	for _, action := range s.healer.EvaluateLatency(ctx) {
		c.bus.EmitHealingApplied(s.record.ID, action)
	}

	s.mu.RLock()
	handles := make(map[string]shared.AgentHandle, len(s.handles))
	for id, h := range s.handles {
		handles[id] = h
	}
	s.mu.RUnlock()

	for _, recovery := range s.healer.RecoverUnreachable(ctx, handles) {
		c.bus.EmitHealingApplied(s.record.ID, recovery.Action)
		if recovery.Removed {
			c.removeAgent(s, recovery.Action.AgentID)
		}
	}

	completed := s.collector.DrainThroughput()
	if action, recommend := s.healer.ObserveThroughput(ctx, completed); recommend {
		c.bus.EmitHealingApplied(s.record.ID, action)
		c.relieveBottleneck(s)
	}

	c.syncAgentStates(s)

	if err := c.writeSnapshot(s); err != nil {
		c.logger.Error("write session snapshot", "sessionId", s.record.ID, "error", err)
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	}
}

// probeAgents issues one liveness probe per agent and feeds the results
// to the collector and healer.
func (c *Coordinator) probeAgents(s *session) {
	for _, info := range s.agentList() {
		if info.State == shared.AgentRemoved {
			continue
		}

		s.mu.RLock()
		handle := s.handles[info.ID]
		s.mu.RUnlock()
		if handle == nil {
			continue
		}

		probeCtx, cancel := context.WithTimeout(s.ctx, probeTimeout)
		health, err := handle.Probe(probeCtx)
		cancel()

		if err == nil && health.Reachable {
			s.mu.Lock()
			s.agents[info.ID].LastHeartbeatAt = shared.Now()
			s.mu.Unlock()
		}

		if c.config.Engine.MetricsEnabled {
			if recErr := s.collector.RecordHealth(s.ctx, info.ID, health); recErr != nil {
				c.failSession(s, fmt.Sprintf("health append failed: %v", recErr))
				return
			}
		}
		s.healer.ObserveProbe(info.ID, health, err)
	}
}

// syncAgentStates mirrors healer states into the agent records and emits
// change events.
func (c *Coordinator) syncAgentStates(s *session) {
	states := s.healer.States()

	s.mu.Lock()
	changed := make(map[string][2]shared.AgentState)
	for id, state := range states {
		if a, ok := s.agents[id]; ok && a.State != state {
			changed[id] = [2]shared.AgentState{a.State, state}
			a.State = state
		}
	}
	s.mu.Unlock()

	for id, transition := range changed {
		c.bus.EmitAgentStateChanged(s.record.ID, id, transition[0], transition[1])
	}
}

// removeAgent applies the shrinking remove-agent transition after the
// healer gives up on an agent.
func (c *Coordinator) removeAgent(s *session, agentID string) {
	s.mu.Lock()
	graph := s.graph
	members := make(map[string]bool, len(s.agents))
	for _, id := range graph.Vertices() {
		members[id] = true
	}
	// RemoveAgent wants the graph's current membership, removed agent
	// included; it performs the exclusion itself.
	agents := make([]shared.AgentInfo, 0, len(s.agents))
	for id, a := range s.agents {
		if members[id] {
			agents = append(agents, *a)
		}
	}
	s.mu.Unlock()

	next, err := c.topo.RemoveAgent(graph, agents, agentID)
	if err != nil {
		c.logger.Error("remove agent from topology", "sessionId", s.record.ID, "agentId", agentID, "error", err)
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if a, ok := s.agents[agentID]; ok {
		a.State = shared.AgentRemoved
	}
	delete(s.handles, agentID)
	s.graph = next
	s.record.AgentIDs = next.Vertices()
	record := shared.CloneSession(s.record)
	s.mu.Unlock()

	s.healer.Forget(agentID)
	s.collector.DropAgent(agentID)

	if err := c.store.SaveSession(s.ctx, record, next); err != nil {
		c.failSession(s, fmt.Sprintf("session persist failed: %v", err))
	}
}

// relieveBottleneck reacts to a topology-level bottleneck. A mesh under
// coordination overhead moves to hierarchical; other kinds only surface
// the recommendation through the emitted healing action.
func (c *Coordinator) relieveBottleneck(s *session) {
	s.mu.RLock()
	kind := s.graph.Kind
	s.mu.RUnlock()

	if kind != shared.TopologyMesh {
		return
	}
	if err := c.applySwitch(s, shared.TopologyHierarchical); err != nil {
		c.logger.Error("bottleneck topology switch", "sessionId", s.record.ID, "error", err)
	}
}

// applySwitch performs an invariant-preserving topology transition and
// persists the result. Runs on the writer goroutine.
func (c *Coordinator) applySwitch(s *session, newKind shared.TopologyKind) error {
	s.mu.RLock()
	current := s.graph
	oldKind := s.record.Topology
	s.mu.RUnlock()

	next, err := c.topo.TransitionTo(current, newKind, s.agentList(), "")
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.graph = next
	s.record.Topology = newKind
	record := shared.CloneSession(s.record)
	s.mu.Unlock()

	if err := c.store.SaveSession(s.ctx, record, next); err != nil {
		c.failSession(s, fmt.Sprintf("session persist failed: %v", err))
		return fmt.Errorf("persist topology switch: %w", err)
	}

	c.bus.EmitTopologySwitched(s.record.ID, oldKind, newKind)
	c.logger.Info("topology switched", "sessionId", s.record.ID, "from", oldKind, "to", newKind)
	return nil
}

// writeSnapshot refreshes the session-local JSON snapshot file.
func (c *Coordinator) writeSnapshot(s *session) error {
	record, _ := s.snapshot()

	states := s.healer.States()
	agents := make([]shared.AgentSnapshot, 0, len(record.AgentIDs))
	for _, id := range record.AgentIDs {
		state, ok := states[id]
		if !ok {
			state = shared.AgentRemoved
		}
		agents = append(agents, shared.AgentSnapshot{ID: id, State: state})
	}

	snap := shared.SessionSnapshot{
		SessionID: record.ID,
		Topology:  record.Topology,
		Algorithm: record.Algorithm,
		Status:    record.Status,
		Agents:    agents,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	dir := c.config.Engine.SnapshotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Copy-then-rename keeps the snapshot readable during the write.
	path := filepath.Join(dir, record.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// failSession closes a session after a fatal error, recording the reason.
// Fatal failures are scoped to the session; sibling sessions and the
// coordinator itself keep running.
func (c *Coordinator) failSession(s *session, reason string) {
	c.logger.Error("session failed", "sessionId", s.record.ID, "reason", reason)
	go c.closeSession(s, reason)
}
