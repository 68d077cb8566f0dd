// Package topology provides topology management for swarm coordination.
package topology

import (
	"fmt"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Manager builds topology graphs and performs live transitions. Graphs are
// immutable once built: TransitionTo returns a fresh graph and the caller
// swaps the session's reference atomically, so in-flight readers keep their
// old snapshot until their current task completes.
type Manager struct {
	branching             int
	starThreshold         int
	hierarchicalThreshold int
}

// Options configures a Manager.
type Options struct {
	BranchingFactor       int
	StarThreshold         int
	HierarchicalThreshold int
}

// NewManager creates a Manager with the given options, filling in defaults
// for zero values.
func NewManager(opts Options) *Manager {
	m := &Manager{
		branching:             opts.BranchingFactor,
		starThreshold:         opts.StarThreshold,
		hierarchicalThreshold: opts.HierarchicalThreshold,
	}
	if m.branching <= 0 {
		m.branching = shared.DefaultBranchingFactor
	}
	if m.starThreshold <= 0 {
		m.starThreshold = 5
	}
	if m.hierarchicalThreshold <= 0 {
		m.hierarchicalThreshold = 20
	}
	return m
}

// Build constructs a graph of the given kind over the agents. The leader
// (hub or tree root) is the pinned id when set, otherwise the lowest
// leader-eligible agent id, otherwise the lowest agent id.
func (m *Manager) Build(kind shared.TopologyKind, agents []shared.AgentInfo, pinnedLeader string) (*shared.TopologyGraph, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: empty agent set", shared.ErrTopologyTransition)
	}
	if !shared.IsValidTopology(kind) {
		return nil, fmt.Errorf("%w: unknown topology %q", shared.ErrTopologyTransition, kind)
	}

	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	shared.SortStrings(ids)

	structural := kind
	if kind == shared.TopologyAdaptive {
		structural = m.resolveAdaptive(len(ids))
	}

	leader := pinnedLeader
	if leader != "" && !containsID(ids, leader) {
		return nil, fmt.Errorf("%w: pinned leader %s is not a member", shared.ErrTopologyTransition, leader)
	}
	if leader == "" {
		leader = lowestEligible(agents, ids)
	}

	var graph *shared.TopologyGraph
	switch structural {
	case shared.TopologyMesh:
		graph = buildMesh(ids)
	case shared.TopologyStar:
		graph = buildStar(ids, leader)
	case shared.TopologyRing:
		graph = buildRing(ids)
	case shared.TopologyHierarchical:
		graph = buildHierarchical(ids, leader, m.branching)
	default:
		return nil, fmt.Errorf("%w: unknown topology %q", shared.ErrTopologyTransition, structural)
	}

	// Every kind must yield a graph where any agent can reach any other.
	if !IsConnected(graph) {
		return nil, fmt.Errorf("%w: %s graph over %d agents is not connected", shared.ErrTopologyTransition, structural, len(ids))
	}

	return graph, nil
}

// TransitionTo computes a new graph of newKind over the current graph's
// vertex set. The transition never drops or duplicates an agent: the new
// vertex set must equal the old one exactly.
func (m *Manager) TransitionTo(current *shared.TopologyGraph, newKind shared.TopologyKind, agents []shared.AgentInfo, pinnedLeader string) (*shared.TopologyGraph, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: no current graph", shared.ErrTopologyTransition)
	}

	next, err := m.Build(newKind, agents, pinnedLeader)
	if err != nil {
		return nil, err
	}

	if !sameVertexSet(current.Vertices(), next.Vertices()) {
		return nil, fmt.Errorf("%w: vertex set changed during transition", shared.ErrTopologyTransition)
	}

	return next, nil
}

// RemoveAgent rebuilds the current structural kind without the removed
// agent. This is the one path where the vertex set legitimately shrinks,
// used by the healer when an agent is permanently removed.
func (m *Manager) RemoveAgent(current *shared.TopologyGraph, agents []shared.AgentInfo, removeID string) (*shared.TopologyGraph, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: no current graph", shared.ErrTopologyTransition)
	}

	remaining := make([]shared.AgentInfo, 0, len(agents))
	for _, a := range agents {
		if a.ID != removeID {
			remaining = append(remaining, a)
		}
	}
	if len(remaining) == len(agents) {
		return nil, fmt.Errorf("%w: agent %s not in graph", shared.ErrTopologyTransition, removeID)
	}
	if len(remaining) == 0 {
		return nil, fmt.Errorf("%w: removing last agent", shared.ErrTopologyTransition)
	}

	// A removed leader is re-elected by the normal leader selection rule.
	pinned := ""
	if current.LeaderID != "" && current.LeaderID != removeID {
		pinned = current.LeaderID
	}

	return m.Build(current.Kind, remaining, pinned)
}

func lowestEligible(agents []shared.AgentInfo, sortedIDs []string) string {
	eligible := make(map[string]bool, len(agents))
	anyEligible := false
	for _, a := range agents {
		if a.LeaderEligible {
			eligible[a.ID] = true
			anyEligible = true
		}
	}
	if !anyEligible {
		return sortedIDs[0]
	}
	for _, id := range sortedIDs {
		if eligible[id] {
			return id
		}
	}
	return sortedIDs[0]
}

func sameVertexSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
