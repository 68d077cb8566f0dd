package topology

import (
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Hierarchical topology.
// A tree rooted at the leader; children assigned breadth-first in agent id
// order with a configurable branching factor. Parent/child edges are
// bidirectional so either endpoint can route to the other.

func buildHierarchical(agentIDs []string, leaderID string, branching int) *shared.TopologyGraph {
	if branching <= 0 {
		branching = shared.DefaultBranchingFactor
	}
	if leaderID == "" {
		leaderID = agentIDs[0] // ids are sorted by the caller
	}

	edges := make(map[string][]string, len(agentIDs))
	for _, id := range agentIDs {
		edges[id] = []string{}
	}

	// Breadth-first layout: the leader first, then remaining agents in id
	// order, each attached to the earliest parent with spare capacity.
	order := make([]string, 0, len(agentIDs))
	order = append(order, leaderID)
	for _, id := range agentIDs {
		if id != leaderID {
			order = append(order, id)
		}
	}

	for i := 1; i < len(order); i++ {
		parent := order[(i-1)/branching]
		child := order[i]
		edges[parent] = append(edges[parent], child)
		edges[child] = append(edges[child], parent)
	}

	return &shared.TopologyGraph{
		Kind:     shared.TopologyHierarchical,
		Edges:    edges,
		LeaderID: leaderID,
	}
}
