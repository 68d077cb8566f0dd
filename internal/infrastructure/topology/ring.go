package topology

import (
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Ring topology.
// Agents ordered by agent id; each connected to exactly its successor,
// wrapping around. Used for token-passing workflows; no leader.

func buildRing(agentIDs []string) *shared.TopologyGraph {
	n := len(agentIDs)
	edges := make(map[string][]string, n)

	if n == 1 {
		edges[agentIDs[0]] = []string{}
		return &shared.TopologyGraph{Kind: shared.TopologyRing, Edges: edges}
	}

	for i, id := range agentIDs {
		successor := agentIDs[(i+1)%n]
		edges[id] = []string{successor}
	}

	return &shared.TopologyGraph{
		Kind:  shared.TopologyRing,
		Edges: edges,
	}
}
