package topology

import (
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Mesh topology.
// Every agent connected to every other agent (complete graph); no leader.
// Best for: small swarms needing resilient peer communication.
// Edge count grows O(n^2), which is what bottleneck detection watches for.

func buildMesh(agentIDs []string) *shared.TopologyGraph {
	edges := make(map[string][]string, len(agentIDs))
	for _, id := range agentIDs {
		neighbors := make([]string, 0, len(agentIDs)-1)
		for _, other := range agentIDs {
			if other != id {
				neighbors = append(neighbors, other)
			}
		}
		edges[id] = neighbors
	}

	return &shared.TopologyGraph{
		Kind:  shared.TopologyMesh,
		Edges: edges,
	}
}
