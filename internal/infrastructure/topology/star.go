package topology

import (
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Star topology.
// One coordinator hub connected to all others; spokes are not connected to
// each other. The hub is the lowest agent id unless explicitly pinned.

func buildStar(agentIDs []string, pinned string) *shared.TopologyGraph {
	hub := pinned
	if hub == "" {
		hub = agentIDs[0] // ids are sorted by the caller
	}

	edges := make(map[string][]string, len(agentIDs))
	hubNeighbors := make([]string, 0, len(agentIDs)-1)
	for _, id := range agentIDs {
		if id == hub {
			continue
		}
		hubNeighbors = append(hubNeighbors, id)
		edges[id] = []string{hub}
	}
	edges[hub] = hubNeighbors

	return &shared.TopologyGraph{
		Kind:     shared.TopologyStar,
		Edges:    edges,
		LeaderID: hub,
	}
}
