package topology

import (
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Adaptive topology.
// Picks a structural kind from the swarm size: mesh while small, star at
// mid-scale, hierarchical beyond that. The healer may also request a kind
// override at runtime when it classifies the topology as the bottleneck.
// The size thresholds are tunable defaults, not hard requirements.

// resolveAdaptive maps an agent count to the structural kind an adaptive
// session should run with.
func (m *Manager) resolveAdaptive(agentCount int) shared.TopologyKind {
	switch {
	case agentCount <= m.starThreshold:
		return shared.TopologyMesh
	case agentCount <= m.hierarchicalThreshold:
		return shared.TopologyStar
	default:
		return shared.TopologyHierarchical
	}
}
