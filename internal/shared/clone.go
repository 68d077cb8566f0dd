package shared

// Copy-on-write support: topology graphs and proposals are handed to readers
// as snapshots, so writers clone before mutating and swap whole references.

// CloneGraph returns a deep copy of a topology graph.
func CloneGraph(g *TopologyGraph) *TopologyGraph {
	if g == nil {
		return nil
	}
	edges := make(map[string][]string, len(g.Edges))
	for id, neighbors := range g.Edges {
		ns := make([]string, len(neighbors))
		copy(ns, neighbors)
		edges[id] = ns
	}
	return &TopologyGraph{Kind: g.Kind, Edges: edges, LeaderID: g.LeaderID}
}

// CloneSession returns a deep copy of a session record.
func CloneSession(s *SwarmSession) *SwarmSession {
	if s == nil {
		return nil
	}
	cloned := *s
	cloned.AgentIDs = make([]string, len(s.AgentIDs))
	copy(cloned.AgentIDs, s.AgentIDs)
	return &cloned
}

// CloneProposal returns a deep copy of a proposal.
func CloneProposal(p *ConsensusProposal) *ConsensusProposal {
	if p == nil {
		return nil
	}
	cloned := *p
	cloned.Votes = make(map[string]VoteValue, len(p.Votes))
	for id, v := range p.Votes {
		cloned.Votes[id] = v
	}
	return &cloned
}

// CloneAgentInfo returns a deep copy of an agent record.
func CloneAgentInfo(a *AgentInfo) *AgentInfo {
	if a == nil {
		return nil
	}
	cloned := *a
	cloned.CapabilityTags = make([]string, len(a.CapabilityTags))
	copy(cloned.CapabilityTags, a.CapabilityTags)
	return &cloned
}
