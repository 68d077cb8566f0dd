package consensus

import (
	"context"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// CRDTConsensus implements conflict-free consensus over a grow-only vote
// set. Each agent contributes one (agent, vote) element; merges are
// commutative and idempotent, so any arrival order and any number of
// duplicate deliveries produce the same final set. The proposal is
// approved iff YES elements form a majority of the agents that voted;
// abstainers do not count toward the denominator.
type CRDTConsensus struct{}

// NewCRDTConsensus creates a new CRDT consensus algorithm.
func NewCRDTConsensus() *CRDTConsensus {
	return &CRDTConsensus{}
}

// Type returns the algorithm type.
func (c *CRDTConsensus) Type() shared.ConsensusAlgorithmType {
	return shared.AlgorithmCRDT
}

// voteSet is a grow-only set of (agent, vote) elements. An agent's first
// element wins; re-adding is a no-op, which makes merge idempotent.
type voteSet struct {
	elements map[string]shared.VoteValue
}

func newVoteSet() *voteSet {
	return &voteSet{elements: make(map[string]shared.VoteValue)}
}

// Add inserts an element unless the agent already contributed one.
func (s *voteSet) Add(agentID string, vote shared.VoteValue) {
	if _, ok := s.elements[agentID]; !ok {
		s.elements[agentID] = vote
	}
}

// Merge folds another set into this one.
func (s *voteSet) Merge(other *voteSet) {
	for id, vote := range other.elements {
		s.Add(id, vote)
	}
}

// Decide collects each agent's vote as a single-element set, merges all
// sets, and tallies the merged result.
func (c *CRDTConsensus) Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error) {
	votes, err := collectVotes(ctx, round)
	if err != nil {
		round.Proposal.Votes = votes
		return shared.OutcomeTimeout, nil
	}

	merged := newVoteSet()
	for _, p := range round.Participants {
		local := newVoteSet()
		local.Add(p.ID, votes[p.ID])
		merged.Merge(local)
	}
	round.Proposal.Votes = merged.elements

	yes, no, _ := tally(merged.elements)
	if yes*2 > yes+no {
		return shared.OutcomeApproved, nil
	}
	return shared.OutcomeRejected, nil
}
