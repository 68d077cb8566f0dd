package consensus

import (
	"context"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// WeightedConsensus implements weighted-majority consensus for swarms with
// heterogeneous trust or expertise: the proposal is approved iff the summed
// weight of YES voters exceeds half the total participant weight. Agents
// without an explicit weight count as 1.0.
type WeightedConsensus struct{}

// NewWeightedConsensus creates a new weighted consensus algorithm.
func NewWeightedConsensus() *WeightedConsensus {
	return &WeightedConsensus{}
}

// Type returns the algorithm type.
func (w *WeightedConsensus) Type() shared.ConsensusAlgorithmType {
	return shared.AlgorithmWeighted
}

// Decide broadcasts the proposal and tallies votes by participant weight.
func (w *WeightedConsensus) Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error) {
	votes, err := collectVotes(ctx, round)
	round.Proposal.Votes = votes
	if err != nil {
		return shared.OutcomeTimeout, nil
	}

	var yesWeight, totalWeight float64
	for _, p := range round.Participants {
		weight := p.EffectiveWeight()
		totalWeight += weight
		if votes[p.ID] == shared.VoteYes {
			yesWeight += weight
		}
	}

	if yesWeight > totalWeight/2 {
		return shared.OutcomeApproved, nil
	}
	return shared.OutcomeRejected, nil
}
