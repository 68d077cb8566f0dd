package consensus

import (
	"context"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// QuorumConsensus implements simple-majority consensus: the proposal is
// approved iff YES votes exceed half of all participants. Abstentions and
// non-responders count against approval.
type QuorumConsensus struct{}

// NewQuorumConsensus creates a new quorum consensus algorithm.
func NewQuorumConsensus() *QuorumConsensus {
	return &QuorumConsensus{}
}

// Type returns the algorithm type.
func (q *QuorumConsensus) Type() shared.ConsensusAlgorithmType {
	return shared.AlgorithmQuorum
}

// Decide broadcasts the proposal to all participants and tallies a simple
// majority over the full participant set.
func (q *QuorumConsensus) Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error) {
	votes, err := collectVotes(ctx, round)
	round.Proposal.Votes = votes
	if err != nil {
		return shared.OutcomeTimeout, nil
	}

	yes, _, _ := tally(votes)
	if yes*2 > len(round.Participants) {
		return shared.OutcomeApproved, nil
	}
	return shared.OutcomeRejected, nil
}
