package consensus

import (
	"context"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// ByzantineConsensus implements BFT-style consensus tolerating up to f
// faulty or malicious agents, f = floor((n-1)/3). The proposal is approved
// iff at least 2f+1 agents vote YES. Swarms too small to tolerate any
// fault (f == 0, i.e. n <= 3) fall back to a simple majority, since a
// threshold of 2f+1 = 1 would let a single agent decide for everyone.
type ByzantineConsensus struct {
	fallback *QuorumConsensus
}

// NewByzantineConsensus creates a new Byzantine consensus algorithm.
func NewByzantineConsensus() *ByzantineConsensus {
	return &ByzantineConsensus{fallback: NewQuorumConsensus()}
}

// Type returns the algorithm type.
func (b *ByzantineConsensus) Type() shared.ConsensusAlgorithmType {
	return shared.AlgorithmByzantine
}

// FaultTolerance returns the number of faulty agents tolerated for a
// swarm of n participants.
func FaultTolerance(n int) int {
	if n < 1 {
		return 0
	}
	return (n - 1) / 3
}

// Decide broadcasts the proposal and requires a 2f+1 YES supermajority.
func (b *ByzantineConsensus) Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error) {
	f := FaultTolerance(len(round.Participants))
	if f == 0 {
		return b.fallback.Decide(ctx, round)
	}

	votes, err := collectVotes(ctx, round)
	round.Proposal.Votes = votes
	if err != nil {
		return shared.OutcomeTimeout, nil
	}

	yes, _, _ := tally(votes)
	if yes >= 2*f+1 {
		return shared.OutcomeApproved, nil
	}
	return shared.OutcomeRejected, nil
}
