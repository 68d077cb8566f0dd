package consensus

import (
	"context"
	"fmt"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// RaftConsensus implements leader-based consensus. The topology's leader
// collects votes from its followers and the proposal is approved iff a
// majority of the swarm (leader included) acknowledges it. Topologies
// without a designated leader (mesh, ring) cannot run this algorithm.
type RaftConsensus struct{}

// NewRaftConsensus creates a new Raft-style consensus algorithm.
func NewRaftConsensus() *RaftConsensus {
	return &RaftConsensus{}
}

// Type returns the algorithm type.
func (r *RaftConsensus) Type() shared.ConsensusAlgorithmType {
	return shared.AlgorithmRaft
}

// Decide has the leader collect acknowledgements from all participants
// and tallies a majority over the agents that responded; abstainers do
// not count toward the denominator.
func (r *RaftConsensus) Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error) {
	if round.LeaderID == "" {
		return shared.OutcomePending, fmt.Errorf("%w: %s topology has no leader", shared.ErrNoLeaderAvailable, round.Proposal.Algorithm)
	}

	leaderFound := false
	for _, p := range round.Participants {
		if p.ID == round.LeaderID {
			leaderFound = true
			break
		}
	}
	if !leaderFound {
		return shared.OutcomePending, fmt.Errorf("%w: leader %s is not a participant", shared.ErrNoLeaderAvailable, round.LeaderID)
	}

	votes, err := collectVotes(ctx, round)
	round.Proposal.Votes = votes
	if err != nil {
		return shared.OutcomeTimeout, nil
	}

	yes, no, _ := tally(votes)
	if yes*2 > yes+no {
		return shared.OutcomeApproved, nil
	}
	return shared.OutcomeRejected, nil
}
