// Package consensus provides distributed consensus algorithms for multi-agent coordination.
package consensus

import (
	"context"
	"time"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Participant is one agent taking part in a consensus round.
type Participant struct {
	ID     string
	Weight float64
	Handle shared.AgentHandle
}

// EffectiveWeight returns the participant's weight, defaulting to 1.0.
func (p Participant) EffectiveWeight() float64 {
	if p.Weight <= 0 {
		return 1.0
	}
	return p.Weight
}

// Round carries everything an algorithm needs to decide one proposal.
type Round struct {
	Proposal     *shared.ConsensusProposal
	Participants []Participant
	LeaderID     string
	Timeout      time.Duration
}

// Algorithm defines the interface for consensus algorithms. Decide blocks
// until the proposal is decided or the round times out, recording the
// collected votes on the proposal before returning.
type Algorithm interface {
	// Type returns the algorithm type.
	Type() shared.ConsensusAlgorithmType

	// Decide collects votes and tallies an outcome for the round.
	Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error)
}

type ballot struct {
	agentID string
	vote    shared.VoteValue
}

// collectVotes broadcasts the proposal to all participants and gathers
// their votes until everyone has answered or the round deadline passes.
// Agents whose handle does not implement Voter, and agents that fail or
// miss the deadline, are recorded as ABSTAIN. Late votes are discarded.
// Returns a non-nil error only when the parent context is cancelled,
// which the engine maps to a TIMEOUT outcome.
func collectVotes(ctx context.Context, round *Round) (map[string]shared.VoteValue, error) {
	votes := make(map[string]shared.VoteValue, len(round.Participants))

	voteCtx, cancel := context.WithTimeout(ctx, round.Timeout)
	defer cancel()

	// Buffered so straggler goroutines never block after we stop reading.
	results := make(chan ballot, len(round.Participants))
	pending := 0

	for _, p := range round.Participants {
		voter, ok := p.Handle.(shared.Voter)
		if !ok {
			votes[p.ID] = shared.VoteAbstain
			continue
		}
		pending++
		go func(id string, v shared.Voter) {
			vote, err := v.Vote(voteCtx, *round.Proposal)
			if err != nil || !isValidVote(vote) {
				vote = shared.VoteAbstain
			}
			results <- ballot{agentID: id, vote: vote}
		}(p.ID, voter)
	}

	for pending > 0 {
		select {
		case b := <-results:
			votes[b.agentID] = b.vote
			pending--
		case <-voteCtx.Done():
			pending = 0
		}
	}

	for _, p := range round.Participants {
		if _, ok := votes[p.ID]; !ok {
			votes[p.ID] = shared.VoteAbstain
		}
	}

	if err := ctx.Err(); err != nil {
		return votes, err
	}
	return votes, nil
}

func isValidVote(v shared.VoteValue) bool {
	switch v {
	case shared.VoteYes, shared.VoteNo, shared.VoteAbstain:
		return true
	}
	return false
}

// tally counts YES, NO, and ABSTAIN votes.
func tally(votes map[string]shared.VoteValue) (yes, no, abstain int) {
	for _, v := range votes {
		switch v {
		case shared.VoteYes:
			yes++
		case shared.VoteNo:
			no++
		default:
			abstain++
		}
	}
	return yes, no, abstain
}
