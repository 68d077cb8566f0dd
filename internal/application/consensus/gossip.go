package consensus

import (
	"context"
	"math/rand"
	"time"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// GossipConfig tunes the epidemic protocol.
type GossipConfig struct {
	// Fanout is how many random peers each agent samples per round.
	Fanout int
	// ConvergenceThreshold is the fraction of agents that must share the
	// same value for the swarm to be considered converged.
	ConvergenceThreshold float64
	// MaxRounds bounds the number of gossip rounds.
	MaxRounds int
	// RoundDelay is the pause between rounds.
	RoundDelay time.Duration
}

// DefaultGossipConfig returns the default gossip configuration.
func DefaultGossipConfig() GossipConfig {
	return GossipConfig{
		Fanout:               3,
		ConvergenceThreshold: 0.9,
		MaxRounds:            10,
		RoundDelay:           20 * time.Millisecond,
	}
}

// GossipConsensus implements epidemic consensus: agents vote locally, then
// exchange values with random peers each round until a convergence
// threshold of the swarm shares the same value. Duration is
// non-deterministic; a swarm that fails to converge before the deadline
// yields TIMEOUT rather than a forced decision.
type GossipConsensus struct {
	config GossipConfig
	rng    *rand.Rand
}

// NewGossipConsensus creates a new gossip consensus algorithm.
func NewGossipConsensus(config GossipConfig) *GossipConsensus {
	return &GossipConsensus{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Type returns the algorithm type.
func (g *GossipConsensus) Type() shared.ConsensusAlgorithmType {
	return shared.AlgorithmGossip
}

// Decide seeds each agent with its own vote and runs gossip rounds until
// convergence, round exhaustion, or deadline.
func (g *GossipConsensus) Decide(ctx context.Context, round *Round) (shared.ProposalOutcome, error) {
	votes, err := collectVotes(ctx, round)
	round.Proposal.Votes = votes
	if err != nil {
		return shared.OutcomeTimeout, nil
	}

	ids := make([]string, 0, len(round.Participants))
	values := make(map[string]shared.VoteValue, len(round.Participants))
	for _, p := range round.Participants {
		ids = append(ids, p.ID)
		values[p.ID] = votes[p.ID]
	}

	deadline := time.Now().Add(round.Timeout)

	for r := 0; r < g.config.MaxRounds; r++ {
		if value, ok := g.converged(values); ok {
			if value == shared.VoteYes {
				return shared.OutcomeApproved, nil
			}
			return shared.OutcomeRejected, nil
		}

		if time.Now().After(deadline) {
			return shared.OutcomeTimeout, nil
		}

		values = g.exchange(ids, values)

		select {
		case <-ctx.Done():
			return shared.OutcomeTimeout, nil
		case <-time.After(g.config.RoundDelay):
		}
	}

	if value, ok := g.converged(values); ok {
		if value == shared.VoteYes {
			return shared.OutcomeApproved, nil
		}
		return shared.OutcomeRejected, nil
	}
	return shared.OutcomeTimeout, nil
}

// exchange runs one gossip round: each agent samples fanout random peers
// and adopts the majority value among itself and the sample.
func (g *GossipConsensus) exchange(ids []string, values map[string]shared.VoteValue) map[string]shared.VoteValue {
	next := make(map[string]shared.VoteValue, len(values))

	for _, id := range ids {
		counts := map[shared.VoteValue]int{values[id]: 1}
		for i := 0; i < g.config.Fanout && len(ids) > 1; i++ {
			peer := ids[g.rng.Intn(len(ids))]
			if peer == id {
				continue
			}
			counts[values[peer]]++
		}

		best := values[id]
		bestCount := counts[best]
		for _, v := range []shared.VoteValue{shared.VoteYes, shared.VoteNo, shared.VoteAbstain} {
			if counts[v] > bestCount {
				best = v
				bestCount = counts[v]
			}
		}
		next[id] = best
	}

	return next
}

// converged reports whether a single value has reached the convergence
// threshold across the swarm.
func (g *GossipConsensus) converged(values map[string]shared.VoteValue) (shared.VoteValue, bool) {
	if len(values) == 0 {
		return shared.VoteAbstain, false
	}

	counts := make(map[shared.VoteValue]int)
	for _, v := range values {
		counts[v]++
	}

	need := int(g.config.ConvergenceThreshold * float64(len(values)))
	if need < 1 {
		need = 1
	}
	for _, v := range []shared.VoteValue{shared.VoteYes, shared.VoteNo, shared.VoteAbstain} {
		if counts[v] >= need {
			return v, true
		}
	}
	return shared.VoteAbstain, false
}
