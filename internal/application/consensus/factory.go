package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Engine is a unified consensus engine that dispatches proposals to the
// configured algorithm. Decided proposals are immutable: asking the engine
// to decide one again returns the original outcome with
// ErrProposalAlreadyDecided.
type Engine struct {
	mu         sync.RWMutex
	algorithms map[shared.ConsensusAlgorithmType]Algorithm
	proposals  map[string]*shared.ConsensusProposal
	logger     *slog.Logger
}

// NewEngine creates a consensus engine with all supported algorithms
// registered.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	algorithms := map[shared.ConsensusAlgorithmType]Algorithm{
		shared.AlgorithmQuorum:    NewQuorumConsensus(),
		shared.AlgorithmWeighted:  NewWeightedConsensus(),
		shared.AlgorithmByzantine: NewByzantineConsensus(),
		shared.AlgorithmRaft:      NewRaftConsensus(),
		shared.AlgorithmGossip:    NewGossipConsensus(DefaultGossipConfig()),
		shared.AlgorithmCRDT:      NewCRDTConsensus(),
	}

	return &Engine{
		algorithms: algorithms,
		proposals:  make(map[string]*shared.ConsensusProposal),
		logger:     logger.With("component", "consensus"),
	}
}

// NewProposal creates a PENDING proposal for a session.
func (e *Engine) NewProposal(sessionID, text string, algorithm shared.ConsensusAlgorithmType, timeout time.Duration) *shared.ConsensusProposal {
	now := shared.Now()
	return &shared.ConsensusProposal{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		Algorithm: algorithm,
		Deadline:  now + timeout.Milliseconds(),
		Votes:     make(map[string]shared.VoteValue),
		Outcome:   shared.OutcomePending,
		CreatedAt: now,
	}
}

// Decide runs the proposal's algorithm over the participants and records
// the terminal outcome. Blocks until decided or the timeout elapses.
// Cancelling ctx (session close) resolves the proposal as TIMEOUT.
func (e *Engine) Decide(ctx context.Context, proposal *shared.ConsensusProposal, participants []Participant, leaderID string, timeout time.Duration) (shared.ProposalOutcome, error) {
	e.mu.Lock()
	if existing, ok := e.proposals[proposal.ID]; ok && existing.Outcome != shared.OutcomePending {
		e.mu.Unlock()
		return existing.Outcome, fmt.Errorf("%w: %s", shared.ErrProposalAlreadyDecided, proposal.ID)
	}
	algorithm, ok := e.algorithms[proposal.Algorithm]
	if !ok {
		e.mu.Unlock()
		return shared.OutcomePending, fmt.Errorf("%w: unknown consensus algorithm %q", shared.ErrInvalidConfig, proposal.Algorithm)
	}
	e.proposals[proposal.ID] = proposal
	e.mu.Unlock()

	round := &Round{
		Proposal:     proposal,
		Participants: participants,
		LeaderID:     leaderID,
		Timeout:      timeout,
	}

	started := time.Now()
	outcome, err := algorithm.Decide(ctx, round)
	if err != nil {
		e.mu.Lock()
		delete(e.proposals, proposal.ID)
		e.mu.Unlock()
		return shared.OutcomePending, err
	}

	e.mu.Lock()
	proposal.Outcome = outcome
	proposal.DecidedAt = shared.Now()
	e.mu.Unlock()

	e.logger.Info("proposal decided",
		"proposalId", proposal.ID,
		"sessionId", proposal.SessionID,
		"algorithm", proposal.Algorithm,
		"outcome", outcome,
		"durationMs", time.Since(started).Milliseconds())

	return outcome, nil
}

// GetProposal returns a copy of a proposal by ID.
func (e *Engine) GetProposal(proposalID string) (shared.ConsensusProposal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	proposal, ok := e.proposals[proposalID]
	if !ok {
		return shared.ConsensusProposal{}, false
	}
	return *shared.CloneProposal(proposal), true
}

// OpenProposals returns copies of all PENDING proposals for a session.
func (e *Engine) OpenProposals(sessionID string) []shared.ConsensusProposal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	open := make([]shared.ConsensusProposal, 0)
	for _, p := range e.proposals {
		if p.SessionID == sessionID && p.Outcome == shared.OutcomePending {
			open = append(open, *shared.CloneProposal(p))
		}
	}
	return open
}

// DropSession discards the engine's proposal records for a closed session.
func (e *Engine) DropSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, p := range e.proposals {
		if p.SessionID == sessionID {
			delete(e.proposals, id)
		}
	}
}
