package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// stubVoter is an agent handle that votes a fixed value, optionally after
// a delay.
type stubVoter struct {
	vote  shared.VoteValue
	err   error
	delay time.Duration
}

func (s *stubVoter) Execute(ctx context.Context, task shared.Task) (shared.ExecResult, error) {
	return shared.ExecResult{TaskID: task.ID}, nil
}

func (s *stubVoter) Probe(ctx context.Context) (shared.Health, error) {
	return shared.Health{Reachable: true, LatencyMs: 1}, nil
}

func (s *stubVoter) Vote(ctx context.Context, proposal shared.ConsensusProposal) (shared.VoteValue, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return shared.VoteAbstain, ctx.Err()
		}
	}
	return s.vote, s.err
}

// muteHandle executes and probes but does not vote.
type muteHandle struct{}

func (m *muteHandle) Execute(ctx context.Context, task shared.Task) (shared.ExecResult, error) {
	return shared.ExecResult{TaskID: task.ID}, nil
}

func (m *muteHandle) Probe(ctx context.Context) (shared.Health, error) {
	return shared.Health{Reachable: true, LatencyMs: 1}, nil
}

func voters(votes ...shared.VoteValue) []Participant {
	ps := make([]Participant, 0, len(votes))
	for i, v := range votes {
		ps = append(ps, Participant{
			ID:     "a-" + string(rune('1'+i)),
			Handle: &stubVoter{vote: v},
		})
	}
	return ps
}

func decide(t *testing.T, e *Engine, algo shared.ConsensusAlgorithmType, participants []Participant, leaderID string) shared.ProposalOutcome {
	t.Helper()
	proposal := e.NewProposal("sess-1", "ship it", algo, time.Second)
	outcome, err := e.Decide(context.Background(), proposal, participants, leaderID, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return outcome
}

func TestQuorumMajorityApproves(t *testing.T) {
	e := NewEngine(nil)

	// 2 of 3 YES clears the simple majority.
	outcome := decide(t, e, shared.AlgorithmQuorum, voters(shared.VoteYes, shared.VoteYes, shared.VoteNo), "")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}

	outcome = decide(t, e, shared.AlgorithmQuorum, voters(shared.VoteYes, shared.VoteNo, shared.VoteNo), "")
	if outcome != shared.OutcomeRejected {
		t.Errorf("expected REJECTED, got %s", outcome)
	}
}

func TestQuorumAbstainCountsAgainst(t *testing.T) {
	e := NewEngine(nil)

	// One YES against two non-voting handles: 1 of 3 is not a majority.
	participants := []Participant{
		{ID: "a-1", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-2", Handle: &muteHandle{}},
		{ID: "a-3", Handle: &muteHandle{}},
	}
	outcome := decide(t, e, shared.AlgorithmQuorum, participants, "")
	if outcome != shared.OutcomeRejected {
		t.Errorf("expected REJECTED, got %s", outcome)
	}
}

func TestQuorumSlowVoterBecomesAbstain(t *testing.T) {
	e := NewEngine(nil)

	participants := []Participant{
		{ID: "a-1", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-2", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-3", Handle: &stubVoter{vote: shared.VoteYes, delay: 5 * time.Second}},
	}
	proposal := e.NewProposal("sess-1", "ship it", shared.AlgorithmQuorum, 100*time.Millisecond)
	outcome, err := e.Decide(context.Background(), proposal, participants, "", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
	if proposal.Votes["a-3"] != shared.VoteAbstain {
		t.Errorf("expected slow voter recorded as ABSTAIN, got %s", proposal.Votes["a-3"])
	}
}

func TestWeightedHeavyMinorityWins(t *testing.T) {
	e := NewEngine(nil)

	// One expert outweighs two dissenters.
	participants := []Participant{
		{ID: "a-1", Weight: 5.0, Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-2", Weight: 1.0, Handle: &stubVoter{vote: shared.VoteNo}},
		{ID: "a-3", Weight: 1.0, Handle: &stubVoter{vote: shared.VoteNo}},
	}
	outcome := decide(t, e, shared.AlgorithmWeighted, participants, "")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
}

func TestByzantineSupermajority(t *testing.T) {
	e := NewEngine(nil)

	// n=4, f=1: needs 2f+1 = 3 YES votes.
	outcome := decide(t, e, shared.AlgorithmByzantine, voters(shared.VoteYes, shared.VoteYes, shared.VoteYes, shared.VoteNo), "")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}

	outcome = decide(t, e, shared.AlgorithmByzantine, voters(shared.VoteYes, shared.VoteYes, shared.VoteNo, shared.VoteNo), "")
	if outcome != shared.OutcomeRejected {
		t.Errorf("expected REJECTED, got %s", outcome)
	}
}

func TestByzantineSmallSwarmFallsBackToQuorum(t *testing.T) {
	e := NewEngine(nil)

	// n=3 tolerates no faults; simple majority applies.
	outcome := decide(t, e, shared.AlgorithmByzantine, voters(shared.VoteYes, shared.VoteYes, shared.VoteNo), "")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
}

func TestFaultTolerance(t *testing.T) {
	cases := []struct{ n, f int }{{1, 0}, {3, 0}, {4, 1}, {7, 2}, {10, 3}}
	for _, tc := range cases {
		if got := FaultTolerance(tc.n); got != tc.f {
			t.Errorf("FaultTolerance(%d): expected %d, got %d", tc.n, tc.f, got)
		}
	}
}

func TestRaftRequiresLeader(t *testing.T) {
	e := NewEngine(nil)

	proposal := e.NewProposal("sess-1", "ship it", shared.AlgorithmRaft, time.Second)
	_, err := e.Decide(context.Background(), proposal, voters(shared.VoteYes, shared.VoteYes, shared.VoteYes), "", time.Second)
	if !errors.Is(err, shared.ErrNoLeaderAvailable) {
		t.Fatalf("expected ErrNoLeaderAvailable, got %v", err)
	}
}

func TestRaftLeaderMajority(t *testing.T) {
	e := NewEngine(nil)

	participants := voters(shared.VoteYes, shared.VoteYes, shared.VoteNo)
	outcome := decide(t, e, shared.AlgorithmRaft, participants, "a-1")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
}

func TestRaftMajorityOverResponders(t *testing.T) {
	e := NewEngine(nil)

	// 2 YES responders out of 5; the three abstaining handles stay out
	// of the denominator, so the responder majority approves.
	participants := []Participant{
		{ID: "a-1", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-2", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-3", Handle: &muteHandle{}},
		{ID: "a-4", Handle: &muteHandle{}},
		{ID: "a-5", Handle: &muteHandle{}},
	}
	outcome := decide(t, e, shared.AlgorithmRaft, participants, "a-1")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
}

func TestGossipUnanimousConverges(t *testing.T) {
	e := NewEngine(nil)

	outcome := decide(t, e, shared.AlgorithmGossip, voters(shared.VoteYes, shared.VoteYes, shared.VoteYes, shared.VoteYes), "")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
}

func TestCRDTVoteOrderIndependent(t *testing.T) {
	e := NewEngine(nil)

	forward := voters(shared.VoteYes, shared.VoteYes, shared.VoteNo)
	reversed := []Participant{forward[2], forward[1], forward[0]}

	a := decide(t, e, shared.AlgorithmCRDT, forward, "")
	b := decide(t, e, shared.AlgorithmCRDT, reversed, "")
	if a != b {
		t.Errorf("outcome depends on participant order: %s vs %s", a, b)
	}
	if a != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", a)
	}
}

func TestCRDTMajorityOverResponders(t *testing.T) {
	e := NewEngine(nil)

	// Same denominator rule as Raft: 2 YES against 1 NO and two
	// abstaining handles approves.
	participants := []Participant{
		{ID: "a-1", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-2", Handle: &stubVoter{vote: shared.VoteYes}},
		{ID: "a-3", Handle: &stubVoter{vote: shared.VoteNo}},
		{ID: "a-4", Handle: &muteHandle{}},
		{ID: "a-5", Handle: &muteHandle{}},
	}
	outcome := decide(t, e, shared.AlgorithmCRDT, participants, "")
	if outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", outcome)
	}
}

func TestDecidedProposalIsImmutable(t *testing.T) {
	e := NewEngine(nil)

	proposal := e.NewProposal("sess-1", "ship it", shared.AlgorithmQuorum, time.Second)
	participants := voters(shared.VoteYes, shared.VoteYes, shared.VoteNo)

	first, err := e.Decide(context.Background(), proposal, participants, "", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second decide on the same proposal returns the original outcome.
	again, err := e.Decide(context.Background(), proposal, voters(shared.VoteNo, shared.VoteNo, shared.VoteNo), "", time.Second)
	if !errors.Is(err, shared.ErrProposalAlreadyDecided) {
		t.Fatalf("expected ErrProposalAlreadyDecided, got %v", err)
	}
	if again != first {
		t.Errorf("expected original outcome %s, got %s", first, again)
	}
}

func TestCancelledContextYieldsTimeout(t *testing.T) {
	e := NewEngine(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proposal := e.NewProposal("sess-1", "ship it", shared.AlgorithmQuorum, time.Second)
	outcome, err := e.Decide(ctx, proposal, voters(shared.VoteYes, shared.VoteYes), "", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != shared.OutcomeTimeout {
		t.Errorf("expected TIMEOUT, got %s", outcome)
	}
}

func TestOpenProposalsTracksPending(t *testing.T) {
	e := NewEngine(nil)

	proposal := e.NewProposal("sess-1", "ship it", shared.AlgorithmQuorum, time.Second)
	if _, err := e.Decide(context.Background(), proposal, voters(shared.VoteYes, shared.VoteYes), "", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if open := e.OpenProposals("sess-1"); len(open) != 0 {
		t.Errorf("expected no open proposals after decide, got %d", len(open))
	}

	got, ok := e.GetProposal(proposal.ID)
	if !ok {
		t.Fatal("expected decided proposal to be retrievable")
	}
	if got.Outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", got.Outcome)
	}

	e.DropSession("sess-1")
	if _, ok := e.GetProposal(proposal.ID); ok {
		t.Error("expected proposal dropped with session")
	}
}
