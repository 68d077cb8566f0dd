package store

import (
	"context"
	"errors"
	"testing"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession() *shared.SwarmSession {
	return &shared.SwarmSession{
		ID:        "sess-1",
		Topology:  shared.TopologyMesh,
		Algorithm: shared.AlgorithmQuorum,
		CreatedAt: shared.Now(),
		Status:    shared.SessionActive,
		AgentIDs:  []string{"a1", "a2", "a3"},
	}
}

func TestSaveLoadSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := testSession()
	graph := &shared.TopologyGraph{
		Kind: shared.TopologyMesh,
		Edges: map[string][]string{
			"a1": {"a2", "a3"},
			"a2": {"a1", "a3"},
			"a3": {"a1", "a2"},
		},
	}

	if err := s.SaveSession(ctx, session, graph); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, loadedGraph, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Topology != shared.TopologyMesh {
		t.Errorf("expected mesh, got %s", loaded.Topology)
	}
	if len(loaded.AgentIDs) != 3 {
		t.Errorf("expected 3 agents, got %d", len(loaded.AgentIDs))
	}
	if loadedGraph == nil || len(loadedGraph.Edges) != 3 {
		t.Fatalf("graph not round-tripped: %+v", loadedGraph)
	}
	if !loadedGraph.HasEdge("a1", "a2") {
		t.Error("expected edge a1->a2")
	}
}

func TestSaveSessionUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := testSession()
	if err := s.SaveSession(ctx, session, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	session.Status = shared.SessionClosed
	session.ClosedAt = shared.Now()
	session.FailureReason = "store write failure"
	if err := s.SaveSession(ctx, session, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, _, err := s.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != shared.SessionClosed {
		t.Errorf("expected CLOSED, got %s", loaded.Status)
	}
	if loaded.FailureReason != "store write failure" {
		t.Errorf("failure reason not persisted: %q", loaded.FailureReason)
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.LoadSession(context.Background(), "nope")
	if !errors.Is(err, shared.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAppendAndQueryMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession(), nil); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 60; i++ {
		m := shared.TaskMetric{
			TaskID:     "task",
			SessionID:  "sess-1",
			AgentID:    "a1",
			DurationMs: int64(100 + i),
			Result:     shared.TaskSuccess,
			Timestamp:  int64(1000 + i),
		}
		if err := s.AppendMetric(ctx, m); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	metrics, err := s.QueryRecentMetrics(ctx, "sess-1", 50)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(metrics) != 50 {
		t.Fatalf("expected 50 metrics, got %d", len(metrics))
	}
	// Newest first.
	if metrics[0].DurationMs != 159 {
		t.Errorf("expected newest metric first, got duration %d", metrics[0].DurationMs)
	}
}

func TestAppendMetricMonotonicPerAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession(), nil); err != nil {
		t.Fatal(err)
	}

	// Same wall-clock timestamp twice: the second append must be bumped.
	for i := 0; i < 2; i++ {
		if err := s.AppendMetric(ctx, shared.TaskMetric{
			TaskID: "t", SessionID: "sess-1", AgentID: "a1",
			DurationMs: 5, Result: shared.TaskSuccess, Timestamp: 5000,
		}); err != nil {
			t.Fatal(err)
		}
	}

	metrics, err := s.QueryRecentMetrics(ctx, "sess-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[0].Timestamp == metrics[1].Timestamp {
		t.Errorf("timestamps not strictly increasing per agent: %d == %d",
			metrics[0].Timestamp, metrics[1].Timestamp)
	}
}

func TestHealingActionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession(), nil); err != nil {
		t.Fatal(err)
	}

	action := shared.HealingAction{
		ID:        "act-1",
		SessionID: "sess-1",
		AgentID:   "a2",
		Trigger:   "3 consecutive missed probes",
		Kind:      shared.ActionRestartAgent,
		AppliedAt: shared.Now(),
		Success:   true,
	}
	if err := s.AppendHealingAction(ctx, action); err != nil {
		t.Fatalf("append: %v", err)
	}

	actions, err := s.QueryHealingActions(ctx, "sess-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Kind != shared.ActionRestartAgent || !actions[0].Success {
		t.Errorf("action not round-tripped: %+v", actions[0])
	}
}

func TestProposalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession(), nil); err != nil {
		t.Fatal(err)
	}

	p := &shared.ConsensusProposal{
		ID:        "prop-1",
		SessionID: "sess-1",
		Text:      "deploy",
		Algorithm: shared.AlgorithmQuorum,
		Deadline:  shared.Now() + 5000,
		Votes:     map[string]shared.VoteValue{"a1": shared.VoteYes, "a2": shared.VoteNo},
		Outcome:   shared.OutcomeApproved,
		CreatedAt: shared.Now(),
		DecidedAt: shared.Now(),
	}
	if err := s.SaveProposal(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadProposal(ctx, "prop-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Outcome != shared.OutcomeApproved {
		t.Errorf("expected APPROVED, got %s", loaded.Outcome)
	}
	if loaded.Votes["a1"] != shared.VoteYes {
		t.Errorf("votes not round-tripped: %+v", loaded.Votes)
	}
}

func TestPruneBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, testSession(), nil); err != nil {
		t.Fatal(err)
	}

	old := shared.TaskMetric{TaskID: "t1", SessionID: "sess-1", AgentID: "a1",
		DurationMs: 10, Result: shared.TaskSuccess, Timestamp: 100}
	fresh := shared.TaskMetric{TaskID: "t2", SessionID: "sess-1", AgentID: "a2",
		DurationMs: 10, Result: shared.TaskSuccess, Timestamp: 9000}
	if err := s.AppendMetric(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMetric(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	pruned, err := s.PruneBefore(ctx, 5000)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned row, got %d", pruned)
	}

	metrics, err := s.QueryRecentMetrics(ctx, "sess-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 || metrics[0].TaskID != "t2" {
		t.Errorf("expected only t2 to survive, got %+v", metrics)
	}
}
