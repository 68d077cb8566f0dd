package metrics

import (
	"context"
	"testing"

	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	st, err := store.NewInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewCollector(st, "sess-1", 20, nil)
}

func TestTaskEndedWritesThrough(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	c.TaskStarted("a-1", "t-1")
	if err := c.TaskEnded(ctx, "a-1", "t-1", 120, shared.TaskSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent, err := c.RecentMetrics(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(recent))
	}
	if recent[0].AgentID != "a-1" || recent[0].DurationMs != 120 {
		t.Errorf("unexpected metric: %+v", recent[0])
	}
}

func TestTaskEndedMeasuresFromStart(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	// A zero duration falls back to the recorded dispatch time, and the
	// in-flight entry is reclaimed either way.
	c.TaskStarted("a-1", "t-1")
	c.starts[taskKey{"a-1", "t-1"}] = shared.Now() - 250

	if err := c.TaskEnded(ctx, "a-1", "t-1", 0, shared.TaskSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent, err := c.RecentMetrics(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 || recent[0].DurationMs < 250 {
		t.Errorf("expected duration measured from start, got %+v", recent)
	}
	if len(c.starts) != 0 {
		t.Errorf("expected in-flight entry reclaimed, got %d", len(c.starts))
	}
}

func TestDropAgentReclaimsInFlight(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	c.TaskStarted("a-1", "t-1")
	c.TaskStarted("a-1", "t-2")
	c.TaskStarted("a-2", "t-3")
	if err := c.TaskEnded(ctx, "a-1", "t-9", 50, shared.TaskSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.DropAgent("a-1")

	if len(c.starts) != 1 {
		t.Errorf("expected only a-2's in-flight entry left, got %d", len(c.starts))
	}
	if _, ok := c.starts[taskKey{"a-2", "t-3"}]; !ok {
		t.Error("expected a-2's entry untouched")
	}
	if len(c.windows["a-1"]) != 0 {
		t.Error("expected a-1's window dropped")
	}
}

func TestRollingWindowBounded(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	// 25 fast tasks, then 20 slow ones: the window must only see the
	// slow tail, not the full history.
	for i := 0; i < 25; i++ {
		if err := c.TaskEnded(ctx, "a-1", "t-fast", 10, shared.TaskSuccess); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for i := 0; i < 20; i++ {
		if err := c.TaskEnded(ctx, "a-1", "t-slow", 500, shared.TaskSuccess); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if p := c.AgentP95("a-1"); p != 500 {
		t.Errorf("expected window p95 500 after slow tail, got %d", p)
	}
	if !c.WindowFull("a-1") {
		t.Error("expected full window after 45 tasks")
	}
}

func TestSwarmMedianP95(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	durations := map[string]int64{"a-1": 100, "a-2": 200, "a-3": 900}
	for agentID, d := range durations {
		for i := 0; i < 5; i++ {
			if err := c.TaskEnded(ctx, agentID, "t", d, shared.TaskSuccess); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}

	if median := c.SwarmMedianP95(); median != 200 {
		t.Errorf("expected swarm median p95 200, got %d", median)
	}
}

func TestDrainThroughputResets(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := c.TaskEnded(ctx, "a-1", "t", 50, shared.TaskSuccess); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := c.DrainThroughput(); got != 7 {
		t.Errorf("expected throughput 7, got %d", got)
	}
	if got := c.DrainThroughput(); got != 0 {
		t.Errorf("expected throughput 0 after drain, got %d", got)
	}
}

func TestP95Index(t *testing.T) {
	window := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if got := p95(window); got != 100 {
		t.Errorf("expected p95 100 for 10 samples, got %d", got)
	}
	if got := p95([]int64{42}); got != 42 {
		t.Errorf("expected p95 42 for single sample, got %d", got)
	}
	if got := p95(nil); got != 0 {
		t.Errorf("expected p95 0 for empty window, got %d", got)
	}
}
