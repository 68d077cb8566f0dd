package topology

import (
	"testing"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

func TestShortestPathStar(t *testing.T) {
	m := NewManager(Options{})
	graph, err := m.Build(shared.TopologyStar, testAgents("a-1", "a-2", "a-3", "a-4"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Spoke to spoke routes through the hub.
	path := ShortestPath(graph, "a-2", "a-4")
	if len(path) != 3 || path[0] != "a-2" || path[1] != "a-1" || path[2] != "a-4" {
		t.Errorf("expected [a-2 a-1 a-4], got %v", path)
	}
	if d := HopDistance(graph, "a-2", "a-4"); d != 2 {
		t.Errorf("expected distance 2, got %d", d)
	}
	if d := HopDistance(graph, "a-2", "a-9"); d != -1 {
		t.Errorf("expected -1 for unknown agent, got %d", d)
	}
}

func TestIsConnected(t *testing.T) {
	m := NewManager(Options{})

	for _, kind := range []shared.TopologyKind{shared.TopologyMesh, shared.TopologyStar, shared.TopologyRing, shared.TopologyHierarchical} {
		graph, err := m.Build(kind, testAgents("a-1", "a-2", "a-3", "a-4", "a-5"), "")
		if err != nil {
			t.Fatalf("build %s: %v", kind, err)
		}
		if !IsConnected(graph) {
			t.Errorf("%s topology should be connected", kind)
		}
	}

	disconnected := &shared.TopologyGraph{
		Kind:  shared.TopologyMesh,
		Edges: map[string][]string{"a-1": {"a-2"}, "a-2": {"a-1"}, "a-3": {}},
	}
	if IsConnected(disconnected) {
		t.Error("expected disconnected graph to report false")
	}
}
