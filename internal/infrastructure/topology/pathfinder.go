// Package topology provides topology management for swarm coordination.
package topology

import "github.com/superdisco-agents/moai-flow-sub005/internal/shared"

// ShortestPath finds the shortest path between two agents using BFS.
// Returns the path as a slice of agent ids, or nil if no path exists.
func ShortestPath(graph *shared.TopologyGraph, from, to string) []string {
	if graph == nil {
		return nil
	}
	if _, ok := graph.Edges[from]; !ok {
		return nil
	}
	if _, ok := graph.Edges[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}

	visited := map[string]bool{from: true}
	parent := make(map[string]string)
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == to {
			path := []string{}
			node := to
			for node != "" {
				path = append([]string{node}, path...)
				node = parent[node]
			}
			return path
		}

		for _, neighbor := range graph.Edges[current] {
			if !visited[neighbor] {
				visited[neighbor] = true
				parent[neighbor] = current
				queue = append(queue, neighbor)
			}
		}
	}

	return nil
}

// HopDistance returns the shortest distance in hops between two agents,
// or -1 if no path exists.
func HopDistance(graph *shared.TopologyGraph, from, to string) int {
	path := ShortestPath(graph, from, to)
	if path == nil {
		return -1
	}
	return len(path) - 1
}

// IsConnected reports whether every agent can reach every other agent.
// Directed edges are followed in both directions, so a ring counts as
// connected even though its edges point one way.
func IsConnected(graph *shared.TopologyGraph) bool {
	if graph == nil {
		return false
	}
	vertices := graph.Vertices()
	if len(vertices) <= 1 {
		return true
	}

	undirected := make(map[string][]string, len(vertices))
	for from, neighbors := range graph.Edges {
		for _, to := range neighbors {
			undirected[from] = append(undirected[from], to)
			undirected[to] = append(undirected[to], from)
		}
	}

	visited := map[string]bool{vertices[0]: true}
	queue := []string{vertices[0]}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range undirected[current] {
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}

	return len(visited) == len(vertices)
}

// Degree returns the number of outgoing edges for an agent.
func Degree(graph *shared.TopologyGraph, agentID string) int {
	if graph == nil {
		return 0
	}
	return len(graph.Edges[agentID])
}
