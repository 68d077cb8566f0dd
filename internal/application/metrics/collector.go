// Package metrics records per-task performance and periodic agent health,
// writing through the state store and keeping rolling latency windows for
// anomaly detection.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Collector tracks task latency and throughput for one session. Appends
// are write-through: every completed task lands in the store before the
// rolling window is updated.
type Collector struct {
	mu         sync.Mutex
	store      *store.Store
	logger     *slog.Logger
	sessionID  string
	windowSize int

	starts    map[taskKey]int64  // in-flight tasks -> start ts
	windows   map[string][]int64 // agentID -> recent task durations, newest last
	completed int64              // tasks finished since the last interval drain
}

// taskKey identifies one in-flight task dispatch.
type taskKey struct {
	agentID string
	taskID  string
}

// NewCollector creates a collector for a session. windowSize bounds the
// per-agent rolling latency window.
func NewCollector(st *store.Store, sessionID string, windowSize int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if windowSize <= 0 {
		windowSize = 20
	}
	return &Collector{
		store:      st,
		logger:     logger.With("component", "metrics", "sessionId", sessionID),
		sessionID:  sessionID,
		windowSize: windowSize,
		starts:     make(map[taskKey]int64),
		windows:    make(map[string][]int64),
	}
}

// TaskStarted records a task dispatch. The engine never invokes agent
// work itself; the host calls this when it hands a task to an agent.
func (c *Collector) TaskStarted(agentID, taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts[taskKey{agentID, taskID}] = shared.Now()
}

// TaskEnded records a completed task: appends the metric to the store and
// folds the duration into the agent's rolling window. A non-positive
// durationMs is measured from the recorded dispatch time instead.
func (c *Collector) TaskEnded(ctx context.Context, agentID, taskID string, durationMs int64, result shared.TaskResultKind) error {
	if durationMs <= 0 {
		c.mu.Lock()
		if started, ok := c.starts[taskKey{agentID, taskID}]; ok {
			durationMs = shared.Now() - started
		}
		c.mu.Unlock()
	}

	metric := shared.TaskMetric{
		TaskID:     taskID,
		SessionID:  c.sessionID,
		AgentID:    agentID,
		DurationMs: durationMs,
		Result:     result,
		Timestamp:  shared.Now(),
	}

	if err := c.store.AppendMetric(ctx, metric); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.starts, taskKey{agentID, taskID})
	window := append(c.windows[agentID], durationMs)
	if len(window) > c.windowSize {
		window = window[len(window)-c.windowSize:]
	}
	c.windows[agentID] = window
	c.completed++

	return nil
}

// DropAgent discards an agent's in-flight task entries and latency
// window, used when the agent is removed from the session.
func (c *Collector) DropAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.starts {
		if key.agentID == agentID {
			delete(c.starts, key)
		}
	}
	delete(c.windows, agentID)
}

// RecordHealth appends a probe result to the store.
func (c *Collector) RecordHealth(ctx context.Context, agentID string, health shared.Health) error {
	return c.store.AppendHealth(ctx, shared.HealthSnapshot{
		SessionID: c.sessionID,
		AgentID:   agentID,
		Timestamp: shared.Now(),
		Reachable: health.Reachable,
		LatencyMs: health.LatencyMs,
	})
}

// AgentP95 returns the p95 task latency of an agent's rolling window, or
// 0 when the window is empty.
func (c *Collector) AgentP95(agentID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p95(c.windows[agentID])
}

// WindowFull reports whether an agent's window has reached full size,
// i.e. carries enough samples to judge degradation.
func (c *Collector) WindowFull(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows[agentID]) >= c.windowSize
}

// SwarmMedianP95 returns the median of all agents' p95 latencies, or 0
// when no agent has samples.
func (c *Collector) SwarmMedianP95() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	p95s := make([]int64, 0, len(c.windows))
	for _, window := range c.windows {
		if len(window) > 0 {
			p95s = append(p95s, p95(window))
		}
	}
	if len(p95s) == 0 {
		return 0
	}
	sort.Slice(p95s, func(i, j int) bool { return p95s[i] < p95s[j] })
	return p95s[len(p95s)/2]
}

// DrainThroughput returns the number of tasks completed since the last
// call and resets the counter. Called once per measurement interval.
func (c *Collector) DrainThroughput() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.completed
	c.completed = 0
	return count
}

// RecentMetrics returns the session's most recent metrics, newest first.
func (c *Collector) RecentMetrics(ctx context.Context, limit int) ([]shared.TaskMetric, error) {
	return c.store.QueryRecentMetrics(ctx, c.sessionID, limit)
}

func p95(window []int64) int64 {
	if len(window) == 0 {
		return 0
	}
	sorted := make([]int64, len(window))
	copy(sorted, window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted)*95 + 99) / 100
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}
