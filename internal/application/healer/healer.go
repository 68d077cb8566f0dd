// Package healer implements the closed-loop anomaly detection and recovery
// state machine for swarm agents.
package healer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/superdisco-agents/moai-flow-sub005/internal/application/metrics"
	"github.com/superdisco-agents/moai-flow-sub005/internal/config"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// track is the healer's per-agent state machine record. Transitions follow
// HEALTHY -> DEGRADED -> UNREACHABLE -> (RECOVERED -> HEALTHY | REMOVED)
// and never skip a state.
type track struct {
	state           shared.AgentState
	missedProbes    int
	probeDegraded   bool // degradation caused by a missed probe, not latency
	degradedWindows int
	restartAttempts int
	reassigned      bool
}

// Recovery is the result of a restart attempt on an unreachable agent.
type Recovery struct {
	Action  shared.HealingAction
	Removed bool
}

// Healer watches one session's agents and decides recovery actions. It
// records every decision as an immutable HealingAction audit row; applying
// topology-level actions is the coordinator's job.
type Healer struct {
	mu        sync.Mutex
	store     *store.Store
	collector *metrics.Collector
	config    config.HealingConfig
	logger    *slog.Logger
	sessionID string

	tracks map[string]*track

	// Bottleneck detection state: rolling throughput baseline and the
	// current below-baseline streak.
	baselines    []int64
	belowStreak  int
	switchIssued bool
}

// NewHealer creates a healer for a session.
func NewHealer(st *store.Store, collector *metrics.Collector, cfg config.HealingConfig, sessionID string, logger *slog.Logger) *Healer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Healer{
		store:     st,
		collector: collector,
		config:    cfg,
		logger:    logger.With("component", "healer", "sessionId", sessionID),
		sessionID: sessionID,
		tracks:    make(map[string]*track),
	}
}

// Register starts tracking an agent as HEALTHY.
func (h *Healer) Register(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tracks[agentID]; !ok {
		h.tracks[agentID] = &track{state: shared.AgentHealthy}
	}
}

// Forget stops tracking an agent.
func (h *Healer) Forget(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tracks, agentID)
}

// States returns a snapshot of all tracked agent states.
func (h *Healer) States() map[string]shared.AgentState {
	h.mu.Lock()
	defer h.mu.Unlock()

	states := make(map[string]shared.AgentState, len(h.tracks))
	for id, tr := range h.tracks {
		states[id] = tr.state
	}
	return states
}

// State returns one agent's current state.
func (h *Healer) State(agentID string) shared.AgentState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tr, ok := h.tracks[agentID]; ok {
		return tr.state
	}
	return shared.AgentRemoved
}

// ObserveProbe feeds one probe result into the state machine. A missed
// probe degrades a healthy agent; the configured number of consecutive
// misses marks it unreachable. A successful probe clears the missed
// streak and lifts probe-caused degradation.
func (h *Healer) ObserveProbe(agentID string, health shared.Health, probeErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tr, ok := h.tracks[agentID]
	if !ok || tr.state == shared.AgentRemoved {
		return
	}

	missed := probeErr != nil || !health.Reachable
	if !missed {
		tr.missedProbes = 0
		if tr.state == shared.AgentDegraded && tr.probeDegraded {
			tr.state = shared.AgentHealthy
			tr.probeDegraded = false
			tr.degradedWindows = 0
		}
		return
	}

	tr.missedProbes++
	switch tr.state {
	case shared.AgentHealthy:
		tr.state = shared.AgentDegraded
		tr.probeDegraded = true
		h.logger.Warn("agent degraded", "agentId", agentID, "trigger", "missed probe")
	case shared.AgentDegraded:
		if tr.missedProbes >= h.config.MissedProbeThreshold {
			tr.state = shared.AgentUnreachable
			h.logger.Warn("agent unreachable", "agentId", agentID, "missedProbes", tr.missedProbes)
		}
	}
}

// EvaluateLatency applies the latency degradation rule to every tracked
// agent: an agent whose rolling p95 exceeds twice the swarm's median p95
// over a full window becomes DEGRADED. Returns predictive REASSIGN_TASK
// actions for agents degraded past the configured streak.
func (h *Healer) EvaluateLatency(ctx context.Context) []shared.HealingAction {
	medianP95 := h.collector.SwarmMedianP95()

	h.mu.Lock()
	defer h.mu.Unlock()

	actions := make([]shared.HealingAction, 0)
	for agentID, tr := range h.tracks {
		if tr.state == shared.AgentUnreachable || tr.state == shared.AgentRemoved {
			continue
		}

		slow := medianP95 > 0 &&
			h.collector.WindowFull(agentID) &&
			h.collector.AgentP95(agentID) > 2*medianP95

		switch {
		case slow && tr.state == shared.AgentHealthy:
			tr.state = shared.AgentDegraded
			tr.probeDegraded = false
			tr.degradedWindows = 1
			h.logger.Warn("agent degraded", "agentId", agentID, "trigger", "latency")
		case slow && tr.state == shared.AgentDegraded:
			tr.degradedWindows++
		case !slow && tr.state == shared.AgentDegraded && !tr.probeDegraded:
			tr.state = shared.AgentHealthy
			tr.degradedWindows = 0
			tr.reassigned = false
		}

		if h.config.PredictiveHealingEnabled &&
			tr.state == shared.AgentDegraded &&
			tr.degradedWindows >= h.config.PredictiveWindowStreak &&
			!tr.reassigned {
			tr.reassigned = true
			action := h.record(ctx, agentID, "degraded streak before failure", shared.ActionReassignTask, true)
			actions = append(actions, action)
		}
	}
	return actions
}

// RecoverUnreachable attempts a restart of every UNREACHABLE agent via its
// handle. Success moves the agent RECOVERED then HEALTHY; exhausting the
// attempt budget moves it REMOVED, which the coordinator applies as a
// remove-agent topology transition.
func (h *Healer) RecoverUnreachable(ctx context.Context, handles map[string]shared.AgentHandle) []Recovery {
	if !h.config.SelfHealingEnabled {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	recoveries := make([]Recovery, 0)
	for agentID, tr := range h.tracks {
		if tr.state != shared.AgentUnreachable {
			continue
		}

		tr.restartAttempts++
		if restart(ctx, handles[agentID]) {
			tr.state = shared.AgentRecovered
			action := h.record(ctx, agentID, "restart after unreachable", shared.ActionRestartAgent, true)
			tr.state = shared.AgentHealthy
			tr.missedProbes = 0
			tr.probeDegraded = false
			tr.degradedWindows = 0
			tr.restartAttempts = 0
			recoveries = append(recoveries, Recovery{Action: action})
			h.logger.Info("agent recovered", "agentId", agentID)
			continue
		}

		if tr.restartAttempts >= h.config.MaxRestartAttempts {
			tr.state = shared.AgentRemoved
			action := h.record(ctx, agentID, "restart attempts exhausted", shared.ActionRestartAgent, false)
			recoveries = append(recoveries, Recovery{Action: action, Removed: true})
			h.logger.Error("agent removed", "agentId", agentID, "attempts", tr.restartAttempts)
		}
	}
	return recoveries
}

// ObserveThroughput feeds one measurement interval's completed-task count
// into bottleneck detection. When throughput stays below 70% of the
// rolling baseline for the configured number of intervals while no agent
// is individually degraded, the topology itself is the bottleneck and a
// SWITCH_TOPOLOGY recommendation is recorded.
func (h *Healer) ObserveThroughput(ctx context.Context, completed int64) (shared.HealingAction, bool) {
	if !h.config.BottleneckDetectionEnabled {
		return shared.HealingAction{}, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	baseline := h.baseline()
	h.baselines = append(h.baselines, completed)
	if len(h.baselines) > 10 {
		h.baselines = h.baselines[1:]
	}

	if baseline == 0 {
		h.belowStreak = 0
		return shared.HealingAction{}, false
	}

	anyDegraded := false
	for _, tr := range h.tracks {
		if tr.state == shared.AgentDegraded || tr.state == shared.AgentUnreachable {
			anyDegraded = true
			break
		}
	}

	below := float64(completed) < 0.7*baseline
	if !below || anyDegraded {
		h.belowStreak = 0
		h.switchIssued = false
		return shared.HealingAction{}, false
	}

	h.belowStreak++
	if h.belowStreak < h.config.BottleneckIntervals || h.switchIssued {
		return shared.HealingAction{}, false
	}

	h.switchIssued = true
	action := h.record(ctx, "", "throughput below baseline with healthy agents", shared.ActionSwitchTopology, true)
	h.logger.Warn("topology bottleneck detected", "throughput", completed, "baseline", baseline)
	return action, true
}

// record appends a HealingAction audit row. Store failures are logged,
// not propagated; a lost audit row must not abort recovery itself.
func (h *Healer) record(ctx context.Context, agentID, trigger string, kind shared.HealingActionKind, success bool) shared.HealingAction {
	action := shared.HealingAction{
		ID:        uuid.NewString(),
		SessionID: h.sessionID,
		AgentID:   agentID,
		Trigger:   trigger,
		Kind:      kind,
		AppliedAt: shared.Now(),
		Success:   success,
	}
	if err := h.store.AppendHealingAction(ctx, action); err != nil {
		h.logger.Error("append healing action", "error", err)
	}
	return action
}

func (h *Healer) baseline() float64 {
	if len(h.baselines) == 0 {
		return 0
	}
	var sum int64
	for _, v := range h.baselines {
		sum += v
	}
	return float64(sum) / float64(len(h.baselines))
}

// restart tries the handle's Restarter, falling back to a probe when the
// handle cannot restart itself.
func restart(ctx context.Context, handle shared.AgentHandle) bool {
	if handle == nil {
		return false
	}
	if restarter, ok := handle.(shared.Restarter); ok {
		return restarter.Restart(ctx) == nil
	}
	health, err := handle.Probe(ctx)
	return err == nil && health.Reachable
}
