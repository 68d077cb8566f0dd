package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/superdisco-agents/moai-flow-sub005/internal/application/consensus"
	"github.com/superdisco-agents/moai-flow-sub005/internal/application/healer"
	"github.com/superdisco-agents/moai-flow-sub005/internal/application/metrics"
	"github.com/superdisco-agents/moai-flow-sub005/internal/config"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/events"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/topology"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Coordinator owns session lifecycle and wires topology, consensus,
// metrics, and healing together behind the engine's public operations.
type Coordinator struct {
	mu       sync.RWMutex
	config   config.Config
	store    *store.Store
	bus      *events.EventBus
	engine   *consensus.Engine
	topo     *topology.Manager
	logger   *slog.Logger
	sessions map[string]*session
}

// Options holds construction options for the Coordinator.
type Options struct {
	Config   config.Config
	Store    *store.Store
	EventBus *events.EventBus
	Logger   *slog.Logger
}

// New creates a new Coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = events.New()
	}

	return &Coordinator{
		config: opts.Config,
		store:  opts.Store,
		bus:    bus,
		engine: consensus.NewEngine(logger),
		topo: topology.NewManager(topology.Options{
			StarThreshold:         opts.Config.Engine.AdaptiveStarThreshold,
			HierarchicalThreshold: opts.Config.Engine.AdaptiveHierarchicalThreshold,
		}),
		logger:   logger.With("component", "coordinator"),
		sessions: make(map[string]*session),
	}
}

// EventBus returns the coordinator's event bus.
func (c *Coordinator) EventBus() *events.EventBus {
	return c.bus
}

// InitSession creates a session over the given agents, builds its initial
// topology, persists it, and starts its background health/metrics loop.
func (c *Coordinator) InitSession(ctx context.Context, kind shared.TopologyKind, algorithm shared.ConsensusAlgorithmType, specs []shared.AgentSpec) (string, error) {
	if kind == "" {
		kind = c.config.Engine.DefaultTopology
	}
	if algorithm == "" {
		algorithm = c.config.Engine.ConsensusAlgorithm
	}

	if err := c.validateSpecs(kind, algorithm, specs); err != nil {
		return "", err
	}

	agents := make(map[string]*shared.AgentInfo, len(specs))
	handles := make(map[string]shared.AgentHandle, len(specs))
	infos := make([]shared.AgentInfo, 0, len(specs))
	for _, spec := range specs {
		info := shared.AgentInfo{
			ID:              spec.ID,
			CapabilityTags:  spec.CapabilityTags,
			State:           shared.AgentHealthy,
			LastHeartbeatAt: shared.Now(),
			Weight:          spec.Weight,
			LeaderEligible:  spec.LeaderEligible,
		}
		agents[spec.ID] = &info
		handles[spec.ID] = spec.Handle
		infos = append(infos, info)
	}

	graph, err := c.topo.Build(kind, infos, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	record := &shared.SwarmSession{
		ID:        uuid.NewString(),
		Topology:  kind,
		Algorithm: algorithm,
		CreatedAt: shared.Now(),
		Status:    shared.SessionActive,
		AgentIDs:  graph.Vertices(),
	}

	if err := c.store.SaveSession(ctx, record, graph); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}

	collector := metrics.NewCollector(c.store, record.ID, c.config.Healing.LatencyWindowSize, c.logger)
	h := healer.NewHealer(c.store, collector, c.config.Healing, record.ID, c.logger)
	for id := range agents {
		h.Register(id)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		record:    record,
		graph:     graph,
		agents:    agents,
		handles:   handles,
		collector: collector,
		healer:    h,
		ctx:       sctx,
		cancel:    cancel,
		commands:  make(chan func()),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.sessions[record.ID] = s
	c.mu.Unlock()

	go c.run(s)

	c.bus.EmitSessionInitialized(record.ID, kind, len(specs))
	c.logger.Info("session initialized",
		"sessionId", record.ID,
		"topology", kind,
		"algorithm", algorithm,
		"agents", len(specs))

	return record.ID, nil
}

func (c *Coordinator) validateSpecs(kind shared.TopologyKind, algorithm shared.ConsensusAlgorithmType, specs []shared.AgentSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: empty agent set", shared.ErrInvalidConfig)
	}
	if !shared.IsValidTopology(kind) {
		return fmt.Errorf("%w: unknown topology %q", shared.ErrInvalidConfig, kind)
	}
	if !shared.IsValidAlgorithm(algorithm) {
		return fmt.Errorf("%w: unknown consensus algorithm %q", shared.ErrInvalidConfig, algorithm)
	}
	if max := c.config.Engine.MaxAgents; max > 0 && len(specs) > max {
		return fmt.Errorf("%w: %d agents exceeds max_agents %d", shared.ErrInvalidConfig, len(specs), max)
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return fmt.Errorf("%w: agent with empty id", shared.ErrInvalidConfig)
		}
		if seen[spec.ID] {
			return fmt.Errorf("%w: duplicate agent id %s", shared.ErrInvalidConfig, spec.ID)
		}
		if spec.Handle == nil {
			return fmt.Errorf("%w: agent %s has no handle", shared.ErrInvalidConfig, spec.ID)
		}
		seen[spec.ID] = true
	}
	return nil
}

// active returns a session that is still ACTIVE.
func (c *Coordinator) active(sessionID string) (*session, error) {
	c.mu.RLock()
	s, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}

	s.mu.RLock()
	status := s.record.Status
	s.mu.RUnlock()
	if status != shared.SessionActive {
		return nil, fmt.Errorf("%w: %s is closed", shared.ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// GetStatus returns a read-only status report for an active session. The
// report always reflects the last-known-good snapshot; if the session's
// background loop has hit errors, the degraded flag is raised instead of
// failing the call.
func (c *Coordinator) GetStatus(ctx context.Context, sessionID string) (*shared.StatusReport, error) {
	s, err := c.active(sessionID)
	if err != nil {
		return nil, err
	}

	record, graph := s.snapshot()

	recent, err := s.collector.RecentMetrics(ctx, 50)
	if err != nil {
		// Serve the rest of the report; the store hiccup shows as degraded.
		c.logger.Error("query recent metrics", "sessionId", sessionID, "error", err)
		recent = nil
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	}

	s.mu.RLock()
	degraded := s.degraded
	s.mu.RUnlock()

	return &shared.StatusReport{
		SessionID:     record.ID,
		Topology:      record.Topology,
		Algorithm:     record.Algorithm,
		Status:        record.Status,
		LeaderID:      graph.LeaderID,
		Degraded:      degraded,
		AgentHealth:   s.healer.States(),
		RecentMetrics: recent,
		OpenProposals: c.engine.OpenProposals(sessionID),
	}, nil
}

// Route reports the message path between two agents in the session's
// current graph, with the hop count and each endpoint's fan-out.
func (c *Coordinator) Route(ctx context.Context, sessionID, from, to string) (*shared.RouteReport, error) {
	s, err := c.active(sessionID)
	if err != nil {
		return nil, err
	}

	_, graph := s.snapshot()
	for _, id := range []string{from, to} {
		if _, ok := graph.Edges[id]; !ok {
			return nil, fmt.Errorf("%w: agent %s not in session", shared.ErrInvalidConfig, id)
		}
	}

	return &shared.RouteReport{
		From:       from,
		To:         to,
		Path:       topology.ShortestPath(graph, from, to),
		Hops:       topology.HopDistance(graph, from, to),
		FromDegree: topology.Degree(graph, from),
		ToDegree:   topology.Degree(graph, to),
	}, nil
}

// SwitchTopology transitions an active session to a new topology kind.
// The swap is atomic; in-flight tasks drain against the old graph.
func (c *Coordinator) SwitchTopology(ctx context.Context, sessionID string, newKind shared.TopologyKind) error {
	s, err := c.active(sessionID)
	if err != nil {
		return err
	}
	return s.submit(func() error {
		return c.applySwitch(s, newKind)
	})
}

// RequestConsensus runs the session's consensus algorithm over the
// current agent set and blocks until the proposal is decided or the
// timeout elapses. Closing the session mid-vote resolves the proposal
// as TIMEOUT.
func (c *Coordinator) RequestConsensus(ctx context.Context, sessionID, proposalText string, timeout time.Duration) (shared.ConsensusProposal, error) {
	s, err := c.active(sessionID)
	if err != nil {
		return shared.ConsensusProposal{}, err
	}

	record, graph := s.snapshot()

	participants := make([]consensus.Participant, 0)
	s.mu.RLock()
	for _, info := range s.agents {
		if info.State == shared.AgentRemoved {
			continue
		}
		participants = append(participants, consensus.Participant{
			ID:     info.ID,
			Weight: info.Weight,
			Handle: s.handles[info.ID],
		})
	}
	s.mu.RUnlock()

	proposal := c.engine.NewProposal(sessionID, proposalText, record.Algorithm, timeout)

	// Tie vote collection to the session lifetime so CloseSession
	// resolves in-flight consensus instead of letting it hang.
	voteCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-voteCtx.Done():
		}
	}()

	outcome, err := c.engine.Decide(voteCtx, proposal, participants, graph.LeaderID, timeout)
	if err != nil {
		return shared.ConsensusProposal{}, err
	}

	if err := c.store.SaveProposal(ctx, proposal); err != nil {
		c.logger.Error("persist proposal", "proposalId", proposal.ID, "error", err)
	}
	c.bus.EmitConsensusDecided(sessionID, proposal.ID, outcome)

	return *shared.CloneProposal(proposal), nil
}

// OnTaskStart is the host-facing hook called when a task is dispatched
// to an agent.
func (c *Coordinator) OnTaskStart(sessionID, agentID, taskID string) error {
	s, err := c.active(sessionID)
	if err != nil {
		return err
	}
	if c.config.Engine.MetricsEnabled {
		s.collector.TaskStarted(agentID, taskID)
	}
	return nil
}

// OnTaskEnd is the host-facing hook called when an agent finishes a task.
func (c *Coordinator) OnTaskEnd(ctx context.Context, sessionID, agentID, taskID string, durationMs int64, result shared.TaskResultKind) error {
	s, err := c.active(sessionID)
	if err != nil {
		return err
	}
	if !c.config.Engine.MetricsEnabled {
		return nil
	}
	if err := s.collector.TaskEnded(ctx, agentID, taskID, durationMs, result); err != nil {
		return err
	}
	c.bus.EmitTaskRecorded(sessionID, agentID, taskID, result, durationMs)
	return nil
}

// CloseSession stops the session's background loop, flushes state, and
// marks it CLOSED. Closing twice is a no-op; closing an unknown session
// returns SessionNotFound.
func (c *Coordinator) CloseSession(ctx context.Context, sessionID string) error {
	c.mu.RLock()
	s, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}

	c.closeSession(s, "")
	return nil
}

func (c *Coordinator) closeSession(s *session, reason string) {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		s.mu.Lock()
		s.record.Status = shared.SessionClosed
		s.record.ClosedAt = shared.Now()
		s.record.FailureReason = reason
		record := shared.CloneSession(s.record)
		graph := shared.CloneGraph(s.graph)
		s.mu.Unlock()

		// Final flush runs on its own context: the session context is
		// already cancelled.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.store.SaveSession(flushCtx, record, graph); err != nil {
			c.logger.Error("final session flush", "sessionId", record.ID, "error", err)
		}
		if err := c.writeSnapshot(s); err != nil {
			c.logger.Error("final snapshot", "sessionId", record.ID, "error", err)
		}

		c.engine.DropSession(record.ID)
		c.bus.EmitSessionClosed(record.ID, reason)
		c.logger.Info("session closed", "sessionId", record.ID, "reason", reason)
	})
}

// LoadSession reads a persisted session record and topology graph from
// the store, including sessions closed in earlier runs.
func (c *Coordinator) LoadSession(ctx context.Context, sessionID string) (*shared.SwarmSession, *shared.TopologyGraph, error) {
	return c.store.LoadSession(ctx, sessionID)
}

// Shutdown closes every active session.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.RLock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	for _, s := range sessions {
		c.closeSession(s, "")
	}
}
