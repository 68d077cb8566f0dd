// Package swarmflow provides the public API for moai-flow-sub005.
//
// This package provides a high-level interface for creating swarm
// sessions, switching topologies, running consensus rounds, and
// observing agent health.
//
// Example:
//
//	coord := swarmflow.New(swarmflow.Options{
//	    Config: swarmflow.DefaultConfig(),
//	    Store:  st,
//	})
//	defer coord.Shutdown(ctx)
//
//	id, err := coord.InitSession(ctx, swarmflow.TopologyMesh, swarmflow.AlgorithmQuorum, specs)
//	if err != nil {
//	    log.Fatal(err)
//	}
package swarmflow

import (
	"log/slog"

	"github.com/superdisco-agents/moai-flow-sub005/internal/application/consensus"
	"github.com/superdisco-agents/moai-flow-sub005/internal/application/coordinator"
	"github.com/superdisco-agents/moai-flow-sub005/internal/config"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/events"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/topology"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Re-export types for public API
type (
	// Session types
	SwarmSession    = shared.SwarmSession
	SessionStatus   = shared.SessionStatus
	SessionSnapshot = shared.SessionSnapshot
	StatusReport    = shared.StatusReport

	// Agent types
	AgentSpec   = shared.AgentSpec
	AgentInfo   = shared.AgentInfo
	AgentState  = shared.AgentState
	AgentHandle = shared.AgentHandle
	Voter       = shared.Voter
	Restarter   = shared.Restarter
	Task        = shared.Task
	ExecResult  = shared.ExecResult
	Health      = shared.Health

	// Topology types
	TopologyKind  = shared.TopologyKind
	TopologyGraph = shared.TopologyGraph
	RouteReport   = shared.RouteReport

	// Consensus types
	ConsensusAlgorithmType = shared.ConsensusAlgorithmType
	ConsensusProposal      = shared.ConsensusProposal
	ProposalOutcome        = shared.ProposalOutcome
	VoteValue              = shared.VoteValue

	// Observability types
	TaskMetric    = shared.TaskMetric
	HealingAction = shared.HealingAction
	Event         = shared.Event
	EventType     = shared.EventType

	// Engine types
	Coordinator = coordinator.Coordinator
	Options     = coordinator.Options
	EventBus    = events.EventBus
	Store       = store.Store
	Config      = config.Config
)

// Topology kinds.
const (
	TopologyMesh         = shared.TopologyMesh
	TopologyStar         = shared.TopologyStar
	TopologyRing         = shared.TopologyRing
	TopologyHierarchical = shared.TopologyHierarchical
	TopologyAdaptive     = shared.TopologyAdaptive
)

// Consensus algorithms.
const (
	AlgorithmQuorum    = shared.AlgorithmQuorum
	AlgorithmWeighted  = shared.AlgorithmWeighted
	AlgorithmByzantine = shared.AlgorithmByzantine
	AlgorithmRaft      = shared.AlgorithmRaft
	AlgorithmGossip    = shared.AlgorithmGossip
	AlgorithmCRDT      = shared.AlgorithmCRDT
)

// Proposal outcomes.
const (
	OutcomePending  = shared.OutcomePending
	OutcomeApproved = shared.OutcomeApproved
	OutcomeRejected = shared.OutcomeRejected
	OutcomeTimeout  = shared.OutcomeTimeout
)

// Agent states.
const (
	AgentHealthy     = shared.AgentHealthy
	AgentDegraded    = shared.AgentDegraded
	AgentUnreachable = shared.AgentUnreachable
	AgentRecovered   = shared.AgentRecovered
	AgentRemoved     = shared.AgentRemoved
)

// Sentinel errors.
var (
	ErrSessionNotFound        = shared.ErrSessionNotFound
	ErrInvalidConfig          = shared.ErrInvalidConfig
	ErrTopologyTransition     = shared.ErrTopologyTransition
	ErrNoLeaderAvailable      = shared.ErrNoLeaderAvailable
	ErrAgentUnreachable       = shared.ErrAgentUnreachable
	ErrProposalAlreadyDecided = shared.ErrProposalAlreadyDecided
)

// New creates a new swarm coordinator.
func New(opts Options) *Coordinator {
	return coordinator.New(opts)
}

// NewEventBus creates a new event bus.
func NewEventBus(opts ...events.Option) *EventBus {
	return events.New(opts...)
}

// NewStore opens the SQLite-backed state store.
func NewStore(cfg config.StoreConfig) (*Store, error) {
	return store.New(cfg)
}

// NewInMemoryStore opens an in-memory state store, useful for tests.
func NewInMemoryStore() (*Store, error) {
	return store.NewInMemory()
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads configuration from the YAML file pointed to by
// SWARMFLOW_CONFIG with environment variable overrides applied on top.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// NewConsensusEngine creates a standalone consensus engine for callers
// that run rounds outside a coordinator session.
func NewConsensusEngine(logger *slog.Logger) *consensus.Engine {
	return consensus.NewEngine(logger)
}

// NewTopologyManager creates a standalone topology manager.
func NewTopologyManager(opts topology.Options) *topology.Manager {
	return topology.NewManager(opts)
}
