// Package shared provides shared types used across all modules of the swarm
// coordination engine.
package shared

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ============================================================================
// Topology Types
// ============================================================================

// TopologyKind represents the connectivity pattern of a swarm session.
type TopologyKind string

const (
	TopologyMesh         TopologyKind = "mesh"
	TopologyStar         TopologyKind = "star"
	TopologyRing         TopologyKind = "ring"
	TopologyHierarchical TopologyKind = "hierarchical"
	TopologyAdaptive     TopologyKind = "adaptive"
)

// SupportedTopologies lists all valid topology kinds.
func SupportedTopologies() []TopologyKind {
	return []TopologyKind{TopologyMesh, TopologyStar, TopologyRing, TopologyHierarchical, TopologyAdaptive}
}

// IsValidTopology reports whether kind is a supported topology.
func IsValidTopology(kind TopologyKind) bool {
	for _, k := range SupportedTopologies() {
		if k == kind {
			return true
		}
	}
	return false
}

// TopologyGraph is the connectivity graph among a session's agents.
// Graphs are immutable once built; topology transitions swap the whole
// graph reference rather than mutating edges in place.
type TopologyGraph struct {
	Kind     TopologyKind        `json:"kind"`
	Edges    map[string][]string `json:"edges"`
	LeaderID string              `json:"leaderId,omitempty"`
}

// Vertices returns the sorted vertex set of the graph.
func (g *TopologyGraph) Vertices() []string {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	SortStrings(ids)
	return ids
}

// HasEdge reports whether from is directly connected to to.
func (g *TopologyGraph) HasEdge(from, to string) bool {
	for _, n := range g.Edges[from] {
		if n == to {
			return true
		}
	}
	return false
}

// DefaultBranchingFactor is the fan-out of hierarchical trees.
const DefaultBranchingFactor = 4

// ============================================================================
// Session Types
// ============================================================================

// SessionStatus represents the lifecycle status of a swarm session.
type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionClosed SessionStatus = "CLOSED"
)

// SwarmSession is one coordination run over a set of agents.
type SwarmSession struct {
	ID            string                 `json:"session_id"`
	Topology      TopologyKind           `json:"topology"`
	Algorithm     ConsensusAlgorithmType `json:"consensus_algorithm"`
	CreatedAt     int64                  `json:"created_at"`
	ClosedAt      int64                  `json:"closed_at,omitempty"`
	Status        SessionStatus          `json:"status"`
	AgentIDs      []string               `json:"agent_ids"`
	FailureReason string                 `json:"failure_reason,omitempty"`
}

// SessionSnapshot is the session-local JSON snapshot written each sync
// interval for external consumers.
type SessionSnapshot struct {
	SessionID string                 `json:"session_id"`
	Topology  TopologyKind           `json:"topology"`
	Algorithm ConsensusAlgorithmType `json:"consensus_algorithm"`
	Status    SessionStatus          `json:"status"`
	Agents    []AgentSnapshot        `json:"agents"`
}

// AgentSnapshot is an agent's entry in the session snapshot file.
type AgentSnapshot struct {
	ID    string     `json:"id"`
	State AgentState `json:"state"`
}

// StatusReport is the read-only view returned by GetStatus.
type StatusReport struct {
	SessionID     string                 `json:"sessionId"`
	Topology      TopologyKind           `json:"topology"`
	Algorithm     ConsensusAlgorithmType `json:"algorithm"`
	Status        SessionStatus          `json:"status"`
	LeaderID      string                 `json:"leaderId,omitempty"`
	Degraded      bool                   `json:"degraded"`
	AgentHealth   map[string]AgentState  `json:"agentHealth"`
	RecentMetrics []TaskMetric           `json:"recentMetrics"`
	OpenProposals []ConsensusProposal    `json:"openProposals"`
}

// RouteReport describes the message route between two agents in a
// session's current graph.
type RouteReport struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Path       []string `json:"path"`
	Hops       int      `json:"hops"`
	FromDegree int      `json:"fromDegree"`
	ToDegree   int      `json:"toDegree"`
}

// ============================================================================
// Agent Types
// ============================================================================

// AgentState is an agent's health state as tracked by the healer.
type AgentState string

const (
	AgentHealthy     AgentState = "HEALTHY"
	AgentDegraded    AgentState = "DEGRADED"
	AgentUnreachable AgentState = "UNREACHABLE"
	AgentRecovered   AgentState = "RECOVERED"
	AgentRemoved     AgentState = "REMOVED"
)

// AgentSpec describes an agent registered at session init.
type AgentSpec struct {
	ID             string      `json:"id"`
	CapabilityTags []string    `json:"capabilityTags,omitempty"`
	Weight         float64     `json:"weight,omitempty"`
	LeaderEligible bool        `json:"leaderEligible,omitempty"`
	Handle         AgentHandle `json:"-"`
}

// AgentInfo is the engine's record of a registered agent.
type AgentInfo struct {
	ID              string     `json:"id"`
	CapabilityTags  []string   `json:"capabilityTags,omitempty"`
	State           AgentState `json:"state"`
	LastHeartbeatAt int64      `json:"lastHeartbeatAt"`
	Weight          float64    `json:"weight"`
	LeaderEligible  bool       `json:"leaderEligible"`
}

// Task is an opaque unit of work dispatched by the host, not by the engine.
type Task struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ExecResult is the result of an agent executing a task.
type ExecResult struct {
	TaskID string `json:"taskId"`
	Output any    `json:"output,omitempty"`
	Err    string `json:"err,omitempty"`
}

// Health is the result of a liveness probe against an agent.
type Health struct {
	Reachable bool  `json:"reachable"`
	LatencyMs int64 `json:"latencyMs"`
}

// AgentHandle is the engine's view of a worker: an opaque task executor
// that accepts liveness probes. Any concrete worker (local goroutine,
// remote RPC client, subprocess) satisfies it.
type AgentHandle interface {
	Execute(ctx context.Context, task Task) (ExecResult, error)
	Probe(ctx context.Context) (Health, error)
}

// Voter is optionally implemented by agent handles that participate in
// consensus. Handles without it are counted as ABSTAIN.
type Voter interface {
	Vote(ctx context.Context, proposal ConsensusProposal) (VoteValue, error)
}

// Restarter is optionally implemented by agent handles that support a
// recovery restart. The healer falls back to a probe when absent.
type Restarter interface {
	Restart(ctx context.Context) error
}

// ============================================================================
// Consensus Types
// ============================================================================

// ConsensusAlgorithmType identifies a vote-collection-and-tally protocol.
type ConsensusAlgorithmType string

const (
	AlgorithmQuorum    ConsensusAlgorithmType = "quorum"
	AlgorithmWeighted  ConsensusAlgorithmType = "weighted"
	AlgorithmByzantine ConsensusAlgorithmType = "byzantine"
	AlgorithmRaft      ConsensusAlgorithmType = "raft"
	AlgorithmGossip    ConsensusAlgorithmType = "gossip"
	AlgorithmCRDT      ConsensusAlgorithmType = "crdt"
)

// IsValidAlgorithm reports whether algo is a supported consensus algorithm.
func IsValidAlgorithm(algo ConsensusAlgorithmType) bool {
	switch algo {
	case AlgorithmQuorum, AlgorithmWeighted, AlgorithmByzantine, AlgorithmRaft, AlgorithmGossip, AlgorithmCRDT:
		return true
	}
	return false
}

// VoteValue is a single agent's vote on a proposal.
type VoteValue string

const (
	VoteYes     VoteValue = "YES"
	VoteNo      VoteValue = "NO"
	VoteAbstain VoteValue = "ABSTAIN"
)

// ProposalOutcome is the terminal (or pending) state of a proposal.
type ProposalOutcome string

const (
	OutcomePending  ProposalOutcome = "PENDING"
	OutcomeApproved ProposalOutcome = "APPROVED"
	OutcomeRejected ProposalOutcome = "REJECTED"
	OutcomeTimeout  ProposalOutcome = "TIMEOUT"
)

// ConsensusProposal is a pending or decided decision. Votes keys are a
// subset of the session's agent set at proposal-creation time; decided
// proposals are immutable.
type ConsensusProposal struct {
	ID        string                 `json:"proposal_id"`
	SessionID string                 `json:"session_id"`
	Text      string                 `json:"text"`
	Algorithm ConsensusAlgorithmType `json:"algorithm"`
	Deadline  int64                  `json:"deadline"`
	Votes     map[string]VoteValue   `json:"votes"`
	Outcome   ProposalOutcome        `json:"outcome"`
	CreatedAt int64                  `json:"created_at"`
	DecidedAt int64                  `json:"decided_at,omitempty"`
}

// ============================================================================
// Metric and Healing Types
// ============================================================================

// TaskResultKind classifies a completed task.
type TaskResultKind string

const (
	TaskSuccess TaskResultKind = "SUCCESS"
	TaskFailure TaskResultKind = "FAILURE"
)

// TaskMetric is one completed task's performance record. Append-only.
type TaskMetric struct {
	TaskID     string         `json:"task_id"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id"`
	DurationMs int64          `json:"duration_ms"`
	Result     TaskResultKind `json:"result"`
	Timestamp  int64          `json:"ts"`
}

// HealthSnapshot is one periodic probe result. Append-only.
type HealthSnapshot struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Timestamp int64  `json:"ts"`
	Reachable bool   `json:"reachable"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealingActionKind classifies a recovery action.
type HealingActionKind string

const (
	ActionRestartAgent   HealingActionKind = "RESTART_AGENT"
	ActionReassignTask   HealingActionKind = "REASSIGN_TASK"
	ActionSwitchTopology HealingActionKind = "SWITCH_TOPOLOGY"
)

// HealingAction is an immutable audit record of a recovery decision.
type HealingAction struct {
	ID        string            `json:"action_id"`
	SessionID string            `json:"session_id"`
	AgentID   string            `json:"agent_id,omitempty"`
	Trigger   string            `json:"trigger"`
	Kind      HealingActionKind `json:"action_kind"`
	AppliedAt int64             `json:"applied_at"`
	Success   bool              `json:"success"`
}

// ============================================================================
// Event Types
// ============================================================================

// EventType classifies engine events published on the bus.
type EventType string

const (
	EventSessionInitialized EventType = "session:initialized"
	EventSessionClosed      EventType = "session:closed"
	EventTopologySwitched   EventType = "topology:switched"
	EventAgentStateChanged  EventType = "agent:stateChanged"
	EventConsensusDecided   EventType = "consensus:decided"
	EventHealingApplied     EventType = "healing:applied"
	EventTaskRecorded       EventType = "task:recorded"
)

// Event is a generic engine event.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrInvalidConfig signals bad init parameters. Not retried.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrSessionNotFound signals an unknown or closed session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTopologyTransition signals an invariant violation during a switch;
	// the session remains on its prior topology.
	ErrTopologyTransition = errors.New("topology transition failed")
	// ErrNoLeaderAvailable signals Raft requested on a leaderless topology.
	ErrNoLeaderAvailable = errors.New("no leader available")
	// ErrProposalAlreadyDecided signals a duplicate decide call; the original
	// outcome is returned alongside.
	ErrProposalAlreadyDecided = errors.New("proposal already decided")
	// ErrAgentUnreachable is transient and retried internally by the healer.
	ErrAgentUnreachable = errors.New("agent unreachable")
)

// ============================================================================
// Utility Functions
// ============================================================================

// Now returns the current time in milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// SortStrings sorts a string slice in place.
func SortStrings(ids []string) {
	sort.Strings(ids)
}
