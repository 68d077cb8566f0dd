package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// SaveSession upserts a session record and its current topology graph in a
// single transaction.
func (s *Store) SaveSession(ctx context.Context, session *shared.SwarmSession, graph *shared.TopologyGraph) error {
	agentIDs, err := json.Marshal(session.AgentIDs)
	if err != nil {
		return fmt.Errorf("marshal agent ids: %w", err)
	}

	var graphJSON []byte
	if graph != nil {
		graphJSON, err = json.Marshal(graph)
		if err != nil {
			return fmt.Errorf("marshal graph: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, topology, consensus_algorithm, created_at, closed_at, status, failure_reason, agent_ids, graph)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			topology = excluded.topology,
			closed_at = excluded.closed_at,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			agent_ids = excluded.agent_ids,
			graph = excluded.graph
	`,
		session.ID,
		string(session.Topology),
		string(session.Algorithm),
		session.CreatedAt,
		nullableInt64(session.ClosedAt),
		string(session.Status),
		nullableString(session.FailureReason),
		string(agentIDs),
		nullableString(string(graphJSON)),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return tx.Commit()
}

// LoadSession loads a session record and its persisted graph.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*shared.SwarmSession, *shared.TopologyGraph, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, topology, consensus_algorithm, created_at, closed_at, status, failure_reason, agent_ids, graph
		FROM sessions WHERE session_id = ?
	`, sessionID)

	var (
		session    shared.SwarmSession
		closedAt   sql.NullInt64
		failReason sql.NullString
		agentIDs   string
		graphJSON  sql.NullString
	)
	err := row.Scan(&session.ID, &session.Topology, &session.Algorithm, &session.CreatedAt,
		&closedAt, &session.Status, &failReason, &agentIDs, &graphJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	session.ClosedAt = closedAt.Int64
	session.FailureReason = failReason.String
	if err := json.Unmarshal([]byte(agentIDs), &session.AgentIDs); err != nil {
		return nil, nil, fmt.Errorf("unmarshal agent ids: %w", err)
	}

	var graph *shared.TopologyGraph
	if graphJSON.Valid && graphJSON.String != "" {
		graph = &shared.TopologyGraph{}
		if err := json.Unmarshal([]byte(graphJSON.String), graph); err != nil {
			return nil, nil, fmt.Errorf("unmarshal graph: %w", err)
		}
	}

	return &session, graph, nil
}

// SaveProposal upserts a proposal record.
func (s *Store) SaveProposal(ctx context.Context, p *shared.ConsensusProposal) error {
	votes, err := json.Marshal(p.Votes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proposals (proposal_id, session_id, text, algorithm, deadline, votes, outcome, created_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(proposal_id) DO UPDATE SET
			votes = excluded.votes,
			outcome = excluded.outcome,
			decided_at = excluded.decided_at
	`, p.ID, p.SessionID, p.Text, string(p.Algorithm), p.Deadline, string(votes),
		string(p.Outcome), p.CreatedAt, nullableInt64(p.DecidedAt))
	if err != nil {
		return fmt.Errorf("save proposal: %w", err)
	}
	return nil
}

// LoadProposal loads a proposal by id.
func (s *Store) LoadProposal(ctx context.Context, proposalID string) (*shared.ConsensusProposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT proposal_id, session_id, text, algorithm, deadline, votes, outcome, created_at, decided_at
		FROM proposals WHERE proposal_id = ?
	`, proposalID)

	var (
		p         shared.ConsensusProposal
		votes     string
		decidedAt sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.SessionID, &p.Text, &p.Algorithm, &p.Deadline, &votes, &p.Outcome, &p.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s not found", proposalID)
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}

	p.DecidedAt = decidedAt.Int64
	if err := json.Unmarshal([]byte(votes), &p.Votes); err != nil {
		return nil, fmt.Errorf("unmarshal votes: %w", err)
	}
	return &p, nil
}

func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
