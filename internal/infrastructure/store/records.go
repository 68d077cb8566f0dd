package store

import (
	"context"
	"fmt"

	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// AppendMetric appends a task metric. The stored timestamp is bumped when
// needed so appends stay strictly increasing per agent.
func (s *Store) AppendMetric(ctx context.Context, m shared.TaskMetric) error {
	m.Timestamp = s.nextTimestamp(m.SessionID, m.AgentID, m.Timestamp)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_metrics (task_id, session_id, agent_id, duration_ms, result, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.TaskID, m.SessionID, m.AgentID, m.DurationMs, string(m.Result), m.Timestamp)
	if err != nil {
		return fmt.Errorf("append metric: %w", err)
	}
	return nil
}

// AppendHealth appends a health snapshot, subject to the same per-agent
// ordering as metrics.
func (s *Store) AppendHealth(ctx context.Context, h shared.HealthSnapshot) error {
	h.Timestamp = s.nextTimestamp(h.SessionID, h.AgentID, h.Timestamp)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_snapshots (session_id, agent_id, ts, reachable, latency_ms)
		VALUES (?, ?, ?, ?, ?)
	`, h.SessionID, h.AgentID, h.Timestamp, boolToInt(h.Reachable), h.LatencyMs)
	if err != nil {
		return fmt.Errorf("append health: %w", err)
	}
	return nil
}

// AppendHealingAction appends an immutable healing audit record.
func (s *Store) AppendHealingAction(ctx context.Context, a shared.HealingAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO healing_actions (action_id, session_id, agent_id, trigger, action_kind, applied_at, success)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.SessionID, nullableString(a.AgentID), a.Trigger, string(a.Kind), a.AppliedAt, boolToInt(a.Success))
	if err != nil {
		return fmt.Errorf("append healing action: %w", err)
	}
	return nil
}

// QueryRecentMetrics returns the most recent limit metrics for a session,
// newest first.
func (s *Store) QueryRecentMetrics(ctx context.Context, sessionID string, limit int) ([]shared.TaskMetric, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, session_id, agent_id, duration_ms, result, ts
		FROM task_metrics
		WHERE session_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]shared.TaskMetric, 0, limit)
	for rows.Next() {
		var m shared.TaskMetric
		if err := rows.Scan(&m.TaskID, &m.SessionID, &m.AgentID, &m.DurationMs, &m.Result, &m.Timestamp); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// QueryHealingActions returns a session's healing actions, oldest first.
func (s *Store) QueryHealingActions(ctx context.Context, sessionID string) ([]shared.HealingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, session_id, COALESCE(agent_id, ''), trigger, action_kind, applied_at, success
		FROM healing_actions
		WHERE session_id = ?
		ORDER BY applied_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query healing actions: %w", err)
	}
	defer rows.Close()

	actions := make([]shared.HealingAction, 0)
	for rows.Next() {
		var (
			a       shared.HealingAction
			success int
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.AgentID, &a.Trigger, &a.Kind, &a.AppliedAt, &success); err != nil {
			return nil, err
		}
		a.Success = success != 0
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// PruneBefore deletes task metrics and health snapshots older than cutoff.
// This is the only path that ever removes appended records.
func (s *Store) PruneBefore(ctx context.Context, cutoffMs int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var pruned int64
	res, err := tx.ExecContext(ctx, `DELETE FROM task_metrics WHERE ts < ?`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("prune metrics: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += n
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM health_snapshots WHERE ts < ?`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("prune health snapshots: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return pruned, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
