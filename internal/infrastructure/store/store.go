// Package store provides durable SQLite persistence for sessions, task
// metrics, health snapshots, proposals, and healing actions.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/superdisco-agents/moai-flow-sub005/internal/config"
)

// Store is the engine's state store. Writes go through transactions so a
// crash mid-write never leaves a half-updated record; WAL journaling gives
// readers snapshot isolation against the single writer per session.
type Store struct {
	db *sql.DB

	// Per-agent timestamp watermarks enforcing monotonically increasing
	// append order per agent_id (unordered across agents).
	mu     sync.Mutex
	lastTS map[string]int64
}

// New opens (creating if needed) the SQLite database at cfg.Path.
func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL for concurrent read/write access; busy_timeout so writers retry
	// instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db, lastTS: make(map[string]int64)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewInMemory opens an in-memory store, used by tests.
func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db, lastTS: make(map[string]int64)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id          TEXT PRIMARY KEY,
			topology            TEXT NOT NULL,
			consensus_algorithm TEXT NOT NULL,
			created_at          INTEGER NOT NULL,
			closed_at           INTEGER,
			status              TEXT NOT NULL,
			failure_reason      TEXT,
			agent_ids           TEXT NOT NULL,
			graph               TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS task_metrics (
			task_id     TEXT NOT NULL,
			session_id  TEXT NOT NULL REFERENCES sessions(session_id),
			agent_id    TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			result      TEXT NOT NULL,
			ts          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_session ON task_metrics(session_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_agent ON task_metrics(session_id, agent_id, ts)`,
		`CREATE TABLE IF NOT EXISTS health_snapshots (
			session_id TEXT NOT NULL REFERENCES sessions(session_id),
			agent_id   TEXT NOT NULL,
			ts         INTEGER NOT NULL,
			reachable  INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_agent ON health_snapshots(session_id, agent_id, ts)`,
		`CREATE TABLE IF NOT EXISTS healing_actions (
			action_id   TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL REFERENCES sessions(session_id),
			agent_id    TEXT,
			trigger     TEXT NOT NULL,
			action_kind TEXT NOT NULL,
			applied_at  INTEGER NOT NULL,
			success     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS proposals (
			proposal_id TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL REFERENCES sessions(session_id),
			text        TEXT NOT NULL,
			algorithm   TEXT NOT NULL,
			deadline    INTEGER NOT NULL,
			votes       TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			decided_at  INTEGER
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// nextTimestamp bumps ts if it would violate the per-agent ordering
// invariant: appends are ordered per agent_id.
func (s *Store) nextTimestamp(sessionID, agentID string, ts int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionID + "/" + agentID
	if ts <= s.lastTS[key] {
		ts = s.lastTS[key] + 1
	}
	s.lastTS[key] = ts
	return ts
}
