package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteStore is a durable Store backed by SQLite. Messages, steps and
// metadata are stored as JSON columns; the write path runs inside a
// transaction so append order survives crashes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed session store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers unblocked during appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("SQLite session store initialized")

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	agent_name      TEXT NOT NULL,
	agent_version   TEXT NOT NULL,
	tenant_id       TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	iterations      INTEGER NOT NULL DEFAULT 0,
	last_confidence REAL NOT NULL DEFAULT 0,
	metadata        TEXT NOT NULL DEFAULT '{}',
	messages        TEXT NOT NULL DEFAULT '[]',
	steps           TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_name, updated_at);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id, updated_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the session state, or (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*State, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, agent_name, agent_version, tenant_id, status,
       iterations, last_confidence, metadata, messages, steps,
       created_at, updated_at
FROM sessions WHERE session_id = ?`, sessionID)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return state, err
}

// Create inserts a new session row.
func (s *SQLiteStore) Create(ctx context.Context, state *State) (*State, error) {
	if state.SessionID == "" {
		return nil, errEmptySessionID
	}

	now := time.Now()
	stored := cloneState(state)
	if stored.Status == "" {
		stored.Status = StatusRunning
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	metadata, messages, steps, err := marshalColumns(stored)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (session_id, agent_name, agent_version, tenant_id, status,
	iterations, last_confidence, metadata, messages, steps, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.SessionID, stored.AgentName, stored.AgentVersion, stored.TenantID,
		string(stored.Status), stored.Iterations, stored.LastConfidence,
		metadata, messages, steps, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return stored, nil
}

// AppendMessage appends a message inside a transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return s.mutate(ctx, sessionID, func(state *State) error {
		state.Messages = append(state.Messages, msg)
		return nil
	})
}

// AppendStep appends a trace step inside a transaction.
func (s *SQLiteStore) AppendStep(ctx context.Context, sessionID string, step Step) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}
	return s.mutate(ctx, sessionID, func(state *State) error {
		state.Steps = append(state.Steps, step)
		return nil
	})
}

// Update applies a partial update, enforcing one-way status transitions.
func (s *SQLiteStore) Update(ctx context.Context, sessionID string, update Update) (*State, error) {
	var out *State
	err := s.mutate(ctx, sessionID, func(state *State) error {
		if update.Status != nil {
			if err := Transition(state.Status, *update.Status); err != nil {
				return err
			}
			state.Status = *update.Status
		}
		if update.Iterations != nil {
			state.Iterations = *update.Iterations
		}
		if update.LastConfidence != nil {
			state.LastConfidence = *update.LastConfidence
		}
		for k, v := range update.Metadata {
			if state.Metadata == nil {
				state.Metadata = make(map[string]interface{})
			}
			state.Metadata[k] = v
		}
		out = cloneState(state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a session row. Unknown ids are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListByAgent returns sessions for an agent, most recently updated first.
func (s *SQLiteStore) ListByAgent(ctx context.Context, agentName string) ([]*State, error) {
	return s.listWhere(ctx, "agent_name = ?", agentName)
}

// ListByTenant returns sessions for a tenant, most recently updated first.
func (s *SQLiteStore) ListByTenant(ctx context.Context, tenantID string) ([]*State, error) {
	return s.listWhere(ctx, "tenant_id = ?", tenantID)
}

func (s *SQLiteStore) listWhere(ctx context.Context, where string, arg interface{}) ([]*State, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, agent_name, agent_version, tenant_id, status,
       iterations, last_confidence, metadata, messages, steps,
       created_at, updated_at
FROM sessions WHERE `+where+` ORDER BY updated_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*State
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// mutate runs a read-modify-write of one session row in a transaction.
func (s *SQLiteStore) mutate(ctx context.Context, sessionID string, fn func(*State) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
SELECT session_id, agent_name, agent_version, tenant_id, status,
       iterations, last_confidence, metadata, messages, steps,
       created_at, updated_at
FROM sessions WHERE session_id = ?`, sessionID)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return errUnknownSession(sessionID)
	}
	if err != nil {
		return err
	}

	state.UpdatedAt = time.Now()
	if err := fn(state); err != nil {
		return err
	}

	metadata, messages, steps, err := marshalColumns(state)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE sessions SET status = ?, iterations = ?, last_confidence = ?,
	metadata = ?, messages = ?, steps = ?, updated_at = ?
WHERE session_id = ?`,
		string(state.Status), state.Iterations, state.LastConfidence,
		metadata, messages, steps, state.UpdatedAt, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*State, error) {
	var state State
	var status, metadata, messages, steps string

	err := row.Scan(&state.SessionID, &state.AgentName, &state.AgentVersion,
		&state.TenantID, &status, &state.Iterations, &state.LastConfidence,
		&metadata, &messages, &steps, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}

	state.Status = Status(status)
	if err := json.Unmarshal([]byte(metadata), &state.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &state.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &state.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	return &state, nil
}

func marshalColumns(state *State) (metadata, messages, steps string, err error) {
	md := state.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	mdBytes, err := json.Marshal(md)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	msgs := state.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	msgBytes, err := json.Marshal(msgs)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode messages: %w", err)
	}

	sts := state.Steps
	if sts == nil {
		sts = []Step{}
	}
	stepBytes, err := json.Marshal(sts)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode steps: %w", err)
	}

	return string(mdBytes), string(msgBytes), string(stepBytes), nil
}
