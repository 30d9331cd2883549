package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nagare-ai/nagare/internal/observability"
	"github.com/nagare-ai/nagare/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultMaxSessions           = 1000
	DefaultMaxMessagesPerSession = 500
	DefaultMaxStepsPerSession    = 500
)

// MemStoreConfig bounds the in-memory store.
type MemStoreConfig struct {
	MaxSessions           int
	MaxMessagesPerSession int
	MaxStepsPerSession    int
}

// MemStore is the bounded in-memory reference Store. At capacity the
// least-recently-updated session is evicted; per-session message and
// step slices are trimmed from the oldest end once over their cap.
// Intended for development and testing; durable callers use SQLiteStore
// or their own backend.
type MemStore struct {
	sessions map[string]*State
	config   MemStoreConfig
	mu       sync.RWMutex
}

// NewMemStore creates a bounded in-memory session store.
func NewMemStore(cfg MemStoreConfig) *MemStore {
	observability.EnsureRegistered()

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxMessagesPerSession <= 0 {
		cfg.MaxMessagesPerSession = DefaultMaxMessagesPerSession
	}
	if cfg.MaxStepsPerSession <= 0 {
		cfg.MaxStepsPerSession = DefaultMaxStepsPerSession
	}

	return &MemStore{
		sessions: make(map[string]*State),
		config:   cfg,
	}
}

// Get returns a copy of the session state, or (nil, nil) when absent.
func (s *MemStore) Get(ctx context.Context, sessionID string) (*State, error) {
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneState(state), nil
}

// Create stores a new session, evicting the least-recently-updated
// session when at capacity.
func (s *MemStore) Create(ctx context.Context, state *State) (*State, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"nagare.session",
		"session.create",
		attribute.String("session_id", state.SessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if state.SessionID == "" {
		err := errEmptySessionID
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[state.SessionID]; !exists && len(s.sessions) >= s.config.MaxSessions {
		s.evictOldestLocked()
	}

	s.sessions[state.SessionID] = stored
	observability.SetActiveSessions(len(s.sessions))

	logger.Info().Str("session_id", state.SessionID).Str("agent", state.AgentName).Msg("Session created")

	return cloneState(stored), nil
}

// AppendMessage appends a message, trimming the oldest past the cap.
func (s *MemStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return errUnknownSession(sessionID)
	}

	state.Messages = append(state.Messages, msg)
	if over := len(state.Messages) - s.config.MaxMessagesPerSession; over > 0 {
		state.Messages = state.Messages[over:]
	}
	state.UpdatedAt = time.Now()

	return nil
}

// AppendStep appends a trace step, trimming the oldest past the cap.
func (s *MemStore) AppendStep(ctx context.Context, sessionID string, step Step) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return errUnknownSession(sessionID)
	}

	state.Steps = append(state.Steps, step)
	if over := len(state.Steps) - s.config.MaxStepsPerSession; over > 0 {
		state.Steps = state.Steps[over:]
	}
	state.UpdatedAt = time.Now()

	return nil
}

// Update applies the partial update, enforcing one-way status
// transitions.
func (s *MemStore) Update(ctx context.Context, sessionID string, update Update) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, errUnknownSession(sessionID)
	}

	if update.Status != nil {
		if err := Transition(state.Status, *update.Status); err != nil {
			return nil, err
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
	state.UpdatedAt = time.Now()

	return cloneState(state), nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (s *MemStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	observability.SetActiveSessions(len(s.sessions))

	return nil
}

// ListByAgent returns sessions for an agent, most recently updated first.
func (s *MemStore) ListByAgent(ctx context.Context, agentName string) ([]*State, error) {
	return s.list(func(state *State) bool {
		return state.AgentName == agentName
	}), nil
}

// ListByTenant returns sessions for a tenant, most recently updated first.
func (s *MemStore) ListByTenant(ctx context.Context, tenantID string) ([]*State, error) {
	return s.list(func(state *State) bool {
		return state.TenantID == tenantID
	}), nil
}

func (s *MemStore) list(match func(*State) bool) []*State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*State
	for _, state := range s.sessions {
		if match(state) {
			out = append(out, cloneState(state))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// evictOldestLocked drops the least-recently-updated session. Caller
// holds the write lock.
func (s *MemStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time

	for id, state := range s.sessions {
		if oldestID == "" || state.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = state.UpdatedAt
		}
	}

	if oldestID != "" {
		delete(s.sessions, oldestID)
		log.Warn().Str("session_id", oldestID).Msg("Session evicted at capacity")
	}
}

func cloneState(state *State) *State {
	out := *state
	out.Messages = append([]Message(nil), state.Messages...)
	out.Steps = append([]Step(nil), state.Steps...)
	if state.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(state.Metadata))
		for k, v := range state.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
