package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/nagare-ai/nagare/internal/observability"
	"github.com/nagare-ai/nagare/internal/tracing"
	"github.com/nagare-ai/nagare/pkg/session"
)

// Entry is a single remembered item for a session.
type Entry struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Snapshot is the full memory of one session at a point in time.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager maintains per-session working memory alongside the transcript.
type Manager interface {
	// Load returns the session's snapshot, bootstrapping it from the
	// transcript on first touch.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// Save replaces the session's snapshot wholesale.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Append adds one entry to the session's memory.
	Append(ctx context.Context, sessionID string, entry Entry) error

	// Summarize renders a digest of the most recent entries.
	Summarize(ctx context.Context, sessionID string) (string, error)

	// Prune drops expired and over-cap entries, returning how many were
	// removed.
	Prune(ctx context.Context, sessionID string) (int, error)
}

const (
	// DefaultMaxEntries bounds entries retained per session.
	DefaultMaxEntries = 200

	// DefaultTTL is how long an entry stays live without a sweep.
	DefaultTTL = 24 * time.Hour

	// DefaultRecentN is how many entries Summarize digests.
	DefaultRecentN = 10
)

// Options tune an in-memory manager. Zero values fall back to defaults.
type Options struct {
	MaxEntries int
	TTL        time.Duration
	RecentN    int
}

// InMemoryManager is the reference Manager. Entries expire lazily on
// access; the oldest entries are trimmed once a session passes MaxEntries.
type InMemoryManager struct {
	sessions   session.Store
	snapshots  map[string]*Snapshot
	maxEntries int
	ttl        time.Duration
	recentN    int
	mu         sync.Mutex
}

// NewInMemoryManager builds a manager that bootstraps from the given
// session store. The store may be nil, in which case first touch starts
// from an empty snapshot.
func NewInMemoryManager(sessions session.Store, opts Options) *InMemoryManager {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RecentN <= 0 {
		opts.RecentN = DefaultRecentN
	}

	return &InMemoryManager{
		sessions:   sessions,
		snapshots:  make(map[string]*Snapshot),
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		recentN:    opts.RecentN,
	}
}

// Load implements Manager.
func (m *InMemoryManager) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return cloneSnapshot(snap), nil
}

// Save implements Manager.
func (m *InMemoryManager) Save(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil || snapshot.SessionID == "" {
		return fmt.Errorf("snapshot must carry a session id")
	}

	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneSnapshot(snapshot)
	stored.UpdatedAt = time.Now()
	m.snapshots[snapshot.SessionID] = stored

	observability.RecordMemoryWrite(time.Since(start))
	m.publishSizeLocked()

	return nil
}

// Append implements Manager.
func (m *InMemoryManager) Append(ctx context.Context, sessionID string, entry Entry) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if entry.ID == "" {
		entry.ID = newEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return err
	}

	snap.Entries = append(snap.Entries, entry)
	snap.UpdatedAt = time.Now()
	m.trimLocked(snap)

	observability.RecordMemoryWrite(time.Since(start))
	m.publishSizeLocked()

	return nil
}

// Summarize implements Manager. The digest is one "type: content" line per
// entry, oldest first, over the most recent entries.
func (m *InMemoryManager) Summarize(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.loadLocked(ctx, sessionID)
	if err != nil {
		return "", err
	}

	entries := snap.Entries
	if len(entries) > m.recentN {
		entries = entries[len(entries)-m.recentN:]
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Type+": "+entry.Content)
	}
	return strings.Join(lines, "\n"), nil
}

// Prune implements Manager.
func (m *InMemoryManager) Prune(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("session id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[sessionID]
	if !ok {
		return 0, nil
	}

	before := len(snap.Entries)
	m.trimLocked(snap)
	removed := before - len(snap.Entries)

	if len(snap.Entries) == 0 {
		delete(m.snapshots, sessionID)
	}
	m.publishSizeLocked()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	if removed > 0 {
		logger.Debug().Str("session_id", sessionID).Int("removed", removed).Msg("Memory pruned")
	}

	return removed, nil
}

// Sessions returns the ids of all sessions with live snapshots, sorted.
func (m *InMemoryManager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// loadLocked fetches or bootstraps the live snapshot and applies lazy
// expiry. Callers hold m.mu.
func (m *InMemoryManager) loadLocked(ctx context.Context, sessionID string) (*Snapshot, error) {
	snap, ok := m.snapshots[sessionID]
	if !ok {
		bootstrapped, err := m.bootstrap(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		snap = bootstrapped
		m.snapshots[sessionID] = snap
	}

	m.trimLocked(snap)
	return snap, nil
}

// bootstrap seeds a snapshot from the session transcript.
func (m *InMemoryManager) bootstrap(ctx context.Context, sessionID string) (*Snapshot, error) {
	snap := &Snapshot{SessionID: sessionID, UpdatedAt: time.Now()}
	if m.sessions == nil {
		return snap, nil
	}

	state, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap memory for %s: %w", sessionID, err)
	}
	if state == nil {
		return snap, nil
	}

	for _, msg := range state.Messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		snap.Entries = append(snap.Entries, Entry{
			ID:        newEntryID(),
			Type:      string(msg.Role),
			Content:   text,
			CreatedAt: msg.CreatedAt,
		})
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("session_id", sessionID).
		Int("entries", len(snap.Entries)).
		Msg("Memory bootstrapped from transcript")

	return snap, nil
}

// trimLocked drops expired entries, then the oldest past the cap.
func (m *InMemoryManager) trimLocked(snap *Snapshot) {
	cutoff := time.Now().Add(-m.ttl)

	live := snap.Entries[:0]
	for _, entry := range snap.Entries {
		if entry.CreatedAt.After(cutoff) {
			live = append(live, entry)
		}
	}
	snap.Entries = live

	if len(snap.Entries) > m.maxEntries {
		snap.Entries = snap.Entries[len(snap.Entries)-m.maxEntries:]
	}
}

func (m *InMemoryManager) publishSizeLocked() {
	total := 0
	for _, snap := range m.snapshots {
		total += len(snap.Entries)
	}
	observability.SetMemoryEntries(total)
}

func newEntryID() string {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
	if err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return "mem_" + id
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	out := &Snapshot{
		SessionID: snap.SessionID,
		Entries:   make([]Entry, len(snap.Entries)),
		UpdatedAt: snap.UpdatedAt,
	}
	copy(out.Entries, snap.Entries)
	return out
}
