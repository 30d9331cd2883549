package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(MemStoreConfig{})

	t.Run("should create with running status by default", func(t *testing.T) {
		state, err := store.Create(ctx, &State{SessionID: "s1", AgentName: "support"})
		require.NoError(t, err)
		assert.Equal(t, StatusRunning, state.Status)
		assert.False(t, state.CreatedAt.IsZero())
	})

	t.Run("should return nil for unknown session", func(t *testing.T) {
		state, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("should reject empty session id", func(t *testing.T) {
		_, err := store.Create(ctx, &State{})
		assert.Error(t, err)
	})

	t.Run("should return copies not shared state", func(t *testing.T) {
		a, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		a.AgentName = "mutated"

		b, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "support", b.AgentName)
	})
}

func TestMemStoreEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(MemStoreConfig{MaxSessions: 2})

	_, err := store.Create(ctx, &State{SessionID: "s1", AgentName: "a"})
	require.NoError(t, err)
	_, err = store.Create(ctx, &State{SessionID: "s2", AgentName: "a"})
	require.NoError(t, err)

	// Touch s1 so s2 becomes the least recently updated.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.AppendMessage(ctx, "s1", TextMessage(RoleUser, "hi")))

	time.Sleep(2 * time.Millisecond)
	_, err = store.Create(ctx, &State{SessionID: "s3", AgentName: "a"})
	require.NoError(t, err)

	evicted, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, evicted)

	kept, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMemStoreMessageTrim(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(MemStoreConfig{MaxMessagesPerSession: 3})

	_, err := store.Create(ctx, &State{SessionID: "s1", AgentName: "a"})
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, store.AppendMessage(ctx, "s1", TextMessage(RoleUser, text)))
	}

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "three", state.Messages[0].Text())
	assert.Equal(t, "five", state.Messages[2].Text())
}

func TestMemStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(MemStoreConfig{})

	_, err := store.Create(ctx, &State{SessionID: "s1", AgentName: "a"})
	require.NoError(t, err)

	t.Run("should apply status and confidence", func(t *testing.T) {
		completed := StatusCompleted
		conf := 0.9
		state, err := store.Update(ctx, "s1", Update{Status: &completed, LastConfidence: &conf})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, state.Status)
		assert.InDelta(t, 0.9, state.LastConfidence, 1e-9)
	})

	t.Run("should reject terminal to terminal transitions", func(t *testing.T) {
		failed := StatusFailed
		_, err := store.Update(ctx, "s1", Update{Status: &failed})
		assert.Error(t, err)
	})

	t.Run("should allow reopening a terminal session", func(t *testing.T) {
		running := StatusRunning
		state, err := store.Update(ctx, "s1", Update{Status: &running})
		require.NoError(t, err)
		assert.Equal(t, StatusRunning, state.Status)
	})

	t.Run("should fail for unknown session", func(t *testing.T) {
		_, err := store.Update(ctx, "missing", Update{})
		assert.ErrorIs(t, err, ErrUnknownSession)
	})
}

func TestMemStoreLists(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(MemStoreConfig{})

	_, err := store.Create(ctx, &State{SessionID: "s1", AgentName: "a", TenantID: "t1"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.Create(ctx, &State{SessionID: "s2", AgentName: "a", TenantID: "t2"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.Create(ctx, &State{SessionID: "s3", AgentName: "b", TenantID: "t1"})
	require.NoError(t, err)

	t.Run("should list by agent most recently updated first", func(t *testing.T) {
		out, err := store.ListByAgent(ctx, "a")
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "s2", out[0].SessionID)
		assert.Equal(t, "s1", out[1].SessionID)
	})

	t.Run("should list by tenant", func(t *testing.T) {
		out, err := store.ListByTenant(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "s3", out[0].SessionID)
	})
}

func TestTransition(t *testing.T) {
	t.Run("should allow running to any state", func(t *testing.T) {
		for _, to := range []Status{StatusCompleted, StatusEscalated, StatusFailed, StatusRunning} {
			assert.NoError(t, Transition(StatusRunning, to))
		}
	})

	t.Run("should reject crossing between terminal states", func(t *testing.T) {
		assert.Error(t, Transition(StatusCompleted, StatusFailed))
		assert.Error(t, Transition(StatusEscalated, StatusCompleted))
		assert.Error(t, Transition(StatusFailed, StatusEscalated))
	})

	t.Run("should allow the reopen edge back to running", func(t *testing.T) {
		for _, from := range []Status{StatusCompleted, StatusEscalated, StatusFailed} {
			assert.NoError(t, Transition(from, StatusRunning))
		}
	})

	t.Run("should reject unknown target", func(t *testing.T) {
		assert.Error(t, Transition(StatusRunning, Status("paused")))
	})
}

func TestMessageHelpers(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Parts: []ContentPart{
			{Type: PartText, Text: "Looking that up. "},
			{Type: PartToolCall, ToolCallID: "c1", ToolName: "search_docs"},
			{Type: PartText, Text: "One moment."},
		},
	}

	assert.Equal(t, "Looking that up. One moment.", msg.Text())
	require.Len(t, msg.ToolCalls(), 1)
	assert.Equal(t, "search_docs", msg.ToolCalls()[0].ToolName)
}
