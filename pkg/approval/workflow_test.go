package approval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Request(t *testing.T) {
	ctx := context.Background()

	t.Run("should open a pending request", func(t *testing.T) {
		wf := New(0)

		req, err := wf.Request(ctx, Input{SessionID: "sess-1", AgentName: "helper", Reason: "low confidence"})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, req.Status)
		assert.NotEmpty(t, req.ID)
		assert.False(t, req.RequestedAt.IsZero())

		got := wf.Get(req.ID)
		require.NotNil(t, got)
		assert.Equal(t, req.ID, got.ID)
	})

	t.Run("should require a session id and a reason", func(t *testing.T) {
		wf := New(0)

		_, err := wf.Request(ctx, Input{Reason: "r"})
		assert.Error(t, err)

		_, err = wf.Request(ctx, Input{SessionID: "sess-1"})
		assert.Error(t, err)
	})

	t.Run("should evict the oldest request at capacity", func(t *testing.T) {
		wf := New(2)

		first, err := wf.Request(ctx, Input{SessionID: "sess-1", Reason: "r1"})
		require.NoError(t, err)
		_, err = wf.Request(ctx, Input{SessionID: "sess-2", Reason: "r2"})
		require.NoError(t, err)
		_, err = wf.Request(ctx, Input{SessionID: "sess-3", Reason: "r3"})
		require.NoError(t, err)

		assert.Nil(t, wf.Get(first.ID))
		assert.Len(t, wf.ListPending(Filter{}), 2)
	})

	t.Run("should evict resolved requests too", func(t *testing.T) {
		wf := New(2)

		first, err := wf.Request(ctx, Input{SessionID: "sess-1", Reason: "r1"})
		require.NoError(t, err)
		_, err = wf.Approve(ctx, first.ID, "reviewer", "")
		require.NoError(t, err)

		_, err = wf.Request(ctx, Input{SessionID: "sess-2", Reason: "r2"})
		require.NoError(t, err)
		_, err = wf.Request(ctx, Input{SessionID: "sess-3", Reason: "r3"})
		require.NoError(t, err)

		assert.Nil(t, wf.Get(first.ID))
	})
}

func TestWorkflow_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("should approve a pending request", func(t *testing.T) {
		wf := New(0)
		req, err := wf.Request(ctx, Input{SessionID: "sess-1", Reason: "r"})
		require.NoError(t, err)

		resolved, err := wf.Approve(ctx, req.ID, "ops", "fine")
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, resolved.Status)
		assert.Equal(t, "ops", resolved.Reviewer)
		assert.False(t, resolved.ResolvedAt.IsZero())
	})

	t.Run("should reject a pending request", func(t *testing.T) {
		wf := New(0)
		req, err := wf.Request(ctx, Input{SessionID: "sess-1", Reason: "r"})
		require.NoError(t, err)

		resolved, err := wf.Reject(ctx, req.ID, "ops", "not fine")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, resolved.Status)
		assert.Equal(t, "not fine", resolved.Notes)
	})

	t.Run("should refuse to re-resolve a terminal request", func(t *testing.T) {
		wf := New(0)
		req, err := wf.Request(ctx, Input{SessionID: "sess-1", Reason: "r"})
		require.NoError(t, err)

		_, err = wf.Approve(ctx, req.ID, "ops", "")
		require.NoError(t, err)

		_, err = wf.Reject(ctx, req.ID, "ops", "")
		var already *AlreadyResolvedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, StatusApproved, already.Status)
	})

	t.Run("should report unknown ids", func(t *testing.T) {
		wf := New(0)

		_, err := wf.Approve(ctx, "missing", "ops", "")
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.ID)
	})
}

func TestWorkflow_ToolCallLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("should resolve status by tool call id", func(t *testing.T) {
		wf := New(0)
		req, err := wf.Request(ctx, Input{SessionID: "sess-1", Reason: "r", ToolCallID: "call-1"})
		require.NoError(t, err)

		status, ok := wf.StatusFor("call-1")
		require.True(t, ok)
		assert.Equal(t, StatusPending, status)
		assert.False(t, wf.IsApproved("call-1"))

		_, err = wf.Approve(ctx, req.ID, "ops", "")
		require.NoError(t, err)
		assert.True(t, wf.IsApproved("call-1"))
	})

	t.Run("should report unknown tool call ids", func(t *testing.T) {
		wf := New(0)

		_, ok := wf.StatusFor("missing")
		assert.False(t, ok)
		assert.False(t, wf.IsApproved("missing"))
	})
}

func TestWorkflow_ListPending(t *testing.T) {
	ctx := context.Background()

	wf := New(0)
	for i := 0; i < 3; i++ {
		_, err := wf.Request(ctx, Input{
			SessionID: fmt.Sprintf("sess-%d", i),
			AgentName: "helper",
			TenantID:  "tenant-a",
			Reason:    "r",
		})
		require.NoError(t, err)
	}
	other, err := wf.Request(ctx, Input{SessionID: "sess-x", AgentName: "other", TenantID: "tenant-b", Reason: "r"})
	require.NoError(t, err)
	_, err = wf.Approve(ctx, other.ID, "ops", "")
	require.NoError(t, err)

	t.Run("should exclude resolved requests", func(t *testing.T) {
		assert.Len(t, wf.ListPending(Filter{}), 3)
	})

	t.Run("should filter by agent and tenant", func(t *testing.T) {
		assert.Len(t, wf.ListPending(Filter{AgentName: "helper"}), 3)
		assert.Len(t, wf.ListPending(Filter{TenantID: "tenant-b"}), 0)
		assert.Len(t, wf.ListPending(Filter{SessionID: "sess-1"}), 1)
	})

	t.Run("should return oldest first", func(t *testing.T) {
		pending := wf.ListPending(Filter{})
		require.Len(t, pending, 3)
		assert.Equal(t, "sess-0", pending[0].SessionID)
		assert.Equal(t, "sess-2", pending[2].SessionID)
	})
}
