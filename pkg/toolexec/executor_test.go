package toolexec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "Echo input",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return args["text"], nil
		},
	}
}

func TestExecutor_Register(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))
		assert.True(t, exec.Has("echo"))
		assert.Contains(t, exec.Names(), "echo")
	})

	t.Run("should reject invalid definitions", func(t *testing.T) {
		exec := New()

		tests := []struct {
			name string
			tool Tool
		}{
			{"empty name", Tool{Description: "d", Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil }}},
			{"empty description", Tool{Name: "t", Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil }}},
			{"nil handler", Tool{Name: "t", Description: "d"}},
			{"bad parameter type", Tool{
				Name:        "t",
				Description: "d",
				Parameters:  []Parameter{{Name: "p", Type: "decimal"}},
				Handler:     func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil },
			}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Error(t, exec.Register(tt.tool))
			})
		}
	})
}

func TestExecutor_ExposedTools(t *testing.T) {
	exec := New()
	require.NoError(t, exec.Register(echoTool()))

	t.Run("should keep allowed order and skip unknown names", func(t *testing.T) {
		exposed := exec.ExposedTools([]string{"missing", "echo"})
		require.Len(t, exposed, 1)
		assert.Equal(t, "echo", exposed[0].Name)
		assert.Equal(t, "Echo input", exposed[0].Description)
	})
}

func TestExecutor_Execute(t *testing.T) {
	t.Run("should execute a tool and record the invocation", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))

		inv, result, err := exec.Execute(context.Background(), "echo", map[string]interface{}{"text": "hello"}, nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "hello", result.Output)

		require.NotNil(t, inv)
		assert.Equal(t, "echo", inv.Tool)
		assert.True(t, inv.Success)
		assert.False(t, inv.StartedAt.IsZero())
		assert.False(t, inv.CompletedAt.IsZero())
	})

	t.Run("should return a typed error for an unknown tool", func(t *testing.T) {
		exec := New()

		_, _, err := exec.Execute(context.Background(), "missing", nil, nil)
		var notRegistered *NotRegisteredError
		require.ErrorAs(t, err, &notRegistered)
		assert.Equal(t, "missing", notRegistered.Tool)
	})

	t.Run("should fold validation failures into a failed result", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(echoTool()))

		inv, result, err := exec.Execute(context.Background(), "echo", map[string]interface{}{}, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "validation")
		assert.False(t, inv.Success)
		assert.NotEmpty(t, inv.Error)
	})

	t.Run("should fold handler errors into a failed result", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(Tool{
			Name:        "boom",
			Description: "Always fails",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, errors.New("boom failed")
			},
		}))

		inv, result, err := exec.Execute(context.Background(), "boom", nil, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "boom failed", result.Error)
		assert.False(t, inv.Success)
	})

	t.Run("should time out slow tools", func(t *testing.T) {
		exec := New()
		exec.SetAbortGrace(10 * time.Millisecond)
		require.NoError(t, exec.Register(Tool{
			Name:        "slow",
			Description: "Sleeps past the deadline",
			Timeout:     20 * time.Millisecond,
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				select {
				case <-time.After(5 * time.Second):
					return "done", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		}))

		start := time.Now()
		inv, result, err := exec.Execute(context.Background(), "slow", nil, nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "timed out")
		assert.False(t, inv.Success)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("should truncate oversized output", func(t *testing.T) {
		exec := New()
		exec.SetMaxOutputBytes(64)
		require.NoError(t, exec.Register(Tool{
			Name:        "big",
			Description: "Produces a large string",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return strings.Repeat("x", 500), nil
			},
		}))

		_, result, err := exec.Execute(context.Background(), "big", nil, nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.Truncated)
		assert.Contains(t, result.Output.(string), "[output truncated]")
	})

	t.Run("should enforce tool cooldown", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(Tool{
			Name:        "rate_limited",
			Description: "Once per interval",
			Cooldown:    time.Minute,
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return "ok", nil
			},
		}))

		_, first, err := exec.Execute(context.Background(), "rate_limited", nil, nil)
		require.NoError(t, err)
		assert.True(t, first.Success)

		_, second, err := exec.Execute(context.Background(), "rate_limited", nil, nil)
		require.NoError(t, err)
		assert.False(t, second.Success)
		assert.Contains(t, second.Error, "cooling down")
	})

	t.Run("should expose the execution context to handlers", func(t *testing.T) {
		exec := New()
		require.NoError(t, exec.Register(Tool{
			Name:        "who",
			Description: "Reports the calling session",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				execCtx := ExecContextFromContext(ctx)
				require.NotNil(t, execCtx)
				return execCtx.SessionID, nil
			},
		}))

		_, result, err := exec.Execute(context.Background(), "who", nil, &ExecutionContext{SessionID: "sess-1"})
		require.NoError(t, err)
		assert.Equal(t, "sess-1", result.Output)
	})
}

func TestContextWithExecContext(t *testing.T) {
	t.Run("should return nil when no context attached", func(t *testing.T) {
		assert.Nil(t, ExecContextFromContext(context.Background()))
	})

	t.Run("should round-trip the execution context", func(t *testing.T) {
		execCtx := &ExecutionContext{AgentID: "a", SessionID: "s"}
		ctx := ContextWithExecContext(context.Background(), execCtx)
		assert.Same(t, execCtx, ExecContextFromContext(ctx))
	})
}
