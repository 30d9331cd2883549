package toolexec

import (
	"context"
	"time"
)

// EmitFunc receives progress events from a tool execution.
type EmitFunc func(event string, payload map[string]interface{})

// ExecutionContext provides runtime information for tool execution.
type ExecutionContext struct {
	AgentID   string
	SessionID string
	TenantID  string
	ActorID   string
	Timeout   time.Duration
	Metadata  map[string]interface{}
	Emit      EmitFunc
}

type execContextKey struct{}

// ContextWithExecContext attaches the execution context to a
// context.Context for tool handlers.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context from a
// context.Context. Returns nil when none is attached.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(execContextKey{}); v != nil {
		if execCtx, ok := v.(*ExecutionContext); ok {
			return execCtx
		}
	}
	return nil
}
