package agent

import (
	"github.com/nagare-ai/nagare/pkg/session"
	"github.com/nagare-ai/nagare/pkg/toolexec"
)

// Lifecycle event names emitted during a run.
const (
	EventSessionCreated    = "session.created"
	EventSessionUpdated    = "session.updated"
	EventIterationStarted  = "iteration.started"
	EventToolCompleted     = "tool.completed"
	EventCompleted         = "completed"
	EventEscalated         = "escalated"
	EventFailed            = "failed"
	EventApprovalRequested = "approval_requested"
)

// Finish reasons reported on a run result.
const (
	FinishFinalAnswer   = "final_answer"
	FinishMaxIterations = "max_iterations"
)

// EmitFunc receives lifecycle events. Implementations must not block.
type EmitFunc func(event string, payload map[string]interface{})

// RunRequest is one orchestrated run against an agent.
type RunRequest struct {
	AgentName      string                 `json:"agent_name"`
	AgentVersion   string                 `json:"agent_version,omitempty"`
	SessionID      string                 `json:"session_id"`
	TenantID       string                 `json:"tenant_id,omitempty"`
	ActorID        string                 `json:"actor_id,omitempty"`
	Input          string                 `json:"input"`
	PromptOverride string                 `json:"prompt_override,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Emit           EmitFunc               `json:"-"`
}

// TokenUsage tracks token consumption summed over a run's model calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RunResult is the outcome of one run.
type RunResult struct {
	Session            *session.State         `json:"session"`
	Response           session.Message        `json:"response"`
	OutputText         string                 `json:"output_text"`
	Confidence         float64                `json:"confidence"`
	Iterations         int                    `json:"iterations"`
	RequiresEscalation bool                   `json:"requires_escalation"`
	ApprovalRequestID  string                 `json:"approval_request_id,omitempty"`
	FinishReason       string                 `json:"finish_reason"`
	ToolInvocations    []*toolexec.Invocation `json:"tool_invocations"`
	Usage              TokenUsage             `json:"usage"`
}
