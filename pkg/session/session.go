package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies one structured content part within a message.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// ContentPart is one typed unit of message content.
type ContentPart struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Output     string          `json:"output,omitempty"`
}

// Message is a single conversation turn with structured content.
type Message struct {
	Role      Role                   `json:"role"`
	Parts     []ContentPart          `json:"parts"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// TextMessage builds a message with a single text part.
func TextMessage(role Role, text string) Message {
	return Message{
		Role:      role,
		Parts:     []ContentPart{{Type: PartText, Text: text}},
		CreatedAt: time.Now(),
	}
}

// Text concatenates the text parts of a message.
func (m Message) Text() string {
	var b strings.Builder
	for _, part := range m.Parts {
		if part.Type == PartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool-call parts of a message in order.
func (m Message) ToolCalls() []ContentPart {
	var calls []ContentPart
	for _, part := range m.Parts {
		if part.Type == PartToolCall {
			calls = append(calls, part)
		}
	}
	return calls
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusEscalated Status = "escalated"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusEscalated || s == StatusFailed
}

// Transition validates a status change. Within a run transitions are
// one-way: running may move to any state and a terminal state stays put.
// The single re-entry edge is terminal -> running, taken when a later
// run resumes the same session.
func Transition(from, to Status) error {
	if from == to {
		return nil
	}
	switch to {
	case StatusRunning:
		return nil
	case StatusCompleted, StatusEscalated, StatusFailed:
		if from.Terminal() {
			return fmt.Errorf("invalid status transition: %s -> %s", from, to)
		}
		return nil
	default:
		return fmt.Errorf("unknown status: %s", to)
	}
}

// StepType identifies an auditable step in a session trace.
type StepType string

const (
	StepIteration  StepType = "iteration"
	StepToolCall   StepType = "tool_call"
	StepEscalation StepType = "escalation"
)

// Step is one auditable entry in the session trace.
type Step struct {
	Type      StepType               `json:"type"`
	Name      string                 `json:"name,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// State is the durable conversational state for one session.
type State struct {
	SessionID      string                 `json:"session_id"`
	AgentName      string                 `json:"agent_name"`
	AgentVersion   string                 `json:"agent_version"`
	TenantID       string                 `json:"tenant_id,omitempty"`
	Status         Status                 `json:"status"`
	Messages       []Message              `json:"messages"`
	Steps          []Step                 `json:"steps,omitempty"`
	Iterations     int                    `json:"iterations"`
	LastConfidence float64                `json:"last_confidence"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Update mutates selected session fields through the store. Nil fields
// are left untouched.
type Update struct {
	Status         *Status
	Iterations     *int
	LastConfidence *float64
	Metadata       map[string]interface{}
}

// Store is the persistence contract for session state. Get returns
// (nil, nil) for an unknown or evicted session id. All list operations
// return most-recently-updated first.
type Store interface {
	Get(ctx context.Context, sessionID string) (*State, error)
	Create(ctx context.Context, state *State) (*State, error)
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
	AppendStep(ctx context.Context, sessionID string, step Step) error
	Update(ctx context.Context, sessionID string, update Update) (*State, error)
	Delete(ctx context.Context, sessionID string) error
	ListByAgent(ctx context.Context, agentName string) ([]*State, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*State, error)
}
