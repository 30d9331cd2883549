package spec

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation wraps all spec construction failures.
var ErrValidation = errors.New("invalid agent spec")

// Parameter describes one input of a declared tool.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDecl declares a tool the agent may call. The handler itself is
// registered separately on the executor; the declaration only fixes the
// contract the model sees.
type ToolDecl struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []Parameter   `json:"parameters,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	AutoSafe    bool          `json:"auto_safe"`
	Cooldown    time.Duration `json:"cooldown,omitempty"`
}

// ConfidencePolicy bounds the confidence score attached to final answers.
type ConfidencePolicy struct {
	Min     float64 `json:"min,omitempty"`
	Default float64 `json:"default,omitempty"`
}

// EscalationPolicy decides when a run ends escalated instead of completed.
// OnToolFailure and OnTimeout are declarative: the run loop lets tool
// and provider errors propagate and does not consult them.
type EscalationPolicy struct {
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	OnToolFailure       bool    `json:"on_tool_failure,omitempty"`
	OnTimeout           bool    `json:"on_timeout,omitempty"`
	ApprovalWorkflow    string  `json:"approval_workflow,omitempty"`
}

// Policy groups the per-agent run policies.
type Policy struct {
	Confidence ConfidencePolicy `json:"confidence,omitempty"`
	Escalation EscalationPolicy `json:"escalation,omitempty"`
}

// Threshold returns the effective escalation threshold: the explicit
// escalation threshold, else the confidence minimum, else 0.7.
func (p Policy) Threshold() float64 {
	if p.Escalation.ConfidenceThreshold > 0 {
		return clampUnit(p.Escalation.ConfidenceThreshold)
	}
	if p.Confidence.Min > 0 {
		return clampUnit(p.Confidence.Min)
	}
	return 0.7
}

// FallbackConfidence returns the confidence used when the provider
// reports none: the policy default clamped to [0,1], else 0.5.
func (p Policy) FallbackConfidence() float64 {
	if p.Confidence.Default > 0 {
		return clampUnit(p.Confidence.Default)
	}
	return 0.5
}

// clampUnit caps a positive policy value at 1. Define rejects values
// outside [0,1]; the clamp covers policies built without it.
func clampUnit(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}

// KnowledgeRef points at a knowledge space whose index is rendered into
// the system prompt.
type KnowledgeRef struct {
	Space string `json:"space"`
	Title string `json:"title,omitempty"`
}

// MemoryConfig bounds the conversational memory kept per session.
type MemoryConfig struct {
	MaxEntries int           `json:"max_entries,omitempty"`
	TTL        time.Duration `json:"ttl,omitempty"`
	RecentN    int           `json:"recent_n,omitempty"`
}

// AgentSpec is the immutable definition of an agent. Construct through
// Define; a spec that validated once never fails at run time.
type AgentSpec struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Instructions string         `json:"instructions"`
	Tools        []ToolDecl     `json:"tools"`
	Policy       Policy         `json:"policy,omitempty"`
	Knowledge    []KnowledgeRef `json:"knowledge,omitempty"`
	Memory       MemoryConfig   `json:"memory,omitempty"`
}

// Define validates and freezes an agent spec. Invalid specs fail here,
// before any run can reference them.
func Define(s AgentSpec) (*AgentSpec, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if s.Version == "" {
		return nil, fmt.Errorf("%w: version cannot be empty", ErrValidation)
	}
	if s.Instructions == "" {
		return nil, fmt.Errorf("%w: instructions cannot be empty", ErrValidation)
	}
	if len(s.Tools) == 0 {
		return nil, fmt.Errorf("%w: at least one tool must be declared", ErrValidation)
	}

	seen := make(map[string]bool, len(s.Tools))
	for _, tool := range s.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("%w: tool name cannot be empty", ErrValidation)
		}
		if seen[tool.Name] {
			return nil, fmt.Errorf("%w: duplicate tool name %q", ErrValidation, tool.Name)
		}
		seen[tool.Name] = true
	}

	if err := validatePolicy(s.Policy); err != nil {
		return nil, err
	}

	frozen := s
	frozen.Tools = append([]ToolDecl(nil), s.Tools...)
	frozen.Knowledge = append([]KnowledgeRef(nil), s.Knowledge...)

	return &frozen, nil
}

// validatePolicy rejects confidence values outside [0,1]; every score
// derived from the policy stays within the unit interval.
func validatePolicy(p Policy) error {
	checks := []struct {
		name  string
		value float64
	}{
		{"confidence.min", p.Confidence.Min},
		{"confidence.default", p.Confidence.Default},
		{"escalation.confidence_threshold", p.Escalation.ConfidenceThreshold},
	}
	for _, c := range checks {
		if c.value < 0 || c.value > 1 {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrValidation, c.name, c.value)
		}
	}
	return nil
}

// ToolNames returns the declared tool names in declaration order.
func (s *AgentSpec) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for _, tool := range s.Tools {
		names = append(names, tool.Name)
	}
	return names
}

// Tool returns the declaration for a tool name, or nil.
func (s *AgentSpec) Tool(name string) *ToolDecl {
	for i := range s.Tools {
		if s.Tools[i].Name == name {
			return &s.Tools[i]
		}
	}
	return nil
}

// KnowledgeSpaces returns the referenced space identifiers in order.
func (s *AgentSpec) KnowledgeSpaces() []string {
	spaces := make([]string, 0, len(s.Knowledge))
	for _, ref := range s.Knowledge {
		spaces = append(spaces, ref.Space)
	}
	return spaces
}
