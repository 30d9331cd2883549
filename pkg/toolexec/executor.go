package toolexec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nagare-ai/nagare/internal/observability"
	"github.com/nagare-ai/nagare/internal/tracing"
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool binds a declared contract to a concrete handler.
type Tool struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []Parameter   `json:"parameters,omitempty"`
	Handler     Handler       `json:"-"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Cooldown    time.Duration `json:"cooldown,omitempty"`
}

// ExposedTool is the handler-free view of a tool handed to model providers.
type ExposedTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// Result is the outcome of a single tool execution. A failed execution is
// still a result; Execute returns an error only when the tool is unknown.
type Result struct {
	Success   bool        `json:"success"`
	Output    interface{} `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}

const (
	// DefaultTimeout bounds a tool call when neither the tool nor the
	// execution context sets one.
	DefaultTimeout = 10 * time.Second

	// DefaultAbortGrace is how long an aborted call may keep running
	// before it is abandoned.
	DefaultAbortGrace = 250 * time.Millisecond

	// DefaultMaxOutputBytes caps the rendered size of a tool output.
	DefaultMaxOutputBytes = 10 * 1024
)

// Executor registers tools and runs them with schema validation, timeouts,
// and invocation accounting.
type Executor struct {
	tools          map[string]*Tool
	schemas        map[string]*gojsonschema.Schema
	lastInvoked    map[string]time.Time
	defaultTimeout time.Duration
	abortGrace     time.Duration
	maxOutputBytes int
	mu             sync.RWMutex
}

// New creates an Executor with default limits.
func New() *Executor {
	return &Executor{
		tools:          make(map[string]*Tool),
		schemas:        make(map[string]*gojsonschema.Schema),
		lastInvoked:    make(map[string]time.Time),
		defaultTimeout: DefaultTimeout,
		abortGrace:     DefaultAbortGrace,
		maxOutputBytes: DefaultMaxOutputBytes,
	}
}

// SetDefaultTimeout overrides the fallback per-call timeout.
func (e *Executor) SetDefaultTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d > 0 {
		e.defaultTimeout = d
	}
}

// SetAbortGrace overrides how long an aborted handler is waited on.
func (e *Executor) SetAbortGrace(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d >= 0 {
		e.abortGrace = d
	}
}

// SetMaxOutputBytes overrides the output truncation cap.
func (e *Executor) SetMaxOutputBytes(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > 0 {
		e.maxOutputBytes = n
	}
}

// Register adds a tool. Re-registering a name replaces the prior handler.
func (e *Executor) Register(tool Tool) error {
	if err := validateTool(tool); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	schema, err := buildSchema(tool)
	if err != nil {
		return fmt.Errorf("failed to build schema for %s: %w", tool.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.tools[tool.Name] = &tool
	e.schemas[tool.Name] = schema

	log.Debug().Str("tool", tool.Name).Msg("Tool registered")

	return nil
}

// Unregister removes a tool. Unknown names are a no-op.
func (e *Executor) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.tools, name)
	delete(e.schemas, name)
	delete(e.lastInvoked, name)
}

// Has reports whether a tool is registered.
func (e *Executor) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.tools[name]
	return ok
}

// Names returns all registered tool names.
func (e *Executor) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	return names
}

// ExposedTools returns the handler-free views of the named tools, in the
// order given. Unknown names are skipped.
func (e *Executor) ExposedTools(allowed []string) []ExposedTool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	exposed := make([]ExposedTool, 0, len(allowed))
	for _, name := range allowed {
		tool, ok := e.tools[name]
		if !ok {
			continue
		}
		exposed = append(exposed, ExposedTool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return exposed
}

// Execute runs a registered tool with the given arguments. It returns the
// invocation record alongside the result; the error is non-nil only when
// the tool name is unknown. Validation errors, handler errors, and timeouts
// are folded into a failed result so the caller can feed them back to the
// model.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}, execCtx *ExecutionContext) (*Invocation, Result, error) {
	ctx, span := tracing.StartSpan(ctx, "nagare.toolexec", "tool.execute")
	defer span.End()

	e.mu.RLock()
	tool := e.tools[name]
	schema := e.schemas[name]
	timeout := e.defaultTimeout
	grace := e.abortGrace
	maxOutput := e.maxOutputBytes
	last := e.lastInvoked[name]
	e.mu.RUnlock()

	if tool == nil {
		return nil, Result{}, &NotRegisteredError{Tool: name}
	}

	inv := newInvocation(name, args)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if tool.Cooldown > 0 && !last.IsZero() {
		if remaining := tool.Cooldown - time.Since(last); remaining > 0 {
			return e.fail(inv, fmt.Sprintf("tool %s is cooling down for %v", name, remaining.Round(time.Millisecond)))
		}
	}

	if err := validateArgs(schema, args); err != nil {
		logger.Warn().Str("tool", name).Err(err).Msg("Tool argument validation failed")
		return e.fail(inv, fmt.Sprintf("argument validation failed: %v", err))
	}

	if tool.Timeout > 0 {
		timeout = tool.Timeout
	}
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	e.mu.Lock()
	e.lastInvoked[name] = time.Now()
	e.mu.Unlock()

	logger.Debug().Str("tool", name).Dur("timeout", timeout).Msg("Executing tool")

	callCtx, cancel := context.WithTimeout(ContextWithExecContext(ctx, execCtx), timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := tool.Handler(callCtx, args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.Warn().Str("tool", name).Err(out.err).Msg("Tool execution failed")
			return e.fail(inv, out.err.Error())
		}

		output, truncated := truncateOutput(out.value, maxOutput)
		inv.complete(true, "")
		observability.RecordToolExecution(name, time.Duration(inv.DurationMs)*time.Millisecond, true)

		logger.Debug().
			Str("tool", name).
			Int64("duration_ms", inv.DurationMs).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return inv, Result{Success: true, Output: output, Truncated: truncated}, nil

	case <-callCtx.Done():
		// Give the handler a moment to observe cancellation before the
		// call is abandoned.
		if grace > 0 {
			graceTimer := time.NewTimer(grace)
			select {
			case <-done:
			case <-graceTimer.C:
			}
			graceTimer.Stop()
		}

		observability.RecordToolTimeout(name)
		logger.Warn().Str("tool", name).Dur("timeout", timeout).Msg("Tool execution timed out")

		return e.fail(inv, fmt.Sprintf("tool execution timed out after %v", timeout))
	}
}

func (e *Executor) fail(inv *Invocation, msg string) (*Invocation, Result, error) {
	inv.complete(false, msg)
	observability.RecordToolExecution(inv.Tool, time.Duration(inv.DurationMs)*time.Millisecond, false)
	return inv, Result{Success: false, Error: msg}, nil
}

func validateTool(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range tool.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

func buildSchema(tool Tool) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range tool.Parameters {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}

	return nil
}

func truncateOutput(output interface{}, maxBytes int) (interface{}, bool) {
	str := fmt.Sprintf("%v", output)
	if len(str) <= maxBytes {
		return output, false
	}
	return str[:maxBytes] + "\n... [output truncated]", true
}
