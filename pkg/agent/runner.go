package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nagare-ai/nagare/internal/observability"
	"github.com/nagare-ai/nagare/internal/tracing"
	"github.com/nagare-ai/nagare/pkg/approval"
	"github.com/nagare-ai/nagare/pkg/knowledge"
	"github.com/nagare-ai/nagare/pkg/memory"
	"github.com/nagare-ai/nagare/pkg/runqueue"
	"github.com/nagare-ai/nagare/pkg/session"
	"github.com/nagare-ai/nagare/pkg/spec"
	"github.com/nagare-ai/nagare/pkg/toolexec"
)

// DefaultMaxIterations bounds the model-call loop of a single run.
const DefaultMaxIterations = 6

// Config wires a Runner. Registry, Sessions, Tools, and Provider are
// required; the rest are optional collaborators.
type Config struct {
	Registry  *spec.Registry
	Sessions  session.Store
	Memory    memory.Manager
	Tools     *toolexec.Executor
	Approvals *approval.Workflow
	Queue     *runqueue.Queue
	Knowledge *knowledge.Index
	Provider  ModelProvider
	Logger    zerolog.Logger
	Emit      EmitFunc

	MaxIterations int
	BasePrompt    string
	Model         string
	Temperature   float64
	MaxTokens     int
}

// Runner orchestrates agent runs: it drives the bounded iteration loop,
// executes tool calls in order, derives confidence, and decides between
// completion and escalation.
type Runner struct {
	registry  *spec.Registry
	sessions  session.Store
	memory    memory.Manager
	tools     *toolexec.Executor
	approvals *approval.Workflow
	queue     *runqueue.Queue
	knowledge *knowledge.Index
	provider  ModelProvider
	logger    zerolog.Logger
	sink      EmitFunc

	maxIterations int
	basePrompt    string
	model         string
	temperature   float64
	maxTokens     int
}

// NewRunner creates a runner from the config.
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Registry == nil {
		return nil, fmt.Errorf("spec registry is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Queue == nil {
		cfg.Queue = runqueue.New()
	}

	return &Runner{
		registry:      cfg.Registry,
		sessions:      cfg.Sessions,
		memory:        cfg.Memory,
		tools:         cfg.Tools,
		approvals:     cfg.Approvals,
		queue:         cfg.Queue,
		knowledge:     cfg.Knowledge,
		provider:      cfg.Provider,
		logger:        cfg.Logger,
		sink:          cfg.Emit,
		maxIterations: cfg.MaxIterations,
		basePrompt:    cfg.BasePrompt,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
	}, nil
}

// Run executes one orchestrated run. Runs for the same session id are
// serialized on a per-session lane; an error leaves the session at its
// last persisted state.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.NewRunContext(ctx, req.AgentName)
	ctx = tracing.WithSessionID(ctx, req.SessionID)
	if req.TenantID != "" {
		ctx = tracing.WithTenantID(ctx, req.TenantID)
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"nagare.agent",
		"agent.run",
		attribute.String("agent", req.AgentName),
		attribute.String("session_id", req.SessionID),
	)
	defer span.End()

	lane := "session-" + req.SessionID
	value, err := r.queue.Do(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return r.execute(taskCtx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return value.(*RunResult), nil
}

func validateRequest(req RunRequest) error {
	if req.AgentName == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if req.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if req.Input == "" {
		return fmt.Errorf("input cannot be empty")
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()
	logger := tracing.LoggerFromContext(ctx, r.logger).With().
		Str("agent", req.AgentName).
		Str("session_id", req.SessionID).
		Logger()

	agentSpec, err := r.registry.Require(req.AgentName, req.AgentVersion)
	if err != nil {
		return nil, err
	}

	// Every declared tool needs a handler before the first model call.
	for _, decl := range agentSpec.Tools {
		if !r.tools.Has(decl.Name) {
			return nil, &MissingToolHandlerError{Agent: agentSpec.Name, Tool: decl.Name}
		}
	}

	st, created, err := r.loadOrCreateSession(ctx, agentSpec, req)
	if err != nil {
		return nil, err
	}
	if created {
		r.emit(req, EventSessionCreated, map[string]interface{}{"session_id": st.SessionID})
	} else {
		r.emit(req, EventSessionUpdated, map[string]interface{}{"session_id": st.SessionID})
	}

	// Memory sees the input before the transcript does: a first-touch
	// bootstrap reads the transcript, so the reverse order would record
	// the input twice.
	r.remember(ctx, st.SessionID, string(session.RoleUser), req.Input, logger)

	userMsg := session.TextMessage(session.RoleUser, req.Input)
	if err := r.sessions.AppendMessage(ctx, st.SessionID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	system := r.buildSystemPrompt(agentSpec, req)
	exposed := r.tools.ExposedTools(agentSpec.ToolNames())

	history := append(append([]session.Message{}, st.Messages...), userMsg)
	invocations := []*toolexec.Invocation{}
	var usage TokenUsage

	for i := 1; i <= r.maxIterations; i++ {
		r.emit(req, EventIterationStarted, map[string]interface{}{
			"session_id": st.SessionID,
			"iteration":  i,
		})

		resp, err := r.provider.Chat(ctx, ChatRequest{
			Model:       r.model,
			System:      system,
			Messages:    history,
			Tools:       exposed,
			Temperature: r.temperature,
			MaxTokens:   r.maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		if err := r.sessions.AppendMessage(ctx, st.SessionID, resp.Message); err != nil {
			return nil, fmt.Errorf("failed to persist assistant message: %w", err)
		}
		history = append(history, resp.Message)

		iters := st.Iterations + i
		if _, err := r.sessions.Update(ctx, st.SessionID, session.Update{Iterations: &iters}); err != nil {
			return nil, fmt.Errorf("failed to persist iteration count: %w", err)
		}
		if err := r.sessions.AppendStep(ctx, st.SessionID, session.Step{
			Type: session.StepIteration,
			Name: fmt.Sprintf("iteration-%d", i),
		}); err != nil {
			return nil, fmt.Errorf("failed to record iteration step: %w", err)
		}
		observability.RecordIteration(agentSpec.Name)

		calls := resp.Message.ToolCalls()
		if len(calls) > 0 {
			// Tool calls run sequentially, in the order the assistant
			// message produced them; their results are appended in the
			// same order.
			for _, call := range calls {
				toolMsg, inv, err := r.runToolCall(ctx, agentSpec, req, st.SessionID, call)
				if err != nil {
					return nil, err
				}
				invocations = append(invocations, inv)
				history = append(history, toolMsg)
			}
			continue
		}

		return r.finish(ctx, req, agentSpec, resp, finishParams{
			iterations:  i,
			invocations: invocations,
			usage:       usage,
			started:     start,
			logger:      logger,
		})
	}

	// Iterations exhausted without a final answer.
	failed := session.StatusFailed
	finalState, err := r.sessions.Update(ctx, st.SessionID, session.Update{Status: &failed})
	if err != nil {
		return nil, fmt.Errorf("failed to persist failed status: %w", err)
	}

	r.emit(req, EventFailed, map[string]interface{}{
		"session_id": st.SessionID,
		"reason":     FinishMaxIterations,
	})
	observability.RecordAgentRun(agentSpec.Name, "failed", time.Since(start))
	logger.Warn().Int("iterations", r.maxIterations).Msg("Run exhausted max iterations")

	return &RunResult{
		Session:            finalState,
		Confidence:         finalState.LastConfidence,
		Iterations:         r.maxIterations,
		RequiresEscalation: true,
		FinishReason:       FinishMaxIterations,
		ToolInvocations:    invocations,
		Usage:              usage,
	}, nil
}

// loadOrCreateSession fetches the session, creating it on first run and
// reopening it when a prior run left it terminal.
func (r *Runner) loadOrCreateSession(ctx context.Context, agentSpec *spec.AgentSpec, req RunRequest) (*session.State, bool, error) {
	st, err := r.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}

	if st == nil {
		st, err = r.sessions.Create(ctx, &session.State{
			SessionID:    req.SessionID,
			AgentName:    agentSpec.Name,
			AgentVersion: agentSpec.Version,
			TenantID:     req.TenantID,
			Status:       session.StatusRunning,
			Metadata:     req.Metadata,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create session: %w", err)
		}
		return st, true, nil
	}

	if st.Status != session.StatusRunning {
		running := session.StatusRunning
		st, err = r.sessions.Update(ctx, req.SessionID, session.Update{Status: &running})
		if err != nil {
			return nil, false, fmt.Errorf("failed to reopen session: %w", err)
		}
	}

	return st, false, nil
}

// runToolCall executes one tool call and persists its result message.
// Failures are absorbed into the result fed back to the model; only an
// unknown tool surfaces as an error.
func (r *Runner) runToolCall(ctx context.Context, agentSpec *spec.AgentSpec, req RunRequest, sessionID string, call session.ContentPart) (session.Message, *toolexec.Invocation, error) {
	args := parseToolArgs(call.Args)

	execCtx := &toolexec.ExecutionContext{
		AgentID:   agentSpec.Name,
		SessionID: sessionID,
		TenantID:  req.TenantID,
		ActorID:   req.ActorID,
		Metadata:  req.Metadata,
		Emit: func(event string, payload map[string]interface{}) {
			r.emit(req, event, payload)
		},
	}
	if decl := agentSpec.Tool(call.ToolName); decl != nil && decl.Timeout > 0 {
		execCtx.Timeout = decl.Timeout
	}

	inv, result, err := r.tools.Execute(ctx, call.ToolName, args, execCtx)
	if err != nil {
		return session.Message{}, nil, err
	}

	output := result.Error
	if result.Success {
		output = fmt.Sprintf("%v", result.Output)
	}

	toolMsg := session.Message{
		Role: session.RoleTool,
		Parts: []session.ContentPart{{
			Type:       session.PartToolResult,
			ToolCallID: call.ToolCallID,
			ToolName:   call.ToolName,
			Output:     output,
		}},
		CreatedAt: time.Now(),
	}
	if err := r.sessions.AppendMessage(ctx, sessionID, toolMsg); err != nil {
		return session.Message{}, nil, fmt.Errorf("failed to persist tool result: %w", err)
	}

	if err := r.sessions.AppendStep(ctx, sessionID, session.Step{
		Type: session.StepToolCall,
		Name: call.ToolName,
		Payload: map[string]interface{}{
			"invocation_id": inv.ID,
			"success":       inv.Success,
			"duration_ms":   inv.DurationMs,
		},
	}); err != nil {
		return session.Message{}, nil, fmt.Errorf("failed to record tool step: %w", err)
	}

	r.emit(req, EventToolCompleted, map[string]interface{}{
		"session_id":    sessionID,
		"tool":          call.ToolName,
		"invocation_id": inv.ID,
		"success":       inv.Success,
	})

	return toolMsg, inv, nil
}

type finishParams struct {
	iterations  int
	invocations []*toolexec.Invocation
	usage       TokenUsage
	started     time.Time
	logger      zerolog.Logger
}

// finish handles the no-tool-calls branch: derive confidence, decide the
// terminal status, open an approval request when escalating.
func (r *Runner) finish(ctx context.Context, req RunRequest, agentSpec *spec.AgentSpec, resp *ChatResponse, p finishParams) (*RunResult, error) {
	outputText := resp.Message.Text()
	confidence := deriveConfidence(resp.Metadata, agentSpec.Policy)
	threshold := agentSpec.Policy.Threshold()
	escalate := confidence < threshold

	status := session.StatusCompleted
	if escalate {
		status = session.StatusEscalated
	}

	finalState, err := r.sessions.Update(ctx, req.SessionID, session.Update{
		Status:         &status,
		LastConfidence: &confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist terminal status: %w", err)
	}

	r.remember(ctx, req.SessionID, string(session.RoleAssistant), outputText, p.logger)

	result := &RunResult{
		Session:            finalState,
		Response:           resp.Message,
		OutputText:         outputText,
		Confidence:         confidence,
		Iterations:         p.iterations,
		RequiresEscalation: escalate,
		FinishReason:       FinishFinalAnswer,
		ToolInvocations:    p.invocations,
		Usage:              p.usage,
	}

	if escalate {
		if err := r.sessions.AppendStep(ctx, req.SessionID, session.Step{
			Type: session.StepEscalation,
			Name: "low_confidence",
			Payload: map[string]interface{}{
				"confidence": confidence,
				"threshold":  threshold,
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to record escalation step: %w", err)
		}
		observability.RecordEscalation(agentSpec.Name)

		if r.approvals != nil {
			appReq, err := r.approvals.Request(ctx, approval.Input{
				SessionID:   req.SessionID,
				AgentName:   agentSpec.Name,
				TenantID:    req.TenantID,
				Reason:      fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, threshold),
				RequestedBy: req.ActorID,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to open approval request: %w", err)
			}
			result.ApprovalRequestID = appReq.ID
			r.emit(req, EventApprovalRequested, map[string]interface{}{
				"session_id":  req.SessionID,
				"approval_id": appReq.ID,
			})
		}

		r.emit(req, EventEscalated, map[string]interface{}{
			"session_id": req.SessionID,
			"confidence": confidence,
		})
		observability.RecordAgentRun(agentSpec.Name, "escalated", time.Since(p.started))
		p.logger.Info().
			Float64("confidence", confidence).
			Float64("threshold", threshold).
			Msg("Run escalated")
	} else {
		r.emit(req, EventCompleted, map[string]interface{}{
			"session_id": req.SessionID,
			"confidence": confidence,
		})
		observability.RecordAgentRun(agentSpec.Name, "completed", time.Since(p.started))
		p.logger.Info().
			Int("iterations", p.iterations).
			Float64("confidence", confidence).
			Msg("Run completed")
	}

	return result, nil
}

// buildSystemPrompt assembles base prompt, spec instructions, per-run
// override, and the rendered knowledge index.
func (r *Runner) buildSystemPrompt(agentSpec *spec.AgentSpec, req RunRequest) string {
	sections := []string{}
	if r.basePrompt != "" {
		sections = append(sections, r.basePrompt)
	}
	sections = append(sections, agentSpec.Instructions)
	if req.PromptOverride != "" {
		sections = append(sections, req.PromptOverride)
	}
	if r.knowledge != nil {
		if index := r.knowledge.Render(agentSpec.KnowledgeSpaces()); index != "" {
			sections = append(sections, "# Knowledge\n\n"+index)
		}
	}
	return strings.Join(sections, "\n\n")
}

func (r *Runner) emit(req RunRequest, event string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if r.sink != nil {
		r.sink(event, payload)
	}
	if req.Emit != nil {
		req.Emit(event, payload)
	}
}

func (r *Runner) remember(ctx context.Context, sessionID, entryType, content string, logger zerolog.Logger) {
	if r.memory == nil || content == "" {
		return
	}
	if err := r.memory.Append(ctx, sessionID, memory.Entry{Type: entryType, Content: content}); err != nil {
		logger.Warn().Err(err).Msg("Failed to append memory entry")
	}
}

// parseToolArgs decodes tool-call arguments best effort: unparsable raw
// arguments are passed through under a "raw" key instead of failing the
// call.
func parseToolArgs(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]interface{}{"raw": string(raw)}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

// deriveConfidence reads the provider-reported confidence, clamped to
// [0,1], falling back to the policy default when absent or unparsable.
func deriveConfidence(metadata map[string]interface{}, policy spec.Policy) float64 {
	if v, ok := metadata["confidence"]; ok {
		switch c := v.(type) {
		case float64:
			return clamp01(c)
		case float32:
			return clamp01(float64(c))
		case int:
			return clamp01(float64(c))
		case json.Number:
			if f, err := c.Float64(); err == nil {
				return clamp01(f)
			}
		case string:
			if f, err := strconv.ParseFloat(c, 64); err == nil {
				return clamp01(f)
			}
		}
	}
	return policy.FallbackConfidence()
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
