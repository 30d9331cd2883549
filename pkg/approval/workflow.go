package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/nagare-ai/nagare/internal/observability"
	"github.com/nagare-ai/nagare/internal/tracing"
)

// Status is the review state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s == StatusApproved || s == StatusRejected
}

// Request is one human-review item opened by an agent run.
type Request struct {
	ID          string                 `json:"id"`
	SessionID   string                 `json:"session_id"`
	AgentName   string                 `json:"agent_name"`
	TenantID    string                 `json:"tenant_id,omitempty"`
	ToolName    string                 `json:"tool_name,omitempty"`
	ToolCallID  string                 `json:"tool_call_id,omitempty"`
	ToolArgs    map[string]interface{} `json:"tool_args,omitempty"`
	Reason      string                 `json:"reason"`
	RequestedBy string                 `json:"requested_by,omitempty"`
	RequestedAt time.Time              `json:"requested_at"`
	Status      Status                 `json:"status"`
	ResolvedAt  time.Time              `json:"resolved_at,omitempty"`
	Reviewer    string                 `json:"reviewer,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Input carries the fields a caller provides when opening a request.
type Input struct {
	SessionID   string
	AgentName   string
	TenantID    string
	ToolName    string
	ToolCallID  string
	ToolArgs    map[string]interface{}
	Reason      string
	RequestedBy string
	Metadata    map[string]interface{}
}

// Filter narrows ListPending. Zero fields match everything.
type Filter struct {
	SessionID string
	AgentName string
	TenantID  string
}

// DefaultMaxRequests bounds retained requests across all statuses.
const DefaultMaxRequests = 1000

// Workflow tracks approval requests through pending to a terminal review.
// It is advisory: callers open requests and consult them, nothing blocks.
type Workflow struct {
	requests    map[string]*Request
	byToolCall  map[string]string
	order       []string
	maxRequests int
	mu          sync.Mutex
}

// New creates a workflow retaining at most maxRequests requests. Zero or
// negative falls back to DefaultMaxRequests.
func New(maxRequests int) *Workflow {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Workflow{
		requests:    make(map[string]*Request),
		byToolCall:  make(map[string]string),
		maxRequests: maxRequests,
	}
}

// Request opens a pending review item. At capacity the oldest request is
// evicted regardless of its status.
func (w *Workflow) Request(ctx context.Context, in Input) (*Request, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if in.Reason == "" {
		return nil, fmt.Errorf("reason cannot be empty")
	}

	req := &Request{
		ID:          newRequestID(),
		SessionID:   in.SessionID,
		AgentName:   in.AgentName,
		TenantID:    in.TenantID,
		ToolName:    in.ToolName,
		ToolCallID:  in.ToolCallID,
		ToolArgs:    in.ToolArgs,
		Reason:      in.Reason,
		RequestedBy: in.RequestedBy,
		RequestedAt: time.Now(),
		Status:      StatusPending,
		Metadata:    in.Metadata,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.order) >= w.maxRequests {
		w.evictOldestLocked()
	}

	w.requests[req.ID] = req
	w.order = append(w.order, req.ID)
	if req.ToolCallID != "" {
		w.byToolCall[req.ToolCallID] = req.ID
	}

	observability.RecordApproval(string(StatusPending))
	w.publishPendingLocked()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().
		Str("approval_id", req.ID).
		Str("session_id", req.SessionID).
		Str("reason", req.Reason).
		Msg("Approval requested")

	return clone(req), nil
}

// Approve resolves a pending request as approved.
func (w *Workflow) Approve(ctx context.Context, id, reviewer, notes string) (*Request, error) {
	return w.resolve(ctx, id, reviewer, notes, StatusApproved)
}

// Reject resolves a pending request as rejected.
func (w *Workflow) Reject(ctx context.Context, id, reviewer, notes string) (*Request, error) {
	return w.resolve(ctx, id, reviewer, notes, StatusRejected)
}

// Get returns a request by id, or nil when unknown.
func (w *Workflow) Get(id string) *Request {
	w.mu.Lock()
	defer w.mu.Unlock()

	req, ok := w.requests[id]
	if !ok {
		return nil
	}
	return clone(req)
}

// StatusFor returns the review status tied to a tool call id.
func (w *Workflow) StatusFor(toolCallID string) (Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, ok := w.byToolCall[toolCallID]
	if !ok {
		return "", false
	}
	req, ok := w.requests[id]
	if !ok {
		return "", false
	}
	return req.Status, true
}

// IsApproved reports whether the tool call's request resolved as approved.
func (w *Workflow) IsApproved(toolCallID string) bool {
	status, ok := w.StatusFor(toolCallID)
	return ok && status == StatusApproved
}

// ListPending returns pending requests matching the filter, oldest first.
func (w *Workflow) ListPending(filter Filter) []*Request {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []*Request
	for _, id := range w.order {
		req := w.requests[id]
		if req == nil || req.Status != StatusPending {
			continue
		}
		if filter.SessionID != "" && req.SessionID != filter.SessionID {
			continue
		}
		if filter.AgentName != "" && req.AgentName != filter.AgentName {
			continue
		}
		if filter.TenantID != "" && req.TenantID != filter.TenantID {
			continue
		}
		out = append(out, clone(req))
	}
	return out
}

func (w *Workflow) resolve(ctx context.Context, id, reviewer, notes string, status Status) (*Request, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	req, ok := w.requests[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if req.Status.Resolved() {
		return nil, &AlreadyResolvedError{ID: id, Status: req.Status}
	}

	req.Status = status
	req.ResolvedAt = time.Now()
	req.Reviewer = reviewer
	req.Notes = notes

	observability.RecordApproval(string(status))
	w.publishPendingLocked()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().
		Str("approval_id", req.ID).
		Str("status", string(status)).
		Str("reviewer", reviewer).
		Msg("Approval resolved")

	return clone(req), nil
}

// evictOldestLocked drops the request with the earliest RequestedAt.
// Insertion order tracks request time, so the head of order is the oldest.
func (w *Workflow) evictOldestLocked() {
	if len(w.order) == 0 {
		return
	}

	oldest := w.order[0]
	w.order = w.order[1:]

	if req, ok := w.requests[oldest]; ok {
		if req.ToolCallID != "" {
			delete(w.byToolCall, req.ToolCallID)
		}
		delete(w.requests, oldest)
	}
}

func (w *Workflow) publishPendingLocked() {
	pending := 0
	for _, req := range w.requests {
		if req.Status == StatusPending {
			pending++
		}
	}
	observability.SetPendingApprovals(pending)
}

func clone(req *Request) *Request {
	out := *req
	return &out
}

func newRequestID() string {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
	if err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return "apr_" + id
}
