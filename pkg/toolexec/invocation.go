package toolexec

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Invocation is the accounting record of one tool call. One is produced per
// Execute call regardless of outcome.
type Invocation struct {
	ID          string                 `json:"id"`
	Tool        string                 `json:"tool"`
	Args        map[string]interface{} `json:"args,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	DurationMs  int64                  `json:"duration_ms"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
}

func newInvocation(tool string, args map[string]interface{}) *Invocation {
	return &Invocation{
		ID:        newInvocationID(),
		Tool:      tool,
		Args:      args,
		StartedAt: time.Now(),
	}
}

func (inv *Invocation) complete(success bool, errMsg string) {
	inv.CompletedAt = time.Now()
	inv.DurationMs = inv.CompletedAt.Sub(inv.StartedAt).Milliseconds()
	inv.Success = success
	inv.Error = errMsg
}

func newInvocationID() string {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
	if err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return "inv_" + id
}
