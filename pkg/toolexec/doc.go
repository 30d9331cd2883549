// Package toolexec registers and executes structured tools for agents.
//
// Invariants:
// - Tool names are unique within an executor.
// - Arguments are schema-validated before the handler runs.
// - Every Execute call produces exactly one invocation record.
// - A timed-out call is granted a short grace period to observe
//   cancellation, then abandoned.
//
// Usage:
//
//	exec := toolexec.New()
//	_ = exec.Register(toolexec.Tool{
//		Name:        "echo",
//		Description: "Echo input",
//		Parameters:  []toolexec.Parameter{{Name: "text", Type: "string", Required: true}},
//		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
//			return args["text"], nil
//		},
//	})
package toolexec
