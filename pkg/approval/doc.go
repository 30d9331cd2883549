// Package approval tracks human-review requests opened by agent runs.
//
// Invariants:
// - A request moves pending -> approved | rejected exactly once.
// - The store is bounded; at capacity the oldest request is evicted
//   regardless of status.
// - The workflow is advisory: nothing blocks on a pending request.
//
// Usage:
//
//	wf := approval.New(0)
//	req, _ := wf.Request(ctx, approval.Input{SessionID: "sess-1", Reason: "low confidence"})
//	_, _ = wf.Approve(ctx, req.ID, "ops@example.com", "looks fine")
package approval
