// Package agent drives the orchestration loop: it takes a run request,
// resolves the agent spec, and alternates model calls with tool
// execution until the model produces a final answer or the iteration
// budget runs out.
//
// Invariants:
//   - A run performs at most MaxIterations model calls; exhaustion marks
//     the session failed and flags it for escalation.
//   - Tool calls within an iteration execute sequentially, in the order
//     the assistant message produced them.
//   - Every declared tool must have a registered handler before the
//     first model call; a missing handler fails the run up front.
//   - A final answer whose confidence falls below the policy threshold
//     escalates the session and, when a workflow is wired, opens a
//     pending approval request.
//   - Runs for the same session id are serialized on a per-session
//     lane; concurrent runs for distinct sessions proceed in parallel.
//
// Usage:
//
//	runner, err := agent.NewRunner(agent.Config{
//		Registry: registry,
//		Sessions: store,
//		Tools:    executor,
//		Provider: provider,
//	})
//	if err != nil {
//		return err
//	}
//	res, err := runner.Run(ctx, agent.RunRequest{
//		AgentName: "support",
//		SessionID: "sess-1",
//		Input:     "How do I reset my password?",
//	})
package agent
