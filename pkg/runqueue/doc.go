// Package runqueue provides lane-based task serialization.
//
// Invariants:
// - Tasks on the same lane run one at a time in FIFO order.
// - Tasks on different lanes may run concurrently.
// - A caller whose context expires while queued is released; its task
//   never runs.
//
// Usage:
//
//	queue := runqueue.New()
//	defer queue.Close()
//	result, err := queue.Do(ctx, "session-abc", func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	})
package runqueue
