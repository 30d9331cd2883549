// Package memory maintains per-session working memory for agents.
//
// Invariants:
// - A session's memory is bootstrapped from its transcript on first touch.
// - Entries past the TTL are dropped lazily on access; a janitor sweeps
//   idle sessions on a schedule.
// - A session never holds more than MaxEntries entries; the oldest go
//   first.
//
// Usage:
//
//	mgr := memory.NewInMemoryManager(store, memory.Options{})
//	_ = mgr.Append(ctx, sessionID, memory.Entry{Type: "user", Content: "hello"})
//	digest, _ := mgr.Summarize(ctx, sessionID)
package memory
