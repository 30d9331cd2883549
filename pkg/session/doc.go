// Package session holds durable conversational state with an explicit
// lifecycle and pluggable persistence.
//
// Invariants:
// - Status transitions are one-way within a run; a terminal session only
//   moves again when a later run reopens it to running.
// - Message and step order is exactly append order.
// - The bounded in-memory store evicts the least-recently-updated
//   session at capacity and trims per-session history from the oldest end.
//
// Usage:
//
//	store := session.NewMemStore(session.MemStoreConfig{MaxSessions: 100})
//	state, _ := store.Create(ctx, &session.State{SessionID: "s1", AgentName: "support"})
//	_ = store.AppendMessage(ctx, state.SessionID, session.TextMessage(session.RoleUser, "hello"))
package session
