// Package knowledge indexes file-backed knowledge spaces for agents.
//
// A space is a subdirectory of the knowledge root; its markdown files are
// the space's documents. Agents reference spaces by id and get the
// rendered index in their system prompt.
//
// Invariants:
// - Reindex replaces the whole index atomically.
// - The watcher debounces change bursts into one reindex.
//
// Usage:
//
//	idx, _ := knowledge.NewIndex("/var/lib/nagare/knowledge")
//	prompt := idx.Render([]string{"runbooks"})
package knowledge
