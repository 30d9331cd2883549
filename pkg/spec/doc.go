// Package spec defines immutable agent definitions and their registry.
//
// Invariants:
// - Specs validate at construction; a defined spec never fails at run time.
// - Tool names within a spec are unique.
// - Registered specs are frozen; re-registration of a name/version is rejected.
//
// Usage:
//
//	s, _ := spec.Define(spec.AgentSpec{
//		Name: "support", Version: "1.0.0", Instructions: "Answer politely.",
//		Tools: []spec.ToolDecl{{Name: "search_docs", Description: "Search docs"}},
//	})
//	reg := spec.NewRegistry()
//	_ = reg.Register(s)
//	s, _ = reg.Require("support", "")
package spec
