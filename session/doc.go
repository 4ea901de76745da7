// Package session provides the keyed registry of isolated per-analysis
// state: plan text plus scratch data, selected either through a mutable
// active-key pointer (for single-threaded embedders) or through pinned
// per-key scopes (for concurrent and nested analyses). Sessions are isolated
// by key, not by lock: correctness depends on callers never sharing a key
// across logically independent analyses.
package session
