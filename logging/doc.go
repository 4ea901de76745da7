// Package logging defines the minimal structured logging surface used across
// diffscope. Components depend only on the small Logger interface so any
// structured logger can be plugged in; adapters for log/slog and a
// context-aware AnalysisLogger with domain helpers are provided.
package logging
