// Package budget implements context-window accounting for the analysis loop:
// token cost estimation for a prospective model request, utilization
// classification into a suggested action, and eviction of the oldest
// complete tool interactions once a warning threshold is crossed. Counting
// is advisory: any counting failure degrades to a conservative "continue"
// rather than failing the analysis.
package budget
