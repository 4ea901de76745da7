package core

import "sync"

// CallLimiter enforces a maximum number of tool calls per analysis. The
// counter keeps incrementing on the rejection path, so a session that is
// over budget keeps failing deterministically rather than un-blocking.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Increment increases the call counter and returns the new count plus
// whether the call is still within the limit.
func (cl *CallLimiter) Increment() (int, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.count++
	if cl.max > 0 && cl.count > cl.max {
		return cl.count, false
	}
	return cl.count, true
}

// Count returns the current number of calls made.
func (cl *CallLimiter) Count() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.count
}

// Max returns the configured ceiling (0 means unlimited).
func (cl *CallLimiter) Max() int { return cl.max }

// Remaining returns how many calls are left before hitting the limit,
// or -1 when unlimited.
func (cl *CallLimiter) Remaining() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.max == 0 {
		return -1
	}
	if cl.count >= cl.max {
		return 0
	}
	return cl.max - cl.count
}
