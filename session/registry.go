package session

import (
	"sync"

	"github.com/diffscope/diffscope/core"
)

// DefaultKey is the session key selected by a fresh registry and restored
// by ResetAll.
const DefaultKey = "default"

// entry holds the mutable state of one session slot.
type entry struct {
	plan    string
	hasPlan bool
	scratch map[string]any
}

// Registry is a keyed store of isolated session slots. Slots are created
// lazily on first access. The registry itself is safe for concurrent use;
// isolation between analyses comes from each analysis owning its own key.
type Registry struct {
	mu      sync.RWMutex
	active  string
	entries map[string]*entry
}

// NewRegistry constructs a registry with the active pointer at DefaultKey.
func NewRegistry() *Registry {
	return &Registry{active: DefaultKey, entries: make(map[string]*entry)}
}

// SetActive selects which session's state subsequent plan operations apply
// to. Never call this mid-analysis for a key another analysis owns.
func (r *Registry) SetActive(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = key
}

// Active returns the currently selected session key.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// UpdatePlan stores plan text in the active session's slot.
func (r *Registry) UpdatePlan(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entryLocked(r.active)
	e.plan = text
	e.hasPlan = true
}

// Plan returns the active session's plan and whether one has been set.
func (r *Registry) Plan() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[r.active]
	if !ok {
		return "", false
	}
	return e.plan, e.hasPlan
}

// HasPlan reports whether the active session has a plan.
func (r *Registry) HasPlan() bool {
	_, ok := r.Plan()
	return ok
}

// SetScratch stores arbitrary per-session scratch data under the active key.
func (r *Registry) SetScratch(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entryLocked(r.active)
	if e.scratch == nil {
		e.scratch = make(map[string]any)
	}
	e.scratch[key] = value
}

// Scratch retrieves per-session scratch data from the active key.
func (r *Registry) Scratch(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[r.active]
	if !ok || e.scratch == nil {
		return nil, false
	}
	v, ok := e.scratch[key]
	return v, ok
}

// Reset clears only the active session's slot. Idempotent.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, r.active)
}

// ResetAll clears every slot and restores the active pointer to DefaultKey.
// Intended for process-wide boundaries, never mid-analysis.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
	r.active = DefaultKey
}

// NewSessionKey generates a fresh unique key for a nested or parallel
// analysis.
func (r *Registry) NewSessionKey() string {
	return core.NewID()
}

// Scope returns a plan handle pinned to the given key, bypassing the active
// pointer. Nested analyses use pinned scopes so true parallelism never races
// on the pointer.
func (r *Registry) Scope(key string) *Scope {
	return &Scope{registry: r, key: key}
}

// entryLocked returns the slot for key, creating it lazily. Caller must hold
// the write lock.
func (r *Registry) entryLocked(key string) *entry {
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e
}

// Scope is a core.PlanHandle pinned to one session key.
type Scope struct {
	registry *Registry
	key      string
}

// Key returns the pinned session key.
func (s *Scope) Key() string { return s.key }

// UpdatePlan stores plan text in the pinned slot.
func (s *Scope) UpdatePlan(text string) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	e := s.registry.entryLocked(s.key)
	e.plan = text
	e.hasPlan = true
}

// Plan returns the pinned slot's plan and whether one has been set.
func (s *Scope) Plan() (string, bool) {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	e, ok := s.registry.entries[s.key]
	if !ok {
		return "", false
	}
	return e.plan, e.hasPlan
}

// Reset clears the pinned slot.
func (s *Scope) Reset() {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	delete(s.registry.entries, s.key)
}
