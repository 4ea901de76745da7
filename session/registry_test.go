package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, DefaultKey, r.Active())
	assert.False(t, r.HasPlan())

	_, ok := r.Plan()
	assert.False(t, ok)
}

func TestRegistryPlanRoundTrip(t *testing.T) {
	r := NewRegistry()

	r.UpdatePlan("1. read the diff")
	plan, ok := r.Plan()
	require.True(t, ok)
	assert.Equal(t, "1. read the diff", plan)
	assert.True(t, r.HasPlan())

	r.UpdatePlan("2. revised")
	plan, _ = r.Plan()
	assert.Equal(t, "2. revised", plan)
}

func TestRegistryIsolationBetweenKeys(t *testing.T) {
	r := NewRegistry()

	r.UpdatePlan("default plan")

	r.SetActive("other")
	assert.False(t, r.HasPlan())
	r.UpdatePlan("other plan")

	r.SetActive(DefaultKey)
	plan, ok := r.Plan()
	require.True(t, ok)
	assert.Equal(t, "default plan", plan)
}

func TestRegistryScratch(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Scratch("notes")
	assert.False(t, ok)

	r.SetScratch("notes", []string{"a", "b"})
	v, ok := r.Scratch("notes")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)

	// Scratch is keyed by session too.
	r.SetActive("other")
	_, ok = r.Scratch("notes")
	assert.False(t, ok)
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry()
	r.UpdatePlan("p")
	r.SetScratch("k", 1)

	r.Reset()
	assert.False(t, r.HasPlan())
	_, ok := r.Scratch("k")
	assert.False(t, ok)

	// Idempotent.
	r.Reset()
	assert.False(t, r.HasPlan())
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry()
	r.UpdatePlan("default plan")
	r.SetActive("other")
	r.UpdatePlan("other plan")

	r.ResetAll()

	assert.Equal(t, DefaultKey, r.Active())
	assert.False(t, r.HasPlan())
	r.SetActive("other")
	assert.False(t, r.HasPlan())
}

func TestRegistryNewSessionKeyUnique(t *testing.T) {
	r := NewRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := r.NewSessionKey()
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestScopeBypassesActivePointer(t *testing.T) {
	r := NewRegistry()

	scope := r.Scope("pinned")
	assert.Equal(t, "pinned", scope.Key())

	scope.UpdatePlan("pinned plan")

	// The active slot is untouched.
	assert.False(t, r.HasPlan())

	plan, ok := scope.Plan()
	require.True(t, ok)
	assert.Equal(t, "pinned plan", plan)

	// Moving the active pointer onto the pinned key exposes the same slot.
	r.SetActive("pinned")
	plan, ok = r.Plan()
	require.True(t, ok)
	assert.Equal(t, "pinned plan", plan)
}

func TestScopeReset(t *testing.T) {
	r := NewRegistry()
	scope := r.Scope("pinned")

	scope.UpdatePlan("p")
	scope.Reset()

	_, ok := scope.Plan()
	assert.False(t, ok)
}
