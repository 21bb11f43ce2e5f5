package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An inherited route shares its parent's collections until it mutates
// them (copy-on-write, route.c's GRADUATE_HASH/GRADUATE_LIST); mutating
// the child must never be visible through the parent, and the parent's
// own later mutations must never leak into an already-diverged child.
func TestInheritedRouteCopyOnWrite(t *testing.T) {
	parent := NewRoute(nil)
	parent.Name = "parent"
	parent.SetMethods("GET,POST")
	parent.SetVar("region", "us")
	parent.AddCondition(&Condition{Name: "auth"})
	parent.AddUpdate(&Update{Name: "lang"})

	child := NewRoute(parent)
	child.Name = "child"

	// Before the child mutates anything, it sees the parent's values.
	assert.True(t, child.AcceptsMethod("POST"))
	assert.Equal(t, "us", child.vars["region"])
	require.Len(t, child.conditions, 1)
	require.Len(t, child.updates, 1)

	// Mutating the child's methods/vars must not alter the parent's.
	child.SetMethods("DELETE")
	child.SetVar("region", "eu")
	child.AddCondition(&Condition{Name: "rate-limit"})
	child.AddUpdate(&Update{Name: "rewrite"})

	assert.True(t, parent.AcceptsMethod("GET"))
	assert.False(t, parent.AcceptsMethod("DELETE"))
	assert.Equal(t, "us", parent.vars["region"])
	assert.Len(t, parent.conditions, 1)
	assert.Len(t, parent.updates, 1)

	assert.True(t, child.AcceptsMethod("DELETE"))
	assert.False(t, child.AcceptsMethod("GET"))
	assert.Equal(t, "eu", child.vars["region"])
	assert.Len(t, child.conditions, 2)
	assert.Len(t, child.updates, 2)

	// A parent mutation after the child was created must not retroactively
	// change the child's already-diverged collections.
	parent.SetVar("region", "apac")
	assert.Equal(t, "apac", parent.vars["region"])
	assert.Equal(t, "eu", child.vars["region"])
}

// A second, never-mutated child still aliases the parent's maps/slices
// directly (no eager copy on inheritance), matching route.c's
// httpCreateInheritedRoute: only a write graduates a collection.
func TestInheritedRouteAliasesUntouchedCollections(t *testing.T) {
	parent := NewRoute(nil)
	parent.SetMethods("GET")
	parent.AddCondition(&Condition{Name: "auth"})

	child := NewRoute(parent)

	assert.True(t, sameMethodSet(child.methods, parent.methods))
	require.Len(t, child.conditions, 1)
	assert.Equal(t, parent.conditions[0], child.conditions[0])
}
