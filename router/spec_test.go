package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRouteSplitsStatusFromWriteArg(t *testing.T) {
	route, err := BuildRoute(nil, RouteSpec{
		Name:      "hello",
		Pattern:   `^/hello$`,
		Target:    "write",
		TargetArg: "201 -r hi there",
	})
	require.NoError(t, err)
	assert.True(t, route.Finalized())
	assert.Equal(t, 201, route.responseStatus)
	assert.Equal(t, "-r hi there", route.targetArg)

	rx := newRX("GET", "/hello")
	h, err := BuildHost("default", nil)
	require.NoError(t, err)
	require.NoError(t, h.AddRoute(route))

	binding, err := h.Dispatch(rx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", binding.Route.Name)
}

func TestBuildRouteUnknownTargetRejected(t *testing.T) {
	_, err := BuildRoute(nil, RouteSpec{Name: "bad", Pattern: "^/$", Target: "frobnicate"})
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

// A spec naming an earlier spec as Parent must produce a real inherited
// Route (NewRoute(parent) with a non-nil parent), not a root route that
// merely happens to share the same field values.
func TestBuildHostThreadsDeclaredParent(t *testing.T) {
	h, err := BuildHost("default", []RouteSpec{
		{Name: "api", Pattern: `^/api$`, Methods: "GET,POST", Target: "close"},
		{Name: "api-users", Parent: "api", Pattern: `^/api/users$`, Target: "write", TargetArg: "-r users"},
	})
	require.NoError(t, err)

	var child *Route
	for _, r := range h.Routes {
		if r.Name == "api-users" {
			child = r
		}
	}
	require.NotNil(t, child)
	require.NotNil(t, child.parent)
	assert.Equal(t, "api", child.parent.Name)
	assert.True(t, child.AcceptsMethod("POST"))

	rx := newRX("GET", "/api/users")
	binding, err := h.Dispatch(rx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "api-users", binding.Route.Name)
}

func TestBuildHostUnknownParentRejected(t *testing.T) {
	_, err := BuildHost("default", []RouteSpec{
		{Name: "orphan", Parent: "missing", Pattern: `^/$`, Target: "close"},
	})
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestBuildHostOrdersRoutesAsDeclared(t *testing.T) {
	h, err := BuildHost("default", []RouteSpec{
		{Name: "specific", Pattern: `^/a$`, Target: "write", TargetArg: "-r specific"},
		{Name: "catchall", Pattern: `^/.*$`, Target: "write", TargetArg: "-r catchall"},
	})
	require.NoError(t, err)

	rx := newRX("GET", "/a")
	binding, err := h.Dispatch(rx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "specific", binding.Route.Name)

	rx2 := newRX("GET", "/other")
	binding2, err := h.Dispatch(rx2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "catchall", binding2.Route.Name)
}
