package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRX(method, path string) *Request {
	return &Request{
		Method:   method,
		PathInfo: path,
		Header:   http.Header{},
		Params:   map[string]string{},
	}
}

// Scenario B — Route pattern with named token.
func TestDispatchNamedToken(t *testing.T) {
	h := NewHost("default")
	route := NewRoute(nil)
	route.Name = "profile"
	route.SetPattern(`^/users/{id=[0-9]+}/profile`)
	route.SetTarget(TargetRun, "profile-${id}")
	route.SetHandler(HandlerFunc{HandlerName: "test"})
	require.NoError(t, route.Finalize())
	require.NoError(t, h.AddRoute(route))

	rx := newRX("GET", "/users/42/profile")
	binding, err := h.Dispatch(rx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "profile", binding.Route.Name)
	assert.Equal(t, "42", rx.Params["id"])
	assert.Contains(t, rx.Target(), "42")
}

// A route combining SetPrefix with a pattern that carries a literal
// segment beyond the prefix must still fast-reject-and-match against the
// full, unstripped request path: startWith/startSegment are derived from
// the pattern before the prefix is stripped for regex compilation
// (route.c's finalizePattern ordering), not after.
func TestDispatchPrefixWithLiteralPattern(t *testing.T) {
	h := NewHost("default")
	route := NewRoute(nil)
	route.Name = "api-profile"
	route.SetPrefix("/api")
	route.SetPattern(`/api/users/{id=[0-9]+}/profile`)
	route.SetTarget(TargetRun, "profile-${id}")
	route.SetHandler(HandlerFunc{HandlerName: "test"})
	require.NoError(t, route.Finalize())
	require.NoError(t, h.AddRoute(route))

	rx := newRX("GET", "/api/users/42/profile")
	binding, err := h.Dispatch(rx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "api-profile", binding.Route.Name)
	assert.Equal(t, "42", rx.Params["id"])
}

// Scenario F — Route rewrite bound: a "lang" update that rewrites the
// path and reroutes on every pass, forever.
func TestDispatchRewriteLoop(t *testing.T) {
	h := NewHost("default")

	// A single route whose "lang" update always finds a language (its own
	// default, unconditionally) and always has a non-empty suffix, so
	// every pass appends ".x" and reroutes back into the same route —
	// an unbounded loop MaxRewrites must cut off.
	routeA := NewRoute(nil)
	routeA.Name = "a"
	routeA.SetPattern(`^/a.*$`)
	routeA.SetDefaultLanguage("x")
	routeA.Languages = map[string]*Language{"x": {Suffix: "x"}}
	routeA.AddUpdate(&Update{Name: "lang"})
	routeA.SetTarget(TargetWrite, "a")
	require.NoError(t, routeA.Finalize())
	require.NoError(t, h.AddRoute(routeA))

	rx := newRX("GET", "/a")
	_, err := h.Dispatch(rx, nil, nil)
	require.Error(t, err)
	var rl *RewriteLoopError
	assert.ErrorAs(t, err, &rl)
}

func TestDispatchMethodMismatchHeadFallsBackToGet(t *testing.T) {
	h := NewHost("default")
	route := NewRoute(nil)
	route.Name = "get-only"
	route.SetPattern(`^/only$`)
	route.SetTarget(TargetWrite, "ok")
	require.NoError(t, route.Finalize())
	require.NoError(t, h.AddRoute(route))

	rx := newRX("HEAD", "/only")
	binding, err := h.Dispatch(rx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "get-only", binding.Route.Name)
}

func TestHeaderAndParamPatterns(t *testing.T) {
	h := NewHost("default")
	route := NewRoute(nil)
	route.Name = "api"
	route.SetPattern(`^/api$`)
	require.NoError(t, route.AddHeaderPattern("X-Api-Version", `^2$`))
	route.SetTarget(TargetWrite, "ok")
	require.NoError(t, route.Finalize())
	require.NoError(t, h.AddRoute(route))

	rx := newRX("GET", "/api")
	rx.Header.Set("X-Api-Version", "1")
	_, err := h.Dispatch(rx, nil, nil)
	assert.Error(t, err)

	rx2 := newRX("GET", "/api")
	rx2.Header.Set("X-Api-Version", "2")
	binding, err := h.Dispatch(rx2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "api", binding.Route.Name)
}

func TestWriteTargetEscapesByDefault(t *testing.T) {
	h := NewHost("default")
	route := NewRoute(nil)
	route.Name = "echo"
	route.SetPattern(`^/echo$`)
	route.SetTarget(TargetWrite, "<b>hi</b>")
	require.NoError(t, route.Finalize())
	require.NoError(t, h.AddRoute(route))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/echo", nil)
	rx := newRX("GET", "/echo")
	_, err := h.Dispatch(rx, rec, req)
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "&lt;b&gt;hi&lt;/b&gt;")
}

func TestAuthConditionRejectsWithoutCredentials(t *testing.T) {
	h := NewHost("default")
	route := NewRoute(nil)
	route.Name = "secure"
	route.SetPattern(`^/secure$`)
	route.Auth.Type = 1 // TypeBasic
	route.Auth.Store = 1 // StoreInternal
	route.AddCondition(&Condition{Name: "auth"})
	route.SetTarget(TargetWrite, "ok")
	require.NoError(t, route.Finalize())
	require.NoError(t, h.AddRoute(route))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/secure", nil)
	rx := newRX("GET", "/secure")
	_, err := h.Dispatch(rx, rec, req)
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
