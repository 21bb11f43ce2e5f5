package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/embedthis/httpcore/internal/log"
	"github.com/embedthis/httpcore/internal/metrics"
)

// MaxRewrites bounds reroute iterations per dispatch (spec §4.1.2,
// default 20).
const MaxRewrites = 20

// Host owns an ordered list of finalized routes, the routing unit spec
// §4.1.2 calls "host order".
type Host struct {
	Name   string
	Routes []*Route
	log    *log.Logger
}

// NewHost creates an empty route table.
func NewHost(name string) *Host {
	return &Host{Name: name, log: log.Default()}
}

// AddRoute finalizes (if needed) and appends route to the host's ordered
// list, then recomputes each route's next_group fast-reject index (spec
// §4.1.2 step a).
func (h *Host) AddRoute(route *Route) error {
	var err error
	if !route.Finalized() {
		err = route.Finalize()
	}
	route.index = len(h.Routes)
	h.Routes = append(h.Routes, route)
	h.recomputeGroups()
	return err
}

// recomputeGroups sets each route's nextGroup to the index of the first
// subsequent route whose startSegment differs from its own, letting the
// matcher skip an entire run of sibling routes on one fast-reject
// mismatch (spec §4.1.2 step a).
func (h *Host) recomputeGroups() {
	for i, r := range h.Routes {
		if r.startSegment == "" {
			r.nextGroup = -1
			continue
		}
		j := i + 1
		for j < len(h.Routes) && h.Routes[j].startSegment == r.startSegment {
			j++
		}
		if j >= len(h.Routes) {
			r.nextGroup = -1
		} else {
			r.nextGroup = j
		}
	}
}

// HandlerBinding is the result of a successful dispatch: the route that
// matched and the handler bound to serve it (spec §6.4).
type HandlerBinding struct {
	Route   *Route
	Handler Handler
}

// dispatchState carries the mutable, per-dispatch-attempt context threaded
// through condition/update/target evaluation and template expansion.
type dispatchState struct {
	rx       *Request
	response *Response
	route    *Route

	matchSubject string
	matchResult  []int
	rawQuery     string

	w http.ResponseWriter
	r *http.Request
}

func (s *dispatchState) responseHeader() http.Header {
	if s.w != nil {
		return s.w.Header()
	}
	return s.response.Header
}

func (s *dispatchState) responseWriter() http.ResponseWriter { return s.w }
func (s *dispatchState) httpRequest() *http.Request           { return s.r }

// Dispatch selects exactly one route and handler for rx, running its
// conditions, updates and target action (spec §4.1.2). w/r are optional
// (nil is accepted; the HTTP/2 engine passes its response recorder and a
// synthetic *http.Request) and are only consulted by conditions/targets
// that must write directly to the wire (auth challenges, redirect, write,
// secure's HSTS header).
func (h *Host) Dispatch(rx *Request, w http.ResponseWriter, r *http.Request) (*HandlerBinding, error) {
	resp := newResponse()
	ctx := &dispatchState{rx: rx, response: resp, w: w, r: r}
	if r != nil {
		ctx.rawQuery = r.URL.RawQuery
	}

	originalPath := rx.PathInfo
	rewrites := 0

	for i := 0; i < len(h.Routes); {
		route := h.Routes[i]
		ctx.route = route

		if !route.Finalized() || route.compiledPattern == nil {
			i++
			continue
		}
		if route.startSegment != "" && !strings.HasPrefix(rx.PathInfo, route.startSegment) {
			if route.nextGroup >= 0 {
				i = route.nextGroup
			} else {
				i++
			}
			continue
		}
		if route.startWith != "" && !strings.HasPrefix(rx.PathInfo, route.startWith) {
			i++
			continue
		}

		stripped := rx.PathInfo
		if route.prefix != "" {
			if !strings.HasPrefix(stripped, route.prefix) {
				i++
				continue
			}
			stripped = stripped[len(route.prefix):]
		}

		loc := route.compiledPattern.FindStringSubmatchIndex(stripped)
		matched := loc != nil
		if route.negate {
			matched = !matched
			if matched {
				loc = []int{0, len(stripped)}
			}
		}
		if !matched {
			i++
			continue
		}
		ctx.matchSubject = stripped
		ctx.matchResult = loc

		if !route.AcceptsMethod(rx.Method) {
			i++
			continue
		}

		if !headersMatch(route, rx) || !paramsMatch(route, rx) {
			i++
			continue
		}

		rerouted := false
		rejected := false
		for _, cond := range route.conditions {
			res, err := evalCondition(ctx, route, cond)
			if err != nil {
				h.log.WithFields(log.Fields{"route": route.Name, "condition": cond.Name, "err": err}).
					Warn("router: condition error")
			}
			switch res {
			case CondReject:
				rejected = true
			case CondReroute:
				rerouted = true
			}
			if rejected || rerouted {
				break
			}
		}
		if rejected {
			i++
			continue
		}
		if rerouted {
			rewrites++
			metrics.RouteRewritesTotal.Inc()
			if rewrites > MaxRewrites {
				return nil, &RewriteLoopError{Path: originalPath}
			}
			i = 0
			continue
		}

		for _, upd := range route.updates {
			res, err := runUpdate(ctx, route, upd)
			if err != nil {
				h.log.WithFields(log.Fields{"route": route.Name, "update": upd.Name, "err": err}).
					Warn("router: update error")
			}
			if res == UpdateReroute {
				rerouted = true
				break
			}
		}
		if rerouted {
			rewrites++
			metrics.RouteRewritesTotal.Inc()
			if rewrites > MaxRewrites {
				return nil, &RewriteLoopError{Path: originalPath}
			}
			i = 0
			continue
		}

		extractTokens(route, ctx)

		res, err := applyTarget(ctx, route)
		if err != nil {
			h.log.WithFields(log.Fields{"route": route.Name, "err": err}).Warn("router: target error")
		}
		if res != CondOK {
			i++
			continue
		}

		binding := selectHandler(route, rx)
		if binding == nil && ctx.response.Finalized {
			// close/redirect/write already produced the response; no
			// content handler is needed, so bind the built-in pass handler.
			binding = &HandlerBinding{Route: route, Handler: passHandler}
		}
		if binding == nil {
			return nil, fmt.Errorf("router: no handler bound for route %q", route.Name)
		}
		rx.route = route
		return binding, nil
	}

	return nil, &NoRouteError{Path: originalPath, Method: rx.Method}
}

func headersMatch(route *Route, rx *Request) bool {
	for name, re := range route.headerPatterns {
		if !re.MatchString(rx.Header.Get(name)) {
			return false
		}
	}
	return true
}

func paramsMatch(route *Route, rx *Request) bool {
	for name, re := range route.paramPatterns {
		if !re.MatchString(rx.Params[name]) {
			return false
		}
	}
	return true
}

// extractTokens copies the route's named capture groups into rx.Params
// (spec §4.1.2 step i).
func extractTokens(route *Route, ctx *dispatchState) {
	for idx, name := range route.tokens {
		group := idx + 1
		gi := group * 2
		if gi+1 < len(ctx.matchResult) && ctx.matchResult[gi] >= 0 {
			ctx.rx.Params[name] = ctx.matchSubject[ctx.matchResult[gi]:ctx.matchResult[gi+1]]
		}
	}
}

// selectHandler picks a handler per spec §4.1.2 step k: the pinned
// handler if any; else the first candidate whose Match accepts; else an
// extension-map lookup by rx.Ext falling back to the empty-extension
// entry. TRACE always binds to the built-in pass handler.
func selectHandler(route *Route, rx *Request) *HandlerBinding {
	if rx.Method == "TRACE" {
		return &HandlerBinding{Route: route, Handler: passHandler}
	}
	if route.handler != nil {
		return &HandlerBinding{Route: route, Handler: route.handler}
	}
	for _, cand := range route.handlers {
		if cand.Match(rx) {
			return &HandlerBinding{Route: route, Handler: cand}
		}
	}
	if h, ok := route.extensions[rx.Ext]; ok {
		return &HandlerBinding{Route: route, Handler: h}
	}
	if h, ok := route.extensions[""]; ok {
		return &HandlerBinding{Route: route, Handler: h}
	}
	return nil
}

// NoRouteError is returned when no route binds within MaxRewrites; the
// caller should respond 405 if any route matched the path but not the
// method, 500 otherwise (spec §4.1.2 closing paragraph).
type NoRouteError struct {
	Path   string
	Method string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("router: no route matched %s %s", e.Method, e.Path)
}

// RewriteLoopError is the RewriteLoop taxonomy entry (spec §4.1.9, §7):
// more than MaxRewrites reroutes occurred.
type RewriteLoopError struct {
	Path string
}

func (e *RewriteLoopError) Error() string {
	return fmt.Sprintf("router: rewrite loop exceeded %d iterations starting at %s", MaxRewrites, e.Path)
}
