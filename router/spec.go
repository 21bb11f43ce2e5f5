package router

import "fmt"

// RouteSpec is a declarative, serialization-friendly description of one
// route, the shape a config loader builds instead of chaining Route's
// Set*/Add* calls by hand (spec §4.5's "`[]router.RouteSpec` via a Go
// init function"). For write/redirect targets, TargetArg, when it starts
// with a leading integer, carries an explicit response status the way the
// original route blocks write "200 text/plain" style target lines (parsed
// by parseResponseStatus).
type RouteSpec struct {
	Name    string
	Parent  string // Name of an earlier spec in the same BuildHost call to inherit from, "" for a root route
	Pattern string
	Prefix  string
	Methods string // e.g. "GET,POST"; empty keeps the GET-only default

	Target     string // target rule keyword: "run", "close", "redirect", "write"
	TargetArg  string // e.g. a "run" target template, a redirect URI, or "-r <body>"

	Dir string // document root for "run" targets served by FileContentHandler
}

// targetRuleByName maps the RouteSpec.Target keyword to a TargetRule, the
// Go equivalent of the original route block's bare "close"/"redirect"/
// "write"/"run" directive names.
func targetRuleByName(name string) (TargetRule, bool) {
	switch name {
	case "", "run":
		return TargetRun, true
	case "close":
		return TargetClose, true
	case "redirect":
		return TargetRedirect, true
	case "write":
		return TargetWrite, true
	default:
		return 0, false
	}
}

// BuildRoute turns a RouteSpec into a finalized *Route rooted at parent
// (nil for a root route). It is the config-file counterpart to
// hand-chaining Route's Set*/Add* methods, splitting a leading status
// code off write/redirect target args with parseResponseStatus exactly
// as the original route block grammar does.
func BuildRoute(parent *Route, spec RouteSpec) (*Route, error) {
	rule, ok := targetRuleByName(spec.Target)
	if !ok {
		return nil, &ConfigError{Route: spec.Name, Err: fmt.Errorf("unknown target rule %q", spec.Target)}
	}

	r := NewRoute(parent)
	r.Name = spec.Name
	r.SetPattern(spec.Pattern)
	if spec.Prefix != "" {
		r.SetPrefix(spec.Prefix)
	}
	if spec.Methods != "" {
		r.SetMethods(spec.Methods)
	}
	if spec.Dir != "" {
		r.Dir = spec.Dir
	}

	arg := spec.TargetArg
	if rule == TargetWrite || rule == TargetRedirect {
		if status, rest := parseResponseStatus(arg); status != 0 {
			r.SetResponseStatus(status)
			arg = rest
		}
	}
	r.SetTarget(rule, arg)

	if err := r.Finalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// BuildHost builds a Host named name from specs, each compiled with
// BuildRoute and added in order (spec §4.1.2's "routes tried in
// declaration order"). The first spec that fails to compile aborts the
// whole host, matching the config-time fail-fast the original route
// table loader performs. A spec naming a Parent inherits that earlier
// spec's Route (httpCreateInheritedRoute's copy-on-write, route.go's
// NewRoute(parent)) instead of starting from the route defaults.
func BuildHost(name string, specs []RouteSpec) (*Host, error) {
	h := NewHost(name)
	byName := make(map[string]*Route, len(specs))
	for _, spec := range specs {
		var parent *Route
		if spec.Parent != "" {
			parent = byName[spec.Parent]
			if parent == nil {
				return nil, &ConfigError{Route: spec.Name, Err: fmt.Errorf("unknown parent route %q", spec.Parent)}
			}
		}
		route, err := BuildRoute(parent, spec)
		if err != nil {
			return nil, err
		}
		byName[spec.Name] = route
		if err := h.AddRoute(route); err != nil {
			return nil, err
		}
	}
	return h, nil
}
