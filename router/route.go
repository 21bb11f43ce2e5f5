// Package router implements pattern-based URI matching, inherited route
// trees, conditions/updates/targets, and authentication integration (spec
// §4.1). Grounded on original_source/src/route.c, reimplemented with Go's
// regexp instead of PCRE (no (?R) or back-references are used here, per
// spec §9's regex-engine note) and explicit copy-on-write slices/maps
// instead of the C "manage"/mark-sweep callbacks.
package router

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/embedthis/httpcore/auth"
	"github.com/embedthis/httpcore/internal/log"
)

// TargetRule is the route's terminal action once all conditions/updates
// pass (spec §4.1.6).
type TargetRule int

const (
	TargetRun TargetRule = iota
	TargetClose
	TargetRedirect
	TargetWrite
)

// Handler is the terminal stage that produces a response for a matched
// request (spec GLOSSARY). httpcore only binds a Handler; it never
// implements one — the HTTP/1.x parser, static-file handler, etc. are
// external collaborators (spec §1).
type Handler interface {
	Name() string
	// Match reports whether this handler will accept the request, used
	// when a route has several candidate handlers instead of one pinned
	// handler (spec §4.1.2 step k).
	Match(rx *Request) bool
}

// HandlerFunc adapts a bare match predicate to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	MatchFunc   func(rx *Request) bool
}

func (h HandlerFunc) Name() string            { return h.HandlerName }
func (h HandlerFunc) Match(rx *Request) bool  { return h.MatchFunc == nil || h.MatchFunc(rx) }

// passHandler is the built-in handler TRACE requests always bind to (spec
// §4.1.2 step k).
var passHandler Handler = HandlerFunc{HandlerName: "pass", MatchFunc: func(*Request) bool { return true }}

// Route is an immutable-after-finalize description of how to match and
// dispatch a class of requests (spec §3.1).
type Route struct {
	Name string

	pattern         string
	prefix          string
	startSegment    string
	startWith       string
	compiledPattern *regexp.Regexp
	tokens          []string
	template        string
	negate          bool // HTTP_ROUTE_NOT

	methods map[string]struct{}

	handler    Handler
	handlers   []Handler
	extensions map[string]Handler

	headerPatterns map[string]*regexp.Regexp
	paramPatterns  map[string]*regexp.Regexp

	conditions []*Condition
	updates    []*Update

	targetRule TargetRule
	targetArg  string

	responseStatus int

	Auth *auth.Auth

	vars map[string]string

	Dir             string
	Indicies        []string
	defaultLanguage string
	Languages       map[string]*Language
	ExtMap    map[string][]string // ext -> alternative extensions (gzip/min)
	Limits    Limits

	MaxWorkers int
	Lifespan   int

	parent *Route

	nextGroup int // index of the first later route with a different startSegment, -1 if none
	index     int // this route's index in its host's list, set by Host.AddRoute

	mu        sync.Mutex
	finalized bool
	mappings  map[string]string // filemap cache (spec §4.1.8)

	log *log.Logger
}

// Language is a language->path/suffix mapping entry (spec §3.1 languages).
type Language struct {
	Suffix string
	Path   string
	Flags  int
}

// Limits carries per-route overrides of connection/body limits; the
// concrete numeric fields are intentionally left to the embedding
// application (spec treats limits as an opaque per-route override bag).
type Limits struct {
	MaxBody      int64
	MaxHeader    int64
	ReceiveTimeoutMS int64
}

// NewRoute creates a root route (httpCreateRoute), or a route cloned from
// parent (httpCreateInheritedRoute) when parent is non-nil. Collection
// fields alias the parent's until this route mutates them (copy-on-write,
// spec §3.1 invariants / §9 design notes).
func NewRoute(parent *Route) *Route {
	r := &Route{
		methods:    map[string]struct{}{},
		extensions: map[string]Handler{},
		vars:       map[string]string{},
		Languages:  map[string]*Language{},
		ExtMap:     map[string][]string{},
		mappings:   map[string]string{},
		targetRule: TargetRun,
		log:        log.Default(),
		nextGroup:  -1,
	}
	r.methods["GET"] = struct{}{}
	if parent == nil {
		r.Auth = auth.New()
		r.Dir = "."
		return r
	}
	r.parent = parent
	r.pattern = parent.pattern
	r.prefix = parent.prefix
	r.methods = parent.methods
	r.handler = parent.handler
	r.handlers = parent.handlers
	r.extensions = parent.extensions
	r.conditions = parent.conditions
	r.updates = parent.updates
	r.targetRule = parent.targetRule
	r.targetArg = parent.targetArg
	r.Auth = auth.NewInherited(parent.Auth)
	r.vars = parent.vars
	r.Dir = parent.Dir
	r.Indicies = parent.Indicies
	r.Languages = parent.Languages
	r.ExtMap = parent.ExtMap
	r.Limits = parent.Limits
	r.MaxWorkers = parent.MaxWorkers
	r.Lifespan = parent.Lifespan
	r.log = parent.log
	return r
}

// graduateMethods clones methods the first time this route mutates it
// while still sharing its parent's set (copy-on-write, route.c's
// GRADUATE_HASH).
func (r *Route) graduateMethods() {
	if r.parent != nil && sameMethodSet(r.methods, r.parent.methods) {
		cloned := make(map[string]struct{}, len(r.methods))
		for k := range r.methods {
			cloned[k] = struct{}{}
		}
		r.methods = cloned
	}
}

func sameMethodSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// SetPattern sets the route's match pattern (§4.1.3 grammar); compilation
// is deferred to Finalize.
func (r *Route) SetPattern(pattern string) *Route {
	r.pattern = pattern
	return r
}

// SetPrefix sets the literal path prefix stripped before matching and
// re-prepended by template expansion's leading "~".
func (r *Route) SetPrefix(prefix string) *Route {
	r.prefix = prefix
	return r
}

// SetNegate inverts the pattern match (HTTP_ROUTE_NOT, spec §4.1.2 step d).
func (r *Route) SetNegate(v bool) *Route { r.negate = v; return r }

// SetMethods parses a comma/whitespace separated method list, normalizing
// "ALL" (or "*") to the any-method sentinel (spec §6.2).
func (r *Route) SetMethods(spec string) *Route {
	r.graduateMethods()
	r.methods = map[string]struct{}{}
	for _, m := range splitMethods(spec) {
		if m == "ALL" {
			m = "*"
		}
		r.methods[m] = struct{}{}
	}
	return r
}

func splitMethods(s string) []string {
	var out []string
	start := -1
	for i, c := range s {
		isSep := c == ',' || c == ' ' || c == '\t'
		if isSep {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// AcceptsMethod reports whether method matches this route's method set,
// preserving the permissive HEAD-against-GET fallback documented in spec
// §3.1/§9 ("preserve the permissive behavior and document it").
func (r *Route) AcceptsMethod(method string) bool {
	if _, ok := r.methods["*"]; ok {
		return true
	}
	if _, ok := r.methods[method]; ok {
		return true
	}
	if method == "HEAD" {
		_, ok := r.methods["GET"]
		return ok
	}
	return false
}

// SetHandler pins a single handler, bypassing the match-callback/extension
// lookup in step k.
func (r *Route) SetHandler(h Handler) *Route { r.handler = h; return r }

// AddHandler appends a candidate handler tried in order via its Match
// callback.
func (r *Route) AddHandler(h Handler) *Route {
	r.handlers = append(r.handlers, h)
	return r
}

// SetExtensionHandler binds ext (without leading dot; "" for the no-
// extension fallback) to a handler.
func (r *Route) SetExtensionHandler(ext string, h Handler) *Route {
	if r.parent != nil && sameExtMap(r.extensions, r.parent.extensions) {
		cloned := make(map[string]Handler, len(r.extensions))
		for k, v := range r.extensions {
			cloned[k] = v
		}
		r.extensions = cloned
	}
	r.extensions[ext] = h
	return r
}

func sameExtMap(a, b map[string]Handler) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// AddHeaderPattern requires the named request header to match pattern
// (spec §4.1.2 step f); evaluated before conditions.
func (r *Route) AddHeaderPattern(header, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if r.headerPatterns == nil {
		r.headerPatterns = map[string]*regexp.Regexp{}
	}
	r.headerPatterns[header] = re
	return nil
}

// AddParamPattern requires the named form/query parameter to match
// pattern (spec §4.1.2 step f).
func (r *Route) AddParamPattern(name, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if r.paramPatterns == nil {
		r.paramPatterns = map[string]*regexp.Regexp{}
	}
	r.paramPatterns[name] = re
	return nil
}

// AddCondition appends a named condition to this route (spec §4.1.4).
func (r *Route) AddCondition(c *Condition) *Route {
	r.conditions = append(append([]*Condition{}, r.conditions...), c)
	return r
}

// AddUpdate appends a named update to this route (spec §4.1.5).
func (r *Route) AddUpdate(u *Update) *Route {
	r.updates = append(append([]*Update{}, r.updates...), u)
	return r
}

// SetTarget sets the terminal target rule and its template parameter
// (spec §4.1.6).
func (r *Route) SetTarget(rule TargetRule, arg string) *Route {
	r.targetRule = rule
	r.targetArg = arg
	return r
}

// SetResponseStatus sets the status code used by redirect/write targets.
func (r *Route) SetResponseStatus(code int) *Route { r.responseStatus = code; return r }

// SetVar sets an environment-like variable consulted during "${TOKEN}"
// template expansion.
func (r *Route) SetVar(key, value string) *Route {
	if r.parent != nil && sameVarMap(r.vars, r.parent.vars) {
		cloned := make(map[string]string, len(r.vars))
		for k, v := range r.vars {
			cloned[k] = v
		}
		r.vars = cloned
	}
	r.vars[key] = value
	return r
}

func sameVarMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// SetDefaultLanguage sets the language tag used when "lang" can't match
// the Accept-Language header against any configured language.
func (r *Route) SetDefaultLanguage(tag string) *Route { r.defaultLanguage = tag; return r }

// DefaultLanguage returns the configured default language, "en" if unset.
func (r *Route) DefaultLanguage() string {
	if r.defaultLanguage == "" {
		return "en"
	}
	return r.defaultLanguage
}

// Finalize compiles the pattern and derives the link-generation template.
// A route that fails to compile is still constructed (spec §4.1.9) but
// records the error and can never match (Dispatch skips a route with no
// compiled pattern).
func (r *Route) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil
	}
	if err := finalizePattern(r); err != nil {
		r.log.WithFields(log.Fields{"route": r.Name, "pattern": r.pattern}).
			WithError(err).Warn("route pattern failed to compile; route marked inert")
		r.finalized = true
		return &ConfigError{Route: r.Name, Err: err}
	}
	r.template = buildTemplate(r.pattern)
	r.finalized = true
	return nil
}

// Finalized reports whether Finalize has run.
func (r *Route) Finalized() bool { return r.finalized }

// ConfigError is the RouteConfigError taxonomy entry (spec §7): a regex
// compile failure or unknown target rule, reported at configuration time.
type ConfigError struct {
	Route string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("router: route %q configuration error: %v", e.Route, e.Err)
}
func (e *ConfigError) Unwrap() error { return e.Err }
