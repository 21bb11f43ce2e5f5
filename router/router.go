package router

import (
	"net/http"
	"strings"

	"golang.org/x/net/idna"
)

// Router dispatches across one or more virtual Hosts keyed by request
// authority, falling back to a default host (spec §6.4 host.add_route /
// router.dispatch).
type Router struct {
	hosts map[string]*Host
	def   *Host
}

// NewRouter creates a Router with def as the host used when no
// authority-specific host matches.
func NewRouter(def *Host) *Router {
	return &Router{hosts: map[string]*Host{}, def: def}
}

// AddHost registers a virtual host by name (typically a Host header
// value).
func (rt *Router) AddHost(name string, h *Host) {
	rt.hosts[normalizeHostname(name)] = h
}

// HostFor resolves the Host that should serve authority, falling back to
// the default host.
func (rt *Router) HostFor(authority string) *Host {
	name, _, _ := strings.Cut(authority, ":")
	if h, ok := rt.hosts[normalizeHostname(name)]; ok {
		return h
	}
	return rt.def
}

// normalizeHostname lowercases name and, when it carries non-ASCII
// labels, converts it to its Punycode ("xn--") form via idna so a
// virtual host registered as either the Unicode or ASCII spelling of an
// internationalized domain matches the same entry (RFC 7540 §8.1.2.3's
// ":authority" is otherwise compared byte-for-byte).
func normalizeHostname(name string) string {
	name = strings.ToLower(name)
	if isASCII(name) {
		return name
	}
	if ascii, err := idna.Lookup.ToASCII(name); err == nil {
		return ascii
	}
	return name
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// Dispatch resolves the host for rx.Authority and runs its route
// matching algorithm.
func (rt *Router) Dispatch(rx *Request, w http.ResponseWriter, r *http.Request) (*HandlerBinding, error) {
	h := rt.HostFor(rx.Authority)
	if h == nil {
		return nil, &NoRouteError{Path: rx.PathInfo, Method: rx.Method}
	}
	return h.Dispatch(rx, w, r)
}
