package http2

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/embedthis/httpcore/router"
)

// requestParam accumulates pseudo-headers and regular headers across a
// HEADERS frame and any CONTINUATION frames until END_HEADERS, mirroring
// the teacher's requestParam (_examples/baranov1ch-http2/server.go).
type requestParam struct {
	header            http.Header
	method, path      string
	scheme, authority string
	sawRegularHeader  bool
	invalidHeader     bool
}

func newRequestParam() requestParam {
	return requestParam{header: make(http.Header)}
}

// onHeaderField folds one decoded HPACK field into rp, exactly as the
// teacher's onNewHeaderField does for its own requestParam.
func (rp *requestParam) onHeaderField(name, value string) {
	switch {
	case !validHeaderName(name) || !httpguts.ValidHeaderFieldValue(value):
		rp.invalidHeader = true
	case strings.HasPrefix(name, ":"):
		if rp.sawRegularHeader {
			rp.invalidHeader = true
			return
		}
		var dst *string
		switch name {
		case ":method":
			dst = &rp.method
		case ":path":
			dst = &rp.path
		case ":scheme":
			dst = &rp.scheme
		case ":authority":
			dst = &rp.authority
		default:
			rp.invalidHeader = true
			return
		}
		if *dst != "" {
			rp.invalidHeader = true
			return
		}
		*dst = value
	case name == "cookie":
		rp.sawRegularHeader = true
		if s, ok := rp.header["Cookie"]; ok && len(s) == 1 {
			s[0] = s[0] + "; " + value
		} else {
			rp.header.Add("Cookie", value)
		}
	default:
		rp.sawRegularHeader = true
		rp.header.Add(http.CanonicalHeaderKey(name), value)
	}
}

// validHeaderName applies httpguts' RFC 7230 token grammar, then HTTP/2's
// own additional constraint (RFC 7540 §8.1.2) that field names must be
// lowercase, mirroring the teacher's validHeader helper referenced but not
// defined in _examples/baranov1ch-http2/server.go.
func validHeaderName(name string) bool {
	// A pseudo-header's token is ":" plus a regular token (RFC 7540
	// §8.1.2.1); httpguts only knows the RFC 7230 grammar, so the leading
	// colon is stripped before handing the rest to it.
	token := name
	if strings.HasPrefix(token, ":") {
		token = token[1:]
	}
	if !httpguts.ValidHeaderFieldName(token) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c >= 'A' && c <= 'Z' {
			return false
		}
	}
	return true
}

// valid reports whether rp carries the mandatory pseudo-headers (spec
// §4.2.2 / RFC 7540 §8.1.2.3): exactly one each of method, path, scheme.
func (rp *requestParam) valid() bool {
	return !rp.invalidHeader && rp.method != "" && rp.path != "" &&
		(rp.scheme == "http" || rp.scheme == "https")
}

// buildRequest turns a completed requestParam plus the reassembled body
// into a *router.Request and a synthetic *http.Request, the latter only
// so conditions/targets that expect net/http types (auth challenges,
// redirects, the secure condition's HSTS header) keep working unchanged
// over HTTP/2 (spec §4.1: the router is transport-agnostic, but its
// condition table was written against http.Request/ResponseWriter).
func buildRequest(rp *requestParam, clientAddr string, body []byte) (*router.Request, *http.Request) {
	authority := rp.authority
	if authority == "" {
		authority = rp.header.Get("Host")
	}

	u := &url.URL{Scheme: rp.scheme, Host: authority, Path: rp.path}
	if i := strings.IndexByte(rp.path, '?'); i >= 0 {
		u.Path = rp.path[:i]
		u.RawQuery = rp.path[i+1:]
	}

	httpReq := &http.Request{
		Method:     rp.method,
		URL:        u,
		Header:     rp.header,
		Host:       authority,
		RemoteAddr: clientAddr,
		RequestURI: rp.path,
		Proto:      "HTTP/2.0",
		ProtoMajor: 2,
		ProtoMinor: 0,
	}

	rx := router.NewRequest(httpReq)
	rx.Body = body
	return rx, httpReq
}
