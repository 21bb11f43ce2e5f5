package router

import (
	"net/http"
	"net/url"
)

// Request is the router's view of an in-flight request (spec §3.2 "rx").
// It is constructed by the caller (the HTTP/2 engine or any other
// transport adapter) from the transport-level request and owned
// exclusively by that request for its lifetime (spec §5).
type Request struct {
	Method       string
	PathInfo     string
	Authority    string
	Scheme       string
	ClientAddr   string
	Header       http.Header
	Query        url.Values
	Params       map[string]string // route-captured tokens + form/query params
	Ext          string
	Body         []byte
	Username     string // set by the "auth" condition on success
	ErrorMsg     string // set by update command failures (spec §4.1.9)
	Language     string
	LanguageDir  string
	TLS          bool

	// target is the string set by the "run" target rule (spec §4.1.6);
	// file mapping (MapFile) reads from here.
	target string

	// filename/etag are populated by the file-mapping step (spec §4.1.8).
	filename string
	etag     string
	gzipped  bool

	route *Route
}

// NewRequest builds a Request from a stdlib *http.Request, the common
// entry point for an HTTP/1.x-style adapter; the HTTP/2 engine also uses
// it, after building a synthetic *http.Request from the stream's
// pseudo-headers (see http2/request.go).
func NewRequest(r *http.Request) *Request {
	rx := &Request{
		Method:     r.Method,
		PathInfo:   r.URL.Path,
		Authority:  r.Host,
		Scheme:     schemeOf(r),
		ClientAddr: r.RemoteAddr,
		Header:     r.Header,
		Query:      r.URL.Query(),
		Params:     map[string]string{},
		TLS:        r.TLS != nil,
	}
	rx.Ext = extOf(rx.PathInfo)
	return rx
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func extOf(path string) string {
	dot := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			break
		}
		if path[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return ""
	}
	return path[dot+1:]
}

// Target returns the string set by a "run" target's template expansion.
func (rx *Request) Target() string { return rx.target }

// Filename returns the resolved filesystem path computed by the
// file-mapping step (spec §4.1.8), empty until MapFile runs.
func (rx *Request) Filename() string { return rx.filename }

// ETag returns the "inode-size-mtime" style etag computed by MapFile.
func (rx *Request) ETag() string { return rx.etag }

// Route returns the route this request was bound to, set once Dispatch
// selects a handler. A caller that needs to invoke MapFile itself (an
// external content handler serving a `run` target, e.g. http2's
// FileContentHandler) uses this instead of re-running route matching.
func (rx *Request) Route() *Route { return rx.route }

// Response is the router's view of the in-progress response (spec §3.2
// "tx"): status, headers and a finalized flag set once a target rule has
// fully handled the request (write/close/redirect).
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	Finalized bool
}

func newResponse() *Response {
	return &Response{Header: http.Header{}}
}
