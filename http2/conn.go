package http2

import (
	"bytes"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/embedthis/httpcore/http2/hpack"
	"github.com/embedthis/httpcore/internal/log"
	"github.com/embedthis/httpcore/internal/metrics"
	"github.com/embedthis/httpcore/router"
)

// VerboseLogs mirrors the teacher's package-level debug switch
// (_examples/baranov1ch-http2/server.go); httpcore routes it through
// logrus instead of the standard log package (see internal/log).
var VerboseLogs = false

// ContentHandler produces the bytes of a response once the router has
// picked a route and target but left content generation to the caller
// (spec §4.1 Responsibility: httpcore only binds a Handler, it never
// implements one). The HTTP/2 engine needs *some* default so requests
// that reach a `run` target produce a response; FileContentHandler below
// is that default, grounded on the router's own file-mapping step.
type ContentHandler interface {
	Serve(rx *router.Request) (status int, header http.Header, body []byte)
}

// FileContentHandler serves rx.Target() off disk using the route's own
// file-mapping rules (spec §4.1.8), the same minimal "static handler"
// role the spec calls out as an external collaborator.
type FileContentHandler struct{}

func (FileContentHandler) Serve(rx *router.Request) (int, http.Header, []byte) {
	route := rx.Route()
	if route == nil {
		return http.StatusNotFound, http.Header{}, []byte("not found")
	}
	path, err := router.MapFile(route, rx)
	if err != nil {
		return http.StatusNotFound, http.Header{}, []byte("not found")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return http.StatusNotFound, http.Header{}, []byte("not found")
	}
	h := http.Header{}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		h.Set("Content-Type", ct)
	}
	if et := rx.ETag(); et != "" {
		h.Set("ETag", et)
	}
	if rx.GzipApplied() {
		h.Set("Content-Encoding", "gzip")
	}
	return http.StatusOK, h, data
}

// Conn is one HTTP/2 connection (spec §3.2 "Connection"). It is driven by
// a single goroutine (Serve), matching spec §5's single-threaded
// cooperative event-loop model; this is a deliberate simplification of
// the teacher's multi-goroutine/channel design
// (_examples/baranov1ch-http2/server.go's readFrames/writeHeaderCh/
// windowUpdateCh), justified because the spec mandates exactly one
// event loop per transport and bodies are bounded, reassembled buffers
// rather than a streaming pipe.
type Conn struct {
	nc      net.Conn
	framer  *Framer
	router  *router.Router
	log     *log.Logger
	Handler ContentHandler

	local Settings
	peer  Settings

	hpackEnc *hpack.Encoder
	hpackDec *hpack.Decoder

	streams          map[uint32]*stream
	lastPeerStreamID uint32

	connWindowOut *flow
	connWindowIn  *flow

	goAwaySent     bool
	goAwayReceived bool

	curHeaderStreamID uint32
	curReq            requestParam
}

// NewConn wraps nc (already past ALPN/NPN negotiation) as an HTTP/2
// connection dispatching matched requests against rt.
func NewConn(nc net.Conn, rt *router.Router) *Conn {
	local := defaultSettings()
	c := &Conn{
		nc:            nc,
		framer:        NewFramer(nc, nc),
		router:        rt,
		log:           log.Default(),
		Handler:       FileContentHandler{},
		local:         local,
		peer:          defaultSettings(),
		streams:       make(map[uint32]*stream),
		connWindowOut: newFlow(int32(defaultSettings().InitialWindowSize)),
		connWindowIn:  newFlow(int32(local.InitialWindowSize)),
	}
	c.hpackEnc = hpack.NewEncoder(int(local.HeaderTableSize))
	c.hpackDec = hpack.NewDecoder(int(local.HeaderTableSize))
	return c
}

// Serve runs the connection's preface/settings handshake (spec §4.2.2)
// then its frame-dispatch loop until a connection-fatal error or a
// GOAWAY-triggered teardown.
func (c *Conn) Serve() error {
	defer c.nc.Close()

	preface := make([]byte, len(clientPrefaceBytes))
	if _, err := io.ReadFull(c.nc, preface); err != nil {
		return err
	}
	if !bytes.Equal(preface, clientPrefaceBytes) {
		return ConnectionError(ErrCodeProtocol)
	}

	f, err := c.framer.ReadFrame()
	if err != nil {
		return err
	}
	sf, ok := f.(*SettingsFrame)
	if !ok {
		return ConnectionError(ErrCodeProtocol)
	}
	if err := c.applyPeerSettings(sf); err != nil {
		return c.teardown(err)
	}

	if err := c.framer.WriteSettings(c.local.asFrameSettings()...); err != nil {
		return err
	}
	if err := c.framer.WriteSettingsAck(); err != nil {
		return err
	}

	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			return err
		}
		if err := c.processFrame(f); err != nil {
			if terr := c.teardown(err); terr != nil {
				return terr
			}
		}
		if c.goAwaySent && len(c.streams) == 0 {
			return nil
		}
	}
}

// teardown reacts to a processFrame error per spec §4.2.7: a StreamError
// resets just that stream and returns nil so Serve's loop continues;
// anything else is connection-fatal, sent as GOAWAY, and returned so
// Serve stops.
func (c *Conn) teardown(err error) error {
	switch e := err.(type) {
	case StreamError:
		if _, ok := c.streams[e.StreamID]; ok {
			delete(c.streams, e.StreamID)
			metrics.ActiveStreams.Dec()
		}
		return c.framer.WriteRSTStream(e.StreamID, uint32(e.Code))
	case ConnectionError:
		c.goAway(ErrCode(e))
		return error(e)
	case goAwayFlowError:
		c.goAway(ErrCodeFlowControl)
		return err
	default:
		c.goAway(ErrCodeInternal)
		return err
	}
}

func (c *Conn) goAway(code ErrCode) {
	c.goAwaySent = true
	_ = c.framer.WriteGoAway(c.lastPeerStreamID, code, nil)
}

func (c *Conn) processFrame(f Frame) error {
	if c.curHeaderStreamID != 0 {
		cf, ok := f.(*ContinuationFrame)
		if !ok || cf.Header().StreamID != c.curHeaderStreamID {
			return ConnectionError(ErrCodeProtocol)
		}
	}
	metrics.FramesTotal.WithLabelValues(f.Header().Type.String()).Inc()

	switch fr := f.(type) {
	case *SettingsFrame:
		if fr.IsAck() {
			return nil
		}
		return c.applyPeerSettings(fr)
	case *HeadersFrame:
		return c.processHeaders(fr)
	case *ContinuationFrame:
		return c.processContinuation(fr.Header().StreamID, fr.HeaderBlockFragment(), fr.HeadersEnded())
	case *DataFrame:
		return c.processData(fr)
	case *WindowUpdateFrame:
		return c.processWindowUpdate(fr)
	case *PingFrame:
		if fr.Header().Flags.Has(FlagPingAck) {
			return nil
		}
		if fr.Header().StreamID != 0 {
			return ConnectionError(ErrCodeProtocol)
		}
		return c.framer.WritePing(true, fr.Data)
	case *RSTStreamFrame:
		if st := c.streams[fr.Header().StreamID]; st != nil {
			st.onReset()
		}
		return nil
	case *GoAwayFrame:
		c.goAwayReceived = true
		for id, st := range c.streams {
			if id > fr.LastStreamID {
				st.onReset()
				delete(c.streams, id)
				metrics.ActiveStreams.Dec()
			}
		}
		return nil
	case *PriorityFrame:
		return nil // priority is accepted but has no scheduling effect
	default:
		return nil // unknown/push-promise frames are ignored
	}
}

func (c *Conn) applyPeerSettings(sf *SettingsFrame) error {
	return sf.ForeachSetting(func(s Setting) error {
		delta, err := c.peer.applySetting(s)
		if err != nil {
			return err
		}
		if delta != 0 {
			for _, st := range c.streams {
				if !st.windowOut.add(delta) {
					return ConnectionError(ErrCodeFlowControl)
				}
			}
			for _, st := range c.streams {
				if len(st.pendingOut) > 0 {
					if err := c.flushPendingData(st); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (c *Conn) processHeaders(f *HeadersFrame) error {
	id := f.Header().StreamID
	if c.goAwaySent {
		return nil
	}
	if c.goAwayReceived {
		// The peer has announced it is going away; refuse any stream
		// the peer tries to start past that point (spec §4.2.7's GOAWAY
		// in-flight-stream scenario) rather than silently growing the
		// stream table on a connection that's already tearing down.
		return StreamError{id, ErrCodeRefusedStream}
	}
	if id%2 != 1 || id <= c.lastPeerStreamID || c.curHeaderStreamID != 0 {
		return ConnectionError(ErrCodeProtocol)
	}
	c.lastPeerStreamID = id

	st := newStream(id, int32(c.peer.InitialWindowSize), int32(c.local.InitialWindowSize))
	metrics.ActiveStreams.Inc()
	if f.Header().Flags.Has(FlagHeadersEndStream) {
		st.onRecvEndStream()
	}
	c.streams[id] = st
	c.curReq = newRequestParam()

	return c.processHeaderBlockFragment(st, f.HeaderBlockFragment(), f.HeadersEnded())
}

func (c *Conn) processContinuation(streamID uint32, frag []byte, end bool) error {
	st, ok := c.streams[streamID]
	if !ok || c.curHeaderStreamID != st.id {
		return ConnectionError(ErrCodeProtocol)
	}
	return c.processHeaderBlockFragment(st, frag, end)
}

func (c *Conn) processHeaderBlockFragment(st *stream, frag []byte, end bool) error {
	c.curHeaderStreamID = st.id
	pos := 0
	for pos < len(frag) {
		field, ok, n, err := c.hpackDec.DecodeField(frag[pos:])
		if err != nil {
			return ConnectionError(ErrCodeCompression)
		}
		pos += n
		if ok {
			c.curReq.onHeaderField(field.Name, field.Value)
		}
	}
	if !end {
		return nil
	}
	c.curHeaderStreamID = 0
	c.hpackDec.Reset()

	rp := c.curReq
	c.curReq = requestParam{}
	if !rp.valid() {
		return StreamError{st.id, ErrCodeProtocol}
	}
	rx, req := buildRequest(&rp, c.nc.RemoteAddr().String(), nil)
	st.rx = rx
	st.req = req

	if st.state == stateHalfClosedRemote || st.state == stateClosed {
		return c.finishRequest(st)
	}
	return nil
}

func (c *Conn) processData(f *DataFrame) error {
	id := f.Header().StreamID
	st, ok := c.streams[id]
	if !ok || !st.acceptsData() {
		return StreamError{id, ErrCodeStreamClosed}
	}
	st.writeBody(f.Data())
	if !c.connWindowIn.add(-int32(len(f.Data()))) {
		return goAwayFlowError{}
	}
	if !st.windowIn.add(-int32(len(f.Data()))) {
		return StreamError{id, ErrCodeFlowControl}
	}
	if f.Header().Flags.Has(FlagDataEndStream) {
		st.onRecvEndStream()
		return c.finishRequest(st)
	}
	return nil
}

func (c *Conn) processWindowUpdate(f *WindowUpdateFrame) error {
	if f.Header().StreamID != 0 {
		st := c.streams[f.Header().StreamID]
		if st == nil {
			return nil
		}
		if !st.windowOut.add(int32(f.Increment)) {
			return StreamError{f.Header().StreamID, ErrCodeFlowControl}
		}
		return c.flushPendingData(st)
	}
	if !c.connWindowOut.add(int32(f.Increment)) {
		return goAwayFlowError{}
	}
	for _, st := range c.streams {
		if len(st.pendingOut) > 0 {
			if err := c.flushPendingData(st); err != nil {
				return err
			}
		}
	}
	return nil
}

// finishRequest runs the router against the now-complete stream and
// writes a response, synchronously (spec §5's single event loop: no
// per-request goroutine).
func (c *Conn) finishRequest(st *stream) error {
	if st.rx == nil || st.req == nil {
		return StreamError{st.id, ErrCodeProtocol}
	}
	st.bodyMu.Lock()
	body := append([]byte(nil), st.body.Bytes()...)
	st.bodyMu.Unlock()
	rx := st.rx
	rx.Body = body

	// st.req is the *http.Request buildRequest derived from the same
	// pseudo-headers as rx (request.go's buildRequest), URL/RawQuery and
	// all; only its body, unknown until DATA reassembly completes, is
	// filled in here rather than rebuilding the request from rx.PathInfo.
	httpReq := st.req
	httpReq.Body = io.NopCloser(bytes.NewReader(body))
	httpReq.ContentLength = int64(len(body))

	rec := newResponseRecorder()
	binding, err := c.router.Dispatch(rx, rec, httpReq)
	if err != nil {
		return c.writeResponse(st, http.StatusInternalServerError, http.Header{}, []byte(err.Error()))
	}

	if rec.Code != 200 || rec.Body.Len() > 0 {
		return c.writeResponse(st, rec.Code, rec.Header(), rec.Body.Bytes())
	}

	if binding != nil && c.Handler != nil {
		status, header, body := c.Handler.Serve(rx)
		return c.writeResponse(st, status, header, body)
	}
	return c.writeResponse(st, http.StatusNotFound, http.Header{}, []byte("not found"))
}

func (c *Conn) writeResponse(st *stream, status int, header http.Header, body []byte) error {
	var buf []byte
	buf = c.hpackEnc.WriteField(buf, hpack.HeaderField{Name: ":status", Value: statusText(status)})
	for k, vv := range header {
		for _, v := range vv {
			buf = c.hpackEnc.WriteField(buf, hpack.HeaderField{Name: lowerHeaderName(k), Value: v})
		}
	}
	if err := c.framer.WriteHeaders(HeadersFrameParam{
		StreamID:      st.id,
		BlockFragment: buf,
		EndHeaders:    true,
		EndStream:     len(body) == 0,
	}); err != nil {
		return err
	}
	if len(body) == 0 {
		st.onSendEndStream()
		return nil
	}
	st.pendingOut = body
	return c.flushPendingData(st)
}

// flushPendingData sends as much of st.pendingOut as the connection and
// stream windows currently allow, stalling (returning with data still
// queued) if either window is exhausted. processWindowUpdate and
// applyPeerSettings call this again once credit arrives (spec §4.2.4).
// Per spec §8 Scenario C, the terminating END_STREAM is always its own
// zero-length DATA frame rather than piggybacked on the last chunk.
func (c *Conn) flushPendingData(st *stream) error {
	for len(st.pendingOut) > 0 {
		avail := st.windowOut.available()
		if c.connWindowOut.available() < avail {
			avail = c.connWindowOut.available()
		}
		if avail <= 0 {
			return nil // stalled; resumes on the next WINDOW_UPDATE
		}
		maxChunk := int32(c.peer.MaxFrameSize)
		if avail > maxChunk {
			avail = maxChunk
		}
		if int(avail) > len(st.pendingOut) {
			avail = int32(len(st.pendingOut))
		}
		chunk := st.pendingOut[:avail]
		st.windowOut.take(avail)
		c.connWindowOut.take(avail)
		st.pendingOut = st.pendingOut[avail:]

		if err := c.framer.WriteData(st.id, false, chunk); err != nil {
			return err
		}
	}
	st.onSendEndStream()
	return c.framer.WriteData(st.id, true, nil)
}

func statusText(code int) string {
	return itoa(code)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func lowerHeaderName(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
