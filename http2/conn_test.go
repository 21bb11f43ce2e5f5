package http2

import (
	"net"
	"testing"

	"github.com/embedthis/httpcore/http2/hpack"
	"github.com/embedthis/httpcore/router"
)

// testHost builds a one-route table whose target writes body verbatim
// (router.TargetWrite with the "-r" raw prefix so html.EscapeString
// doesn't touch it), enough surface for driving a Conn end to end.
func testHost(t *testing.T, body string) *router.Host {
	t.Helper()
	route := router.NewRoute(nil)
	route.SetPattern(`^/$`)
	route.SetTarget(router.TargetWrite, "-r "+body)
	if err := route.Finalize(); err != nil {
		t.Fatalf("finalize route: %v", err)
	}
	host := router.NewHost("default")
	if err := host.AddRoute(route); err != nil {
		t.Fatalf("add route: %v", err)
	}
	return host
}

// dialTestConn runs a Conn over a net.Pipe and hands back the client side
// of the wire, already past writing the preface.
func dialTestConn(t *testing.T, rt *router.Router) (client *Framer, cliConn net.Conn, done chan error) {
	t.Helper()
	cli, srv := net.Pipe()
	c := NewConn(srv, rt)
	done = make(chan error, 1)
	go func() { done <- c.Serve() }()

	if _, err := cli.Write(clientPrefaceBytes); err != nil {
		t.Fatalf("write preface: %v", err)
	}
	return NewFramer(cli, cli), cli, done
}

// drainSettings reads frames until it has seen both the server's initial
// SETTINGS and its ack of the client's SETTINGS (spec §4.2.2 handshake).
func drainSettings(t *testing.T, client *Framer) {
	t.Helper()
	sawSettings, sawAck := false, false
	for i := 0; i < 4 && !(sawSettings && sawAck); i++ {
		f, err := client.ReadFrame()
		if err != nil {
			t.Fatalf("read handshake frame: %v", err)
		}
		sf, ok := f.(*SettingsFrame)
		if !ok {
			t.Fatalf("expected SETTINGS during handshake, got %T", f)
		}
		if sf.IsAck() {
			sawAck = true
		} else {
			sawSettings = true
		}
	}
	if !sawSettings || !sawAck {
		t.Fatalf("handshake incomplete: settings=%v ack=%v", sawSettings, sawAck)
	}
}

func encodeTestHeaders(kv ...string) []byte {
	enc := hpack.NewEncoder(4096)
	var buf []byte
	for i := 0; i+1 < len(kv); i += 2 {
		buf = enc.WriteField(buf, hpack.HeaderField{Name: kv[i], Value: kv[i+1]})
	}
	return buf
}

// TestRequestQueryStringReachesTemplate exercises the *http.Request that
// buildRequest derives (request.go) being reused as-is through
// finishRequest instead of reconstructed from rx.PathInfo: a :path with a
// query string must still populate ctx.rawQuery (dispatch.go) and so
// ${request:query} in a write target.
func TestRequestQueryStringReachesTemplate(t *testing.T) {
	route := router.NewRoute(nil)
	route.SetPattern(`^/search$`)
	route.SetTarget(router.TargetWrite, "-r q=${request:query}")
	if err := route.Finalize(); err != nil {
		t.Fatalf("finalize route: %v", err)
	}
	host := router.NewHost("default")
	if err := host.AddRoute(route); err != nil {
		t.Fatalf("add route: %v", err)
	}
	rt := router.NewRouter(host)

	client, cliConn, done := dialTestConn(t, rt)
	defer cliConn.Close()

	if err := client.WriteSettings(); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	drainSettings(t, client)

	block := encodeTestHeaders(":method", "GET", ":path", "/search?term=golang&page=2",
		":scheme", "http", ":authority", "example.com")
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write headers: %v", err)
	}

	if _, err := client.ReadFrame(); err != nil {
		t.Fatalf("read response headers: %v", err)
	}
	f, err := client.ReadFrame()
	if err != nil {
		t.Fatalf("read response data: %v", err)
	}
	df, ok := f.(*DataFrame)
	if !ok {
		t.Fatalf("expected DATA, got %T", f)
	}
	if got, want := string(df.Data()), "q=term=golang&page=2"; got != want {
		t.Fatalf("response body: got %q, want %q", got, want)
	}

	cliConn.Close()
	<-done
}

// TestScenarioC_FlowControlStallAndResume is spec §8 Scenario C: the peer
// advertises INITIAL_WINDOW_SIZE=10, the server has 25 bytes to send, it
// must emit exactly one 10-byte DATA frame, stall, then on
// WINDOW_UPDATE(stream=1, inc=15) emit the remaining 15 bytes followed by
// a zero-length END_STREAM DATA frame.
func TestScenarioC_FlowControlStallAndResume(t *testing.T) {
	body := "1234567890123456789012345" // 25 bytes
	rt := router.NewRouter(testHost(t, body))

	client, cliConn, done := dialTestConn(t, rt)
	defer cliConn.Close()

	if err := client.WriteSettings(Setting{ID: SettingInitialWindowSize, Val: 10}); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	drainSettings(t, client)

	block := encodeTestHeaders(":method", "GET", ":path", "/", ":scheme", "http", ":authority", "example.com")
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write headers: %v", err)
	}

	f, err := client.ReadFrame()
	if err != nil {
		t.Fatalf("read response headers: %v", err)
	}
	if _, ok := f.(*HeadersFrame); !ok {
		t.Fatalf("expected HEADERS, got %T", f)
	}

	f, err = client.ReadFrame()
	if err != nil {
		t.Fatalf("read first data: %v", err)
	}
	df, ok := f.(*DataFrame)
	if !ok {
		t.Fatalf("expected DATA, got %T", f)
	}
	if len(df.Data()) != 10 {
		t.Fatalf("first DATA frame: got %d bytes, want 10", len(df.Data()))
	}
	if df.Header().Flags.Has(FlagDataEndStream) {
		t.Fatalf("first DATA frame must not carry END_STREAM")
	}

	if err := client.WriteWindowUpdate(1, 15); err != nil {
		t.Fatalf("write window update: %v", err)
	}

	f, err = client.ReadFrame()
	if err != nil {
		t.Fatalf("read second data: %v", err)
	}
	df, ok = f.(*DataFrame)
	if !ok {
		t.Fatalf("expected DATA, got %T", f)
	}
	if len(df.Data()) != 15 {
		t.Fatalf("second DATA frame: got %d bytes, want 15", len(df.Data()))
	}
	if df.Header().Flags.Has(FlagDataEndStream) {
		t.Fatalf("second DATA frame must not carry END_STREAM")
	}

	f, err = client.ReadFrame()
	if err != nil {
		t.Fatalf("read terminating data: %v", err)
	}
	df, ok = f.(*DataFrame)
	if !ok {
		t.Fatalf("expected terminating DATA, got %T", f)
	}
	if len(df.Data()) != 0 || !df.Header().Flags.Has(FlagDataEndStream) {
		t.Fatalf("expected zero-length END_STREAM DATA frame, got %d bytes endStream=%v",
			len(df.Data()), df.Header().Flags.Has(FlagDataEndStream))
	}
}

// TestScenarioE_GoAwayInFlightStreams is spec §8 Scenario E: stream 1 and
// 3 are open; the peer sends GOAWAY(last=1); stream 1 (already complete)
// is unaffected, stream 3 is aborted, and a later HEADERS for stream 5 is
// refused without tearing down the connection.
func TestScenarioE_GoAwayInFlightStreams(t *testing.T) {
	rt := router.NewRouter(testHost(t, "ok"))

	client, cliConn, done := dialTestConn(t, rt)
	defer cliConn.Close()

	if err := client.WriteSettings(); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	drainSettings(t, client)

	block := encodeTestHeaders(":method", "GET", ":path", "/", ":scheme", "http", ":authority", "example.com")

	// Stream 1: headers carry END_STREAM, completes immediately.
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write stream 1 headers: %v", err)
	}
	for _, want := range []string{"HEADERS", "DATA", "DATA"} {
		f, err := client.ReadFrame()
		if err != nil {
			t.Fatalf("read stream 1 response: %v", err)
		}
		if f.Header().Type.String() != want {
			t.Fatalf("stream 1 response: got %s, want %s", f.Header().Type, want)
		}
	}

	// Stream 3: headers only, left open awaiting a body that never comes.
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 3, BlockFragment: block, EndStream: false, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write stream 3 headers: %v", err)
	}

	if err := client.WriteGoAway(1, ErrCodeNo, nil); err != nil {
		t.Fatalf("write goaway: %v", err)
	}

	// Stream 5 arrives after GOAWAY: refused, connection stays up.
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 5, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write stream 5 headers: %v", err)
	}

	f, err := client.ReadFrame()
	if err != nil {
		t.Fatalf("read rst_stream for stream 5: %v", err)
	}
	rf, ok := f.(*RSTStreamFrame)
	if !ok {
		t.Fatalf("expected RST_STREAM for stream 5, got %T", f)
	}
	if rf.Header().StreamID != 5 {
		t.Fatalf("RST_STREAM stream id: got %d, want 5", rf.Header().StreamID)
	}
	if rf.ErrCode != ErrCodeRefusedStream {
		t.Fatalf("RST_STREAM code: got %v, want REFUSED_STREAM", rf.ErrCode)
	}

	// The connection is still alive: a PING still gets a PONG back.
	var pingData [8]byte
	copy(pingData[:], "scenarioE")
	if err := client.WritePing(false, pingData); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	f, err = client.ReadFrame()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	pf, ok := f.(*PingFrame)
	if !ok || !pf.Header().Flags.Has(FlagPingAck) || pf.Data != pingData {
		t.Fatalf("expected PING ack echoing payload, got %+v", f)
	}

	cliConn.Close()
	<-done
}

// TestStreamIDMonotonicity is spec §8 invariant 2: last_peer_stream_id is
// monotonically non-decreasing; a HEADERS frame reusing or regressing a
// stream id is a connection error.
func TestStreamIDMonotonicity(t *testing.T) {
	rt := router.NewRouter(testHost(t, "ok"))

	client, cliConn, done := dialTestConn(t, rt)
	defer cliConn.Close()

	if err := client.WriteSettings(); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	drainSettings(t, client)

	block := encodeTestHeaders(":method", "GET", ":path", "/", ":scheme", "http", ":authority", "example.com")
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 3, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write stream 3 headers: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := client.ReadFrame(); err != nil {
			t.Fatalf("read stream 3 response frame %d: %v", i, err)
		}
	}

	// Stream 1 regresses below last_peer_stream_id (3): must be rejected
	// as a connection error, terminating Serve with a GOAWAY.
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write stream 1 headers: %v", err)
	}

	f, err := client.ReadFrame()
	if err != nil {
		t.Fatalf("read goaway: %v", err)
	}
	if _, ok := f.(*GoAwayFrame); !ok {
		t.Fatalf("expected GOAWAY, got %T", f)
	}

	if err := <-done; err == nil {
		t.Fatalf("expected Serve to return a connection error for a regressed stream id")
	}
}

// TestFirstFrameMustBeSettings is spec §8 invariant 3: the first frame
// after the preface must be SETTINGS.
func TestFirstFrameMustBeSettings(t *testing.T) {
	rt := router.NewRouter(testHost(t, "ok"))

	client, cliConn, done := dialTestConn(t, rt)
	defer cliConn.Close()

	block := encodeTestHeaders(":method", "GET", ":path", "/", ":scheme", "http", ":authority", "example.com")
	if err := client.WriteHeaders(HeadersFrameParam{
		StreamID: 1, BlockFragment: block, EndStream: true, EndHeaders: true,
	}); err != nil {
		t.Fatalf("write headers: %v", err)
	}

	if err := <-done; err == nil {
		t.Fatalf("expected Serve to reject a non-SETTINGS first frame")
	}
}
