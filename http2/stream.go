package http2

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/embedthis/httpcore/router"
)

// streamState is one node of the state machine in spec §4.2.3.
type streamState int

const (
	stateIdle streamState = iota
	stateOpen
	stateHalfClosedLocal
	stateHalfClosedRemote
	stateClosed
	stateReset
)

func (s streamState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateOpen:
		return "open"
	case stateHalfClosedLocal:
		return "half-closed (local)"
	case stateHalfClosedRemote:
		return "half-closed (remote)"
	case stateClosed:
		return "closed"
	case stateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// stream is one HTTP/2 stream on a connection (spec §3.2 "Stream").
type stream struct {
	id    uint32
	state streamState // owned by the connection's single serve goroutine

	windowOut *flow // credits we may spend sending DATA to the peer
	windowIn  *flow // credits we've advertised the peer may spend on us

	rx  *router.Request // populated once header reassembly completes
	req *http.Request   // the synthetic request buildRequest derived alongside rx

	bodyMu sync.Mutex
	body   bytes.Buffer // DATA reassembly; router handlers read this synchronously

	reset bool // set once a local or peer RST_STREAM has landed

	// pendingOut is outbound DATA payload not yet sent because it
	// outran the peer's advertised window (spec §4.2.4's stall/resume
	// case); processWindowUpdate drains it once credit arrives.
	pendingOut []byte
}

// newStream creates a stream with outWindow, the credit this side may
// spend sending DATA (seeded from the peer's advertised
// INITIAL_WINDOW_SIZE), and inWindow, the credit advertised to the peer
// for DATA it sends us (our own INITIAL_WINDOW_SIZE).
func newStream(id uint32, outWindow, inWindow int32) *stream {
	return &stream{
		id:        id,
		state:     stateOpen,
		windowOut: newFlow(outWindow),
		windowIn:  newFlow(inWindow),
	}
}

// writeBody appends DATA payload, used by the connection's processData
// (spec §4.2.3: DATA is only legal in Open or HalfClosedLocal, enforced
// by the caller before this is reached).
func (st *stream) writeBody(p []byte) {
	st.bodyMu.Lock()
	st.body.Write(p)
	st.bodyMu.Unlock()
}

// onRecvEndStream applies the receive-side half of the state machine
// (spec §4.2.3 diagram): Open -> HalfClosedRemote, HalfClosedLocal ->
// Closed.
func (st *stream) onRecvEndStream() {
	switch st.state {
	case stateOpen:
		st.state = stateHalfClosedRemote
	case stateHalfClosedLocal:
		st.state = stateClosed
	}
}

// onSendEndStream applies the send-side half: Open -> HalfClosedLocal,
// HalfClosedRemote -> Closed.
func (st *stream) onSendEndStream() {
	switch st.state {
	case stateOpen:
		st.state = stateHalfClosedLocal
	case stateHalfClosedRemote:
		st.state = stateClosed
	}
}

// onReset marks the stream terminal from any non-Closed state (spec
// §4.2.3: "RST_STREAM in any state except Closed -> Reset").
func (st *stream) onReset() {
	if st.state != stateClosed {
		st.state = stateReset
	}
	st.reset = true
}

func (st *stream) acceptsData() bool {
	return st.state == stateOpen || st.state == stateHalfClosedLocal
}
