package http2

// flow tracks one direction of one flow control window (spec §4.2.4):
// either the connection-wide window or a single stream's window. The
// teacher's serverConn and stream each hold one *flow; this module keeps
// the same shape but adds the explicit max-window clamp the spec requires
// (2^31-1) since the teacher's version left that TODO unaddressed.
type flow struct {
	n int32 // available window, may go negative transiently on a settings shrink
}

const maxWindowSize = 1<<31 - 1

func newFlow(n int32) *flow {
	return &flow{n: n}
}

// add credits the window by n, which may be negative (an
// INITIAL_WINDOW_SIZE decrease retroactively applied to open streams). It
// reports false if the result would exceed the protocol maximum, per
// spec §4.2.4.
func (f *flow) add(n int32) bool {
	remain := maxWindowSize - f.n
	if n > remain {
		return false
	}
	f.n += n
	return true
}

// take consumes n bytes of window for an outbound DATA write, returning
// false if the window does not have enough credit (the caller must stall
// until a WINDOW_UPDATE arrives).
func (f *flow) take(n int32) bool {
	if n > f.n {
		return false
	}
	f.n -= n
	return true
}

func (f *flow) available() int32 { return f.n }
