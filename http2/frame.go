package http2

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ClientPreface is the 24-byte magic a client must send before any frame
// (spec §4.2.2 step 1).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

var clientPrefaceBytes = []byte(ClientPreface)

// FrameType identifies a frame's payload shape (spec §4.2.1).
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

func (t FrameType) String() string {
	names := [...]string{"DATA", "HEADERS", "PRIORITY", "RST_STREAM", "SETTINGS",
		"PUSH_PROMISE", "PING", "GOAWAY", "WINDOW_UPDATE", "CONTINUATION"}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("FrameType(%d)", uint8(t))
}

// Flags is the frame header's 8-bit flag field. Only a handful of bits are
// defined, and their meaning depends on FrameType.
type Flags uint8

const (
	FlagDataEndStream     Flags = 0x1
	FlagDataPadded        Flags = 0x8
	FlagHeadersEndStream  Flags = 0x1
	FlagHeadersEndHeaders Flags = 0x4
	FlagHeadersPadded     Flags = 0x8
	FlagHeadersPriority   Flags = 0x20
	FlagSettingsAck       Flags = 0x1
	FlagPingAck           Flags = 0x1
	FlagContinuationEnd   Flags = 0x4
)

func (f Flags) Has(v Flags) bool { return f&v != 0 }

// FrameHeader is the fixed 9-byte preamble of every frame (spec §4.2.1).
type FrameHeader struct {
	Length   uint32 // 24 bits on the wire
	Type     FrameType
	Flags    Flags
	StreamID uint32 // 31 bits on the wire
}

const frameHeaderLen = 9
const maxFrameSize = 1 << 24

// Frame is implemented by every concrete frame type. Header returns the
// already-decoded fixed preamble.
type Frame interface {
	Header() FrameHeader
}

type frameHeaderHolder struct{ h FrameHeader }

func (f frameHeaderHolder) Header() FrameHeader { return f.h }

// DataFrame carries request/response body bytes (spec §4.2.4).
type DataFrame struct {
	frameHeaderHolder
	data []byte
}

func (f *DataFrame) Data() []byte { return f.data }

// HeadersFrame opens a stream or carries trailers; its payload is an HPACK
// header block fragment, possibly continued by CONTINUATION frames.
type HeadersFrame struct {
	frameHeaderHolder
	headerFragment []byte
	Priority       PriorityParam // zero value if FlagHeadersPriority unset
}

func (f *HeadersFrame) HeaderBlockFragment() []byte { return f.headerFragment }
func (f *HeadersFrame) HeadersEnded() bool          { return f.h.Flags.Has(FlagHeadersEndHeaders) }

// PriorityParam is the five-byte stream dependency/weight payload shared
// by HEADERS (when FlagHeadersPriority is set) and PRIORITY frames.
type PriorityParam struct {
	StreamDep uint32
	Exclusive bool
	Weight    uint8
}

type PriorityFrame struct {
	frameHeaderHolder
	PriorityParam
}

// RSTStreamFrame aborts a single stream (spec §4.2.7).
type RSTStreamFrame struct {
	frameHeaderHolder
	ErrCode ErrCode
}

// Setting is one (id, value) pair inside a SETTINGS frame (spec §4.2.6).
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

type Setting struct {
	ID  SettingID
	Val uint32
}

func (s Setting) String() string { return fmt.Sprintf("[%v = %d]", s.ID, s.Val) }

type SettingsFrame struct {
	frameHeaderHolder
	settings []Setting
}

// ForeachSetting invokes fn once per (id, value) pair in order, stopping
// at the first error (mirrors the teacher's ForeachSetting contract used
// from serverConn.processSettings).
func (f *SettingsFrame) ForeachSetting(fn func(Setting) error) error {
	for _, s := range f.settings {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *SettingsFrame) IsAck() bool { return f.h.Flags.Has(FlagSettingsAck) }

// PushPromiseFrame is accepted on the wire for completeness but server
// push is unused (spec §4.2.6: ENABLE_PUSH value is remembered, not acted
// on); no construction/serialization path emits one.
type PushPromiseFrame struct {
	frameHeaderHolder
	headerFragment []byte
	PromisedID     uint32
}

func (f *PushPromiseFrame) HeaderBlockFragment() []byte { return f.headerFragment }
func (f *PushPromiseFrame) HeadersEnded() bool          { return f.h.Flags.Has(FlagHeadersEndHeaders) }

type PingFrame struct {
	frameHeaderHolder
	Data [8]byte
}

type GoAwayFrame struct {
	frameHeaderHolder
	LastStreamID uint32
	ErrCode      ErrCode
	debugData    []byte
}

func (f *GoAwayFrame) DebugData() []byte { return f.debugData }

type WindowUpdateFrame struct {
	frameHeaderHolder
	Increment uint32
}

type ContinuationFrame struct {
	frameHeaderHolder
	headerFragment []byte
}

func (f *ContinuationFrame) HeaderBlockFragment() []byte { return f.headerFragment }
func (f *ContinuationFrame) HeadersEnded() bool          { return f.h.Flags.Has(FlagContinuationEnd) }

// Framer reads and writes HTTP/2 frames on a connection, mirroring the
// teacher's *Framer (_examples/baranov1ch-http2/server.go callers).
type Framer struct {
	r      io.Reader
	w      io.Writer
	headBuf [frameHeaderLen]byte
}

func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{r: r, w: w}
}

// ReadFrame reads one frame, blocking until a full frame (header +
// payload) is available (spec §4.2.1: receive pipeline peeks the 9-byte
// header then reads exactly Length more bytes).
func (fr *Framer) ReadFrame() (Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.headBuf[:]); err != nil {
		return nil, err
	}
	h := FrameHeader{
		Length:   uint32(fr.headBuf[0])<<16 | uint32(fr.headBuf[1])<<8 | uint32(fr.headBuf[2]),
		Type:     FrameType(fr.headBuf[3]),
		Flags:    Flags(fr.headBuf[4]),
		StreamID: binary.BigEndian.Uint32(fr.headBuf[5:9]) & 0x7fffffff,
	}
	if h.Length > maxFrameSize {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, err
	}
	return parsePayload(h, payload)
}

func parsePayload(h FrameHeader, p []byte) (Frame, error) {
	switch h.Type {
	case FrameData:
		p, err := trimPadding(h.Flags.Has(FlagDataPadded), p)
		if err != nil {
			return nil, err
		}
		return &DataFrame{frameHeaderHolder{h}, p}, nil

	case FrameHeaders:
		rest, err := trimPadding(h.Flags.Has(FlagHeadersPadded), p)
		if err != nil {
			return nil, err
		}
		var pri PriorityParam
		if h.Flags.Has(FlagHeadersPriority) {
			if len(rest) < 5 {
				return nil, ConnectionError(ErrCodeFrameSize)
			}
			dep := binary.BigEndian.Uint32(rest[0:4])
			pri.Exclusive = dep&0x80000000 != 0
			pri.StreamDep = dep & 0x7fffffff
			pri.Weight = rest[4]
			rest = rest[5:]
		}
		return &HeadersFrame{frameHeaderHolder{h}, rest, pri}, nil

	case FramePriority:
		if len(p) != 5 {
			return nil, StreamError{h.StreamID, ErrCodeFrameSize}
		}
		dep := binary.BigEndian.Uint32(p[0:4])
		return &PriorityFrame{frameHeaderHolder{h}, PriorityParam{
			StreamDep: dep & 0x7fffffff,
			Exclusive: dep&0x80000000 != 0,
			Weight:    p[4],
		}}, nil

	case FrameRSTStream:
		if len(p) != 4 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		return &RSTStreamFrame{frameHeaderHolder{h}, ErrCode(binary.BigEndian.Uint32(p))}, nil

	case FrameSettings:
		if h.Flags.Has(FlagSettingsAck) {
			if len(p) != 0 {
				return nil, ConnectionError(ErrCodeFrameSize)
			}
			return &SettingsFrame{frameHeaderHolder{h}, nil}, nil
		}
		if len(p)%6 != 0 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		var settings []Setting
		for i := 0; i < len(p); i += 6 {
			settings = append(settings, Setting{
				ID:  SettingID(binary.BigEndian.Uint16(p[i : i+2])),
				Val: binary.BigEndian.Uint32(p[i+2 : i+6]),
			})
		}
		return &SettingsFrame{frameHeaderHolder{h}, settings}, nil

	case FramePushPromise:
		rest, err := trimPadding(h.Flags.Has(FlagHeadersPadded), p)
		if err != nil {
			return nil, err
		}
		if len(rest) < 4 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		promised := binary.BigEndian.Uint32(rest[0:4]) & 0x7fffffff
		return &PushPromiseFrame{frameHeaderHolder{h}, rest[4:], promised}, nil

	case FramePing:
		if len(p) != 8 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		var pf PingFrame
		pf.h = h
		copy(pf.Data[:], p)
		return &pf, nil

	case FrameGoAway:
		if len(p) < 8 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		return &GoAwayFrame{
			frameHeaderHolder{h},
			binary.BigEndian.Uint32(p[0:4]) & 0x7fffffff,
			ErrCode(binary.BigEndian.Uint32(p[4:8])),
			p[8:],
		}, nil

	case FrameWindowUpdate:
		if len(p) != 4 {
			return nil, ConnectionError(ErrCodeFrameSize)
		}
		return &WindowUpdateFrame{frameHeaderHolder{h}, binary.BigEndian.Uint32(p) & 0x7fffffff}, nil

	case FrameContinuation:
		return &ContinuationFrame{frameHeaderHolder{h}, p}, nil

	default:
		// Unknown frame types are ignored per spec; surface them as a
		// raw DataFrame-shaped holder so callers can log and discard.
		return &unknownFrame{frameHeaderHolder{h}, p}, nil
	}
}

type unknownFrame struct {
	frameHeaderHolder
	payload []byte
}

func trimPadding(padded bool, p []byte) ([]byte, error) {
	if !padded {
		return p, nil
	}
	if len(p) == 0 {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	padLen := int(p[0])
	p = p[1:]
	if padLen > len(p) {
		return nil, ConnectionError(ErrCodeFrameSize)
	}
	return p[:len(p)-padLen], nil
}

func (fr *Framer) writeFrameHeader(length int, t FrameType, flags Flags, streamID uint32) error {
	var buf [frameHeaderLen]byte
	buf[0] = byte(length >> 16)
	buf[1] = byte(length >> 8)
	buf[2] = byte(length)
	buf[3] = byte(t)
	buf[4] = byte(flags)
	binary.BigEndian.PutUint32(buf[5:9], streamID&0x7fffffff)
	_, err := fr.w.Write(buf[:])
	return err
}

func (fr *Framer) WriteSettings(settings ...Setting) error {
	payload := make([]byte, 0, len(settings)*6)
	for _, s := range settings {
		var b [6]byte
		binary.BigEndian.PutUint16(b[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(b[2:6], s.Val)
		payload = append(payload, b[:]...)
	}
	if err := fr.writeFrameHeader(len(payload), FrameSettings, 0, 0); err != nil {
		return err
	}
	_, err := fr.w.Write(payload)
	return err
}

func (fr *Framer) WriteSettingsAck() error {
	return fr.writeFrameHeader(0, FrameSettings, FlagSettingsAck, 0)
}

func (fr *Framer) WritePing(ack bool, data [8]byte) error {
	var flags Flags
	if ack {
		flags = FlagPingAck
	}
	if err := fr.writeFrameHeader(8, FramePing, flags, 0); err != nil {
		return err
	}
	_, err := fr.w.Write(data[:])
	return err
}

func (fr *Framer) WriteGoAway(lastStreamID uint32, code ErrCode, debug []byte) error {
	payload := make([]byte, 8+len(debug))
	binary.BigEndian.PutUint32(payload[0:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(payload[4:8], uint32(code))
	copy(payload[8:], debug)
	if err := fr.writeFrameHeader(len(payload), FrameGoAway, 0, 0); err != nil {
		return err
	}
	_, err := fr.w.Write(payload)
	return err
}

func (fr *Framer) WriteRSTStream(streamID uint32, code uint32) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], code)
	if err := fr.writeFrameHeader(4, FrameRSTStream, 0, streamID); err != nil {
		return err
	}
	_, err := fr.w.Write(payload[:])
	return err
}

func (fr *Framer) WriteWindowUpdate(streamID uint32, increment uint32) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], increment&0x7fffffff)
	if err := fr.writeFrameHeader(4, FrameWindowUpdate, 0, streamID); err != nil {
		return err
	}
	_, err := fr.w.Write(payload[:])
	return err
}

// HeadersFrameParam describes an outbound HEADERS frame (spec §4.2.1),
// mirroring the teacher's HeadersFrameParam used from writeHeaderInLoop.
type HeadersFrameParam struct {
	StreamID      uint32
	BlockFragment []byte
	EndStream     bool
	EndHeaders    bool
}

func (fr *Framer) WriteHeaders(p HeadersFrameParam) error {
	var flags Flags
	if p.EndStream {
		flags |= FlagHeadersEndStream
	}
	if p.EndHeaders {
		flags |= FlagHeadersEndHeaders
	}
	if err := fr.writeFrameHeader(len(p.BlockFragment), FrameHeaders, flags, p.StreamID); err != nil {
		return err
	}
	_, err := fr.w.Write(p.BlockFragment)
	return err
}

func (fr *Framer) WriteContinuation(streamID uint32, endHeaders bool, fragment []byte) error {
	var flags Flags
	if endHeaders {
		flags |= FlagContinuationEnd
	}
	if err := fr.writeFrameHeader(len(fragment), FrameContinuation, flags, streamID); err != nil {
		return err
	}
	_, err := fr.w.Write(fragment)
	return err
}

func (fr *Framer) WriteData(streamID uint32, endStream bool, data []byte) error {
	var flags Flags
	if endStream {
		flags |= FlagDataEndStream
	}
	if err := fr.writeFrameHeader(len(data), FrameData, flags, streamID); err != nil {
		return err
	}
	_, err := fr.w.Write(data)
	return err
}
