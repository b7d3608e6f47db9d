package http2

import (
	"sync"
)

// StreamState is one of the eight states a Stream moves through over
// its lifetime (spec.md §4.3). Reset is kept distinct from Closed so
// callers can tell "we cancelled" from "the exchange finished".
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamReservedLocal
	StreamReservedRemote
	StreamOpen
	StreamHalfClosedRemote
	StreamHalfClosedLocal
	StreamClosed
	StreamReset
)

func (ss StreamState) String() string {
	switch ss {
	case StreamIdle:
		return "Idle"
	case StreamReservedLocal:
		return "ReservedLocal"
	case StreamReservedRemote:
		return "ReservedRemote"
	case StreamOpen:
		return "Open"
	case StreamHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamClosed:
		return "Closed"
	case StreamReset:
		return "Reset"
	}
	return "Unknown"
}

// terminal reports whether ss has no outgoing transitions.
func (ss StreamState) terminal() bool {
	return ss == StreamClosed || ss == StreamReset
}

// StreamEvent is a state-machine input: remote (peer-originated, R_*)
// or local (self-originated, L_*) per spec.md §4.3.
type StreamEvent uint8

const (
	EventRecvHeaders StreamEvent = iota
	EventRecvData
	EventRecvTrailers
	EventRecvReset
	EventSendHeaders
	EventSendData
	EventSendTrailers
	EventCancel
)

func (e StreamEvent) String() string {
	switch e {
	case EventRecvHeaders:
		return "R_Headers"
	case EventRecvData:
		return "R_Data"
	case EventRecvTrailers:
		return "R_Trailers"
	case EventRecvReset:
		return "R_Rst"
	case EventSendHeaders:
		return "L_Headers"
	case EventSendData:
		return "L_Data"
	case EventSendTrailers:
		return "L_Trailers"
	case EventCancel:
		return "L_Cancel"
	}
	return "Unknown"
}

var streamPool = sync.Pool{
	New: func() interface{} {
		return &Stream{}
	},
}

// Stream tracks one HTTP/2 stream's lifecycle state, flow-control
// windows, and the application handle bound to it. A Stream is owned
// by the connection arbiter's single goroutine; the application only
// touches it through its StreamHandle.
type Stream struct {
	id    uint32
	state StreamState

	// sawFinalResponse tracks whether a non-informational response
	// header set has already been sent, per the "further response
	// headers forbidden unless trailers" rule.
	sawFinalResponse bool
	// sawDataWrite tracks whether any local DATA write has occurred,
	// required before trailers can be sent.
	sawDataWrite bool

	sendWindow int64
	recvWindow int64

	handle interface{}
}

// NewStream creates a Stream in the Idle state with win as both
// initial send and receive window.
func NewStream(id uint32, win int32) *Stream {
	s := streamPool.Get().(*Stream)
	s.id = id
	s.state = StreamIdle
	s.sawFinalResponse = false
	s.sawDataWrite = false
	s.sendWindow = int64(win)
	s.recvWindow = int64(win)
	s.handle = nil
	return s
}

// Release returns s to the pool. The caller must not use s afterward.
func (s *Stream) Release() {
	s.handle = nil
	streamPool.Put(s)
}

func (s *Stream) ID() uint32 {
	return s.id
}

func (s *Stream) State() StreamState {
	return s.state
}

func (s *Stream) Handle() interface{} {
	return s.handle
}

func (s *Stream) SetHandle(h interface{}) {
	s.handle = h
}

// Active reports whether s currently consumes a remote concurrency
// slot per spec.md §4.4: Idle, Open, HalfClosedLocal, HalfClosedRemote,
// ReservedRemote.
func (s *Stream) Active() bool {
	switch s.state {
	case StreamIdle, StreamOpen, StreamHalfClosedLocal, StreamHalfClosedRemote, StreamReservedRemote:
		return true
	}
	return false
}

// SendWindow returns the stream's outbound flow-control window.
func (s *Stream) SendWindow() int64 {
	return s.sendWindow
}

// CreditSend adds n (possibly negative, from a SETTINGS change) to
// the send window.
func (s *Stream) CreditSend(n int64) {
	s.sendWindow += n
}

// DebitSend subtracts n from the send window.
func (s *Stream) DebitSend(n int64) {
	s.sendWindow -= n
}

// RecvWindow returns the stream's inbound flow-control window.
func (s *Stream) RecvWindow() int64 {
	return s.recvWindow
}

// CreditRecv adds n to the receive window (a WINDOW_UPDATE refund).
func (s *Stream) CreditRecv(n int64) {
	s.recvWindow += n
}

// DebitRecv subtracts n from the receive window.
func (s *Stream) DebitRecv(n int64) {
	s.recvWindow -= n
}

// Apply drives the state machine with event per spec.md §4.3's
// transition table. An invalid remote event returns a *StreamError; an
// invalid local write returns an *ApplicationError and leaves the state
// unchanged. Any event on a terminal (Closed/Reset) stream returns a
// STREAM_CLOSED *StreamError and leaves the state unchanged.
func (s *Stream) Apply(event StreamEvent, endOfStream bool) error {
	if s.state.terminal() {
		return NewStreamError(s.id, StreamClosedError, "stream is "+s.state.String())
	}

	switch event {
	case EventRecvHeaders:
		return s.applyRecvHeaders(endOfStream)
	case EventRecvData:
		return s.applyRecvData(endOfStream)
	case EventRecvTrailers:
		return s.applyRecvTrailers(endOfStream)
	case EventRecvReset:
		s.state = StreamReset
		return nil
	case EventSendHeaders:
		return s.applySendHeaders(endOfStream)
	case EventSendData:
		return s.applySendData(endOfStream)
	case EventSendTrailers:
		return s.applySendTrailers(endOfStream)
	case EventCancel:
		s.state = StreamReset
		return nil
	}

	return NewStreamError(s.id, InternalError, "unknown stream event")
}

func (s *Stream) applyRecvHeaders(eos bool) error {
	switch s.state {
	case StreamIdle:
		if eos {
			s.state = StreamHalfClosedRemote
		} else {
			s.state = StreamOpen
		}
		return nil
	case StreamOpen:
		// Headers-as-trailers on the remote direction: only valid with EOS.
		if !eos {
			s.state = StreamReset
			return NewStreamError(s.id, ProtocolError, "duplicate HEADERS without EndOfStream")
		}
		s.state = StreamHalfClosedRemote
		return nil
	case StreamHalfClosedLocal:
		if !eos {
			s.state = StreamReset
			return NewStreamError(s.id, ProtocolError, "duplicate HEADERS without EndOfStream")
		}
		s.state = StreamClosed
		return nil
	}
	s.state = StreamReset
	return NewStreamError(s.id, ProtocolError, "unexpected HEADERS in state "+s.state.String())
}

func (s *Stream) applyRecvData(eos bool) error {
	switch s.state {
	case StreamOpen:
		if eos {
			s.state = StreamHalfClosedRemote
		}
		return nil
	case StreamHalfClosedLocal:
		if eos {
			s.state = StreamClosed
		}
		return nil
	}
	return NewStreamError(s.id, StreamClosedError, "DATA on stream in state "+s.state.String())
}

func (s *Stream) applyRecvTrailers(eos bool) error {
	if !eos {
		s.state = StreamReset
		return NewStreamError(s.id, ProtocolError, "trailers without EndOfStream")
	}
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedRemote
		return nil
	case StreamHalfClosedLocal:
		s.state = StreamClosed
		return nil
	}
	return NewStreamError(s.id, StreamClosedError, "trailers on stream in state "+s.state.String())
}

func (s *Stream) applySendHeaders(eos bool) error {
	if s.state != StreamOpen && s.state != StreamHalfClosedRemote {
		return NewApplicationError("attempted to write headers on a stream that is not open")
	}
	if s.sawFinalResponse {
		return NewApplicationError("final response headers already sent")
	}
	s.sawFinalResponse = true
	if eos {
		return s.completeLocal()
	}
	return nil
}

func (s *Stream) applySendData(eos bool) error {
	if s.state != StreamOpen && s.state != StreamHalfClosedRemote {
		return NewApplicationError("attempted to write data on a stream that is not open")
	}
	if !s.sawFinalResponse {
		return NewApplicationError("attempted to write data before headers")
	}
	s.sawDataWrite = true
	if eos {
		return s.completeLocal()
	}
	return nil
}

func (s *Stream) applySendTrailers(eos bool) error {
	if s.state != StreamOpen && s.state != StreamHalfClosedRemote {
		return NewApplicationError("attempted to write trailers on a stream that is not open")
	}
	if !eos {
		return NewApplicationError("trailers must carry EndOfStream")
	}
	if !s.sawDataWrite {
		return NewApplicationError("attempted to write trailers without data")
	}
	return s.completeLocal()
}

func (s *Stream) completeLocal() error {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedLocal
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	default:
		return NewApplicationError("attempted to complete the local side twice")
	}
	return nil
}

// MarkInformational is called for an informational (1xx, != 101)
// response header set. It does nothing: such a header set leaves the
// stream's state and flags unchanged.
func (s *Stream) MarkInformational() {}
