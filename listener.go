package http2

import "sync"

// Listener is the application-facing interface the arbiter invokes
// synchronously with a newly admitted stream (spec.md §6 "Application
// listener interface (exposed)"). Returning false refuses the stream
// (the arbiter emits RST_STREAM REFUSED_STREAM and removes the stream);
// returning true accepts it, and h is the caller's handle for the rest
// of the exchange.
type Listener interface {
	Accept(h *StreamHandle) bool
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(h *StreamHandle) bool

func (f ListenerFunc) Accept(h *StreamHandle) bool {
	return f(h)
}

// StreamHandle is the application's view of one stream, bound to a
// *Stream and its owning *Conn (spec.md §6). All methods are safe to
// call from any goroutine; they hand work back to the arbiter's
// single writer loop or read from channels the arbiter feeds.
type StreamHandle struct {
	stream *Stream
	conn   *Conn

	headers        chan *CompleteHeaderBlock
	data           chan []byte
	trailers       chan []HeaderField
	closed         chan struct{}
	closedOnce     bool
	dataClosedOnce sync.Once
	cancelCause    error
}

func newStreamHandle(conn *Conn, s *Stream) *StreamHandle {
	h := &StreamHandle{
		stream:   s,
		conn:     conn,
		headers:  make(chan *CompleteHeaderBlock, 1),
		data:     make(chan []byte, 16),
		trailers: make(chan []HeaderField, 1),
		closed:   make(chan struct{}),
	}
	s.SetHandle(h)
	return h
}

// ID returns the stream id.
func (h *StreamHandle) ID() uint32 {
	return h.stream.ID()
}

// State returns the stream's current lifecycle state.
func (h *StreamHandle) State() StreamState {
	return h.stream.State()
}

// ReadHeaders blocks until the request's initial header block has
// been fully assembled and decoded.
func (h *StreamHandle) ReadHeaders() (*CompleteHeaderBlock, error) {
	select {
	case block := <-h.headers:
		return block, nil
	case <-h.closed:
		return nil, h.cancelErr()
	}
}

// Read returns the next chunk of request body bytes, or io.EOF-shaped
// nil when the remote side has finished sending DATA.
func (h *StreamHandle) Read() ([]byte, error) {
	select {
	case b, ok := <-h.data:
		if !ok {
			return nil, nil
		}
		return b, nil
	case <-h.closed:
		return nil, h.cancelErr()
	}
}

// ReadTrailers blocks until the request's trailing header block has
// been decoded, if any.
func (h *StreamHandle) ReadTrailers() ([]HeaderField, error) {
	select {
	case t := <-h.trailers:
		return t, nil
	case <-h.closed:
		return nil, h.cancelErr()
	}
}

func (h *StreamHandle) cancelErr() error {
	if h.cancelCause != nil {
		return h.cancelCause
	}
	return NewApplicationError("stream closed")
}

// WriteHeaders sends a response header block. endOfStream marks the
// response as bodyless. Sending a non-informational header set twice
// (outside of trailers) is an ApplicationError. An informational
// response (1xx, never 101) never transitions the stream's state
// machine, so the final response headers may still follow it.
func (h *StreamHandle) WriteHeaders(fields []HeaderField, endOfStream bool) error {
	if isInformationalResponse(fields) {
		h.stream.MarkInformational()
		return h.conn.writeHeaders(h.stream.ID(), fields, false)
	}
	if err := h.conn.registry.Transition(h.stream, EventSendHeaders, endOfStream); err != nil {
		return err
	}
	return h.conn.writeHeaders(h.stream.ID(), fields, endOfStream)
}

// isInformationalResponse reports whether fields carries a 1xx :status
// other than 101 (Switching Protocols, which is not reachable here).
func isInformationalResponse(fields []HeaderField) bool {
	for i := range fields {
		if fields[i].Key() != ":status" {
			continue
		}
		v := fields[i].Value()
		return len(v) == 3 && v[0] == '1' && v != "101"
	}
	return false
}

// Write sends a DATA chunk. endOfStream marks the final chunk of the
// response body.
func (h *StreamHandle) Write(b []byte, endOfStream bool) error {
	if err := h.conn.registry.Transition(h.stream, EventSendData, endOfStream); err != nil {
		return err
	}
	return h.conn.writeData(h.stream.ID(), b, endOfStream)
}

// WriteTrailers sends trailing headers, completing the response.
func (h *StreamHandle) WriteTrailers(fields []HeaderField) error {
	if err := h.conn.registry.Transition(h.stream, EventSendTrailers, true); err != nil {
		return err
	}
	return h.conn.writeHeaders(h.stream.ID(), fields, true)
}

// Cancel aborts the stream locally, emitting RST_STREAM CANCEL.
func (h *StreamHandle) Cancel() error {
	if err := h.conn.registry.Transition(h.stream, EventCancel, true); err != nil {
		return err
	}
	h.conn.writeReset(h.stream.ID(), CancelError)
	h.conn.finishStream(h.stream)
	return nil
}

func (h *StreamHandle) deliverHeaders(block *CompleteHeaderBlock) {
	select {
	case h.headers <- block:
	default:
	}
}

func (h *StreamHandle) deliverData(b []byte) {
	select {
	case h.data <- b:
	case <-h.closed:
	}
}

// closeData closes the data channel once the remote side has finished
// sending the request body (a DATA or trailing HEADERS frame carrying
// EndOfStream), unblocking a pending Read with the io.EOF-shaped nil
// rather than the stream's terminal cancelErr.
func (h *StreamHandle) closeData() {
	h.dataClosedOnce.Do(func() { close(h.data) })
}

func (h *StreamHandle) deliverTrailers(fields []HeaderField) {
	select {
	case h.trailers <- fields:
	default:
	}
}

func (h *StreamHandle) terminate(cause error) {
	if h.closedOnce {
		return
	}
	h.closedOnce = true
	h.cancelCause = cause
	close(h.closed)
}
