package http2

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

type connState int32

const (
	connOpen connState = iota
	connClosing
)

// Conn is the connection-level arbiter of spec.md §4.6: the single
// owner of a transport's read side, the point where frames are
// classified and dispatched, and the serializer of the write side.
//
// Grounded on serverConn's Serve/readLoop/handleStreams/writeLoop
// shape, adapted onto StreamRegistry/Stream/HPACK/CompleteHeaderBlock.
type Conn struct {
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	cfg *Config

	dec *HPACK
	enc *HPACK

	registry *StreamRegistry
	connFlow *ConnFlowControl

	// flowMu guards connFlow.send and every Stream.sendWindow, and
	// flowCond wakes writeData goroutines blocked on window exhaustion
	// whenever a WINDOW_UPDATE credits either one (spec.md §4.5).
	flowMu   sync.Mutex
	flowCond *sync.Cond

	peerMaxFrameSize uint32

	listener Listener

	writer    chan *FrameHeader
	closer    chan struct{}
	closeOnce sync.Once
	state     int32

	// closeRef is not set or read: after sending GOAWAY the arbiter
	// closes the connection instead of serving streams up to a last id.
	closeRef uint32

	pingTimer       *time.Timer
	maxRequestTimer *time.Timer
	idleTimer       *time.Timer

	handles sync.Map // uint32 -> *StreamHandle, for in-flight streams
}

// NewConn wraps c as an HTTP/2 server connection using cfg (nil for
// DefaultConfig()).
func NewConn(c net.Conn, cfg *Config) *Conn {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		withLogger := *cfg
		withLogger.Logger = log.Default()
		cfg = &withLogger
	}

	co := &Conn{
		c:                c,
		br:               bufio.NewReaderSize(c, 1<<16),
		bw:               bufio.NewWriterSize(c, 1<<16),
		cfg:              cfg,
		dec:              NewHPACK(cfg.HeaderTableSize),
		enc:              NewHPACK(cfg.HeaderTableSize),
		registry:         NewStreamRegistry(cfg.MaxConcurrentStreams),
		connFlow:         NewConnFlowControl(cfg.MaxConnectionWindow),
		peerMaxFrameSize: DefaultMaxFrameSizeSetting,
		writer:           make(chan *FrameHeader, 128),
		closer:           make(chan struct{}),
	}
	co.flowCond = sync.NewCond(&co.flowMu)
	return co
}

// Serve reads the client preface, exchanges SETTINGS, and runs the
// arbiter's read loop until the connection ends. listener is invoked
// once per newly admitted stream.
func (co *Conn) Serve(listener Listener) error {
	co.listener = listener

	if err := ReadPreface(co.br); err != nil {
		return err
	}
	if err := WriteHandshake(co.bw, co.cfg); err != nil {
		return err
	}

	co.maxRequestTimer = time.AfterFunc(time.Hour, co.onMaxRequestTime)
	co.maxRequestTimer.Stop()

	if co.cfg.IdleTimeout > 0 {
		co.idleTimer = time.AfterFunc(co.cfg.IdleTimeout, co.closeIdle)
	}
	if co.cfg.PingInterval > 0 {
		co.pingTimer = time.AfterFunc(co.cfg.PingInterval, co.sendPing)
	}

	go co.writeLoop()

	err := co.readLoop()

	co.shutdownTimers()
	co.closeOnce.Do(func() { close(co.closer) })
	co.flowCond.Broadcast()
	close(co.writer)

	if errors.Is(err, io.EOF) || errors.Is(err, ErrTransportClosed) {
		err = nil
	}

	return err
}

func (co *Conn) shutdownTimers() {
	if co.pingTimer != nil {
		co.pingTimer.Stop()
	}
	if co.idleTimer != nil {
		co.idleTimer.Stop()
	}
	if co.maxRequestTimer != nil {
		co.maxRequestTimer.Stop()
	}
}

func (co *Conn) closeIdle() {
	co.writeGoAwayNow(co.registry.highestRemoteIDSeen, NoError, "connection idle")
	co.closeOnce.Do(func() { close(co.closer) })
	co.flowCond.Broadcast()
	_ = co.c.Close()
}

func (co *Conn) onMaxRequestTime() {
	co.writeGoAwayNow(co.registry.highestRemoteIDSeen, NoError, "max request time exceeded")
	co.closeOnce.Do(func() { close(co.closer) })
	co.flowCond.Broadcast()
	_ = co.c.Close()
}

func (co *Conn) sendPing() {
	ping := AcquireFrame(FramePing).(*Ping)
	frh := AcquireFrameHeader()
	frh.SetBody(ping)
	co.enqueue(frh)
	co.pingTimer.Reset(co.cfg.PingInterval)
}

// readLoop is the single-threaded cooperative loop of spec.md §4.6.
func (co *Conn) readLoop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			co.cfg.Logger.Printf("h2core: readLoop panic: %v\n%s", r, debug.Stack())
		}
	}()

	for {
		select {
		case <-co.closer:
			return nil
		default:
		}

		frh, ferr := ReadFrameFromWithSize(co.br, co.cfg.MaxFrameSize)
		if ferr != nil {
			if errors.Is(ferr, ErrUnknownFrameType) {
				continue
			}
			return ferr
		}

		if co.cfg.Debug {
			co.cfg.Logger.Printf("h2core: recv %s stream=%d len=%d", frh.Type(), frh.Stream(), frh.Len())
		}

		if co.idleTimer != nil && frh.Stream() != 0 {
			co.idleTimer.Reset(co.cfg.IdleTimeout)
		}

		if frh.Stream() == 0 {
			err = co.handleControlFrame(frh)
		} else {
			err = co.handleStreamFrame(frh)
		}

		ReleaseFrameHeader(frh)

		if err != nil {
			var connErr *ConnError
			if errors.As(err, &connErr) {
				co.writeGoAwayNow(connErr.LastStreamID, connErr.Code, connErr.Message)
				return err
			}

			var streamErr *StreamError
			if errors.As(err, &streamErr) {
				co.writeReset(streamErr.StreamID, streamErr.Code)
				if h := co.handleFor(streamErr.StreamID); h != nil {
					h.terminate(streamErr)
				}
				err = nil
				continue
			}

			return err
		}
	}
}

func (co *Conn) handleFor(id uint32) *StreamHandle {
	if v, ok := co.handles.Load(id); ok {
		return v.(*StreamHandle)
	}
	return nil
}

func (co *Conn) handleControlFrame(frh *FrameHeader) error {
	switch frh.Type() {
	case FrameSettings:
		st := frh.Body().(*Settings)
		if st.IsAck() {
			return nil
		}
		return co.applyPeerSettings(st)
	case FramePing:
		ping := frh.Body().(*Ping)
		if ping.IsAck() {
			return nil
		}
		ack := AcquireFrame(FramePing).(*Ping)
		ack.SetAck(true)
		ack.SetData(ping.Data())
		out := AcquireFrameHeader()
		out.SetBody(ack)
		co.enqueue(out)
		return nil
	case FrameGoAway:
		ga := frh.Body().(*GoAway)
		if ga.Code() != NoError {
			return NewConnError(ga.Code(), "peer sent GOAWAY")
		}
		return io.EOF
	case FrameWindowUpdate:
		wu := frh.Body().(*WindowUpdate)
		if wu.Increment() == 0 {
			return NewConnError(ProtocolError, "WINDOW_UPDATE increment of 0 on stream 0")
		}
		co.flowMu.Lock()
		co.connFlow.CreditSend(int64(wu.Increment()))
		exceeded := co.connFlow.SendWindow() > MaxWindowSize
		co.flowMu.Unlock()
		co.flowCond.Broadcast()
		if exceeded {
			return NewConnError(FlowControlError, "connection window exceeds maximum")
		}
		return nil
	default:
		return NewConnError(ProtocolError, "unexpected control frame")
	}
}

func (co *Conn) applyPeerSettings(st *Settings) error {
	co.enc.SetMaxEncoderTableSize(st.HeaderTableSize)
	co.peerMaxFrameSize = st.MaxFrameSize

	ack := &Settings{}
	ack.Reset()
	ack.SetAck(true)
	frh := AcquireFrameHeader()
	frh.SetBody(ack)
	co.enqueue(frh)

	return nil
}

func (co *Conn) handleStreamFrame(frh *FrameHeader) error {
	if frh.Stream()%2 == 0 {
		return NewConnError(ProtocolError, "even stream id from client")
	}

	switch frh.Type() {
	case FramePing, FramePushPromise:
		return NewConnError(ProtocolError, "frame type cannot carry a stream id")
	}

	if frh.Type() == FrameHeaders {
		return co.handleHeaders(frh)
	}

	s := co.registry.Get(frh.Stream())
	if s == nil {
		if frh.Type() == FramePriority {
			return nil
		}
		if frh.Stream() <= co.registry.highestRemoteIDSeen {
			return nil // already closed, RST_STREAM or late frame: ignore
		}
		return NewConnError(ProtocolError, "frame on idle stream")
	}

	switch frh.Type() {
	case FrameData:
		return co.handleData(s, frh)
	case FrameResetStream:
		rst := frh.Body().(*RstStream)
		if !rst.IsGraceful() {
			co.cfg.Logger.Printf("h2core: stream %d reset by peer: %s", s.ID(), rst.Code())
		}
		co.registry.Reset(s)
		if h := co.handleFor(s.ID()); h != nil {
			h.terminate(NewStreamError(s.ID(), rst.Code(), "reset by peer"))
		}
		co.finishStream(s)
		return nil
	case FramePriority:
		return nil
	case FrameWindowUpdate:
		wu := frh.Body().(*WindowUpdate)
		if wu.Increment() == 0 {
			return NewStreamError(s.ID(), ProtocolError, "WINDOW_UPDATE increment of 0")
		}
		co.flowMu.Lock()
		s.CreditSend(int64(wu.Increment()))
		exceeded := s.SendWindow() > MaxWindowSize
		co.flowMu.Unlock()
		co.flowCond.Broadcast()
		if exceeded {
			return NewStreamError(s.ID(), FlowControlError, "stream window exceeds maximum")
		}
		return nil
	case FrameContinuation:
		return NewConnError(ProtocolError, "unexpected CONTINUATION outside a header block")
	}

	return NewConnError(ProtocolError, "unrecognized frame on stream")
}

func (co *Conn) handleHeaders(frh *FrameHeader) error {
	h := frh.Body().(*Headers)
	endOfStream := h.EndStream()

	s, err := co.registry.AdmitRemoteHeaders(frh.Stream(), endOfStream, func(id uint32) bool {
		return co.listener == nil
	})
	if err != nil {
		return err
	}

	block, err := AssembleHeaderBlock(co.br, frh, co.dec, co.cfg.MaxFrameSize, co.cfg.MaxHeaderListSize)
	if err != nil {
		return err
	}

	handle, existing := co.handles.Load(s.ID())
	if !existing {
		s.recvWindow = int64(co.cfg.InitialWindowSize)
		sh := newStreamHandle(co, s)
		co.handles.Store(s.ID(), sh)

		if co.cfg.MaxRequestTime > 0 {
			co.maxRequestTimer.Reset(co.cfg.MaxRequestTime)
		}

		if co.listener != nil && !co.listener.Accept(sh) {
			co.registry.Reset(s)
			co.finishStream(s)
			return NewStreamError(s.ID(), RefusedStreamError, "listener refused stream")
		}

		sh.deliverHeaders(block)
		if endOfStream {
			sh.closeData()
		}
	} else {
		sh := handle.(*StreamHandle)
		sh.deliverTrailers(block.Headers)
		sh.closeData()
	}

	if s.State() == StreamClosed || s.State() == StreamReset {
		co.finishStream(s)
	}

	return nil
}

func (co *Conn) handleData(s *Stream, frh *FrameHeader) error {
	data := frh.Body().(*Data)
	wireLen := int64(frh.Len())

	if s.State() == StreamClosed || s.State() == StreamReset {
		if inc := co.connFlow.OnRecv(wireLen); inc > 0 {
			co.writeWindowUpdate(0, inc)
		}
		return nil
	}

	inc := co.connFlow.OnRecv(wireLen)
	if inc > 0 {
		co.writeWindowUpdate(0, inc)
	}

	streamInc := StreamOnRecv(s, wireLen, int32(co.cfg.InitialWindowSize))
	if streamInc > 0 {
		co.writeWindowUpdate(s.ID(), streamInc)
	}

	if err := co.registry.Transition(s, EventRecvData, data.EndStream()); err != nil {
		return err
	}

	if h := co.handleFor(s.ID()); h != nil {
		h.deliverData(data.Data())
		if data.EndStream() {
			h.closeData()
		}
	}

	if s.State() == StreamClosed {
		co.finishStream(s)
	}

	return nil
}

func (co *Conn) finishStream(s *Stream) {
	if h := co.handleFor(s.ID()); h != nil {
		h.terminate(nil)
		co.handles.Delete(s.ID())
	}
	co.registry.Delete(s.ID())
}

func (co *Conn) enqueue(frh *FrameHeader) {
	select {
	case co.writer <- frh:
	case <-co.closer:
		ReleaseFrameHeader(frh)
	}
}

func (co *Conn) writeReset(id uint32, code ErrorCode) {
	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)
	frh := AcquireFrameHeader()
	frh.SetStream(id)
	frh.SetBody(rst)
	co.enqueue(frh)
}

func (co *Conn) writeGoAwayNow(lastStreamID uint32, code ErrorCode, message string) {
	if !atomic.CompareAndSwapInt32(&co.state, int32(connOpen), int32(connClosing)) {
		return
	}

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(lastStreamID)
	ga.SetCode(code)
	ga.SetData([]byte(message))

	frh := AcquireFrameHeader()
	frh.SetBody(ga)
	co.enqueue(frh)
}

func (co *Conn) writeWindowUpdate(streamID uint32, increment int32) {
	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(int(increment))
	frh := AcquireFrameHeader()
	frh.SetStream(streamID)
	frh.SetBody(wu)
	co.enqueue(frh)
}

func (co *Conn) writeHeaders(id uint32, fields []HeaderField, endOfStream bool) error {
	raw, err := co.enc.EncodeList(nil, fields)
	if err != nil {
		return err
	}

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndHeaders(true)
	h.SetEndStream(endOfStream)
	h.SetHeaders(raw)

	frh := AcquireFrameHeader()
	frh.SetStream(id)
	frh.SetBody(h)
	co.enqueue(frh)

	return nil
}

// writeData fragments b into frames no larger than the peer's
// negotiated MAX_FRAME_SIZE, blocking until both the connection and
// stream send windows have room for each chunk (spec.md §4.5).
func (co *Conn) writeData(id uint32, b []byte, endOfStream bool) error {
	s := co.registry.Get(id)
	step := int(co.peerMaxFrameSize)
	if step <= 0 {
		step = int(DefaultMaxFrameSizeSetting)
	}

	for i := 0; i < len(b) || (len(b) == 0 && endOfStream); {
		remaining := len(b) - i

		co.flowMu.Lock()
		for remaining > 0 && (!co.connFlow.CanSend(1) || (s != nil && s.SendWindow() <= 0)) {
			select {
			case <-co.closer:
				co.flowMu.Unlock()
				return ErrTransportClosed
			default:
			}
			co.flowCond.Wait()
		}

		n := remaining
		if n > step {
			n = step
		}
		if avail := int(co.connFlow.SendWindow()); n > avail {
			n = avail
		}
		if s != nil {
			if avail := int(s.SendWindow()); n > avail {
				n = avail
			}
		}
		if n < 0 {
			n = 0
		}

		last := i+n == len(b)

		if s != nil {
			s.DebitSend(int64(n))
		}
		co.connFlow.DebitSend(int64(n))
		co.flowMu.Unlock()

		data := AcquireFrame(FrameData).(*Data)
		data.SetEndStream(endOfStream && last)
		data.SetData(b[i : i+n])

		frh := AcquireFrameHeader()
		frh.SetStream(id)
		frh.SetBody(data)
		co.enqueue(frh)

		i += n
		if len(b) == 0 {
			break
		}
	}

	return nil
}

func (co *Conn) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			co.cfg.Logger.Printf("h2core: writeLoop panic: %v\n%s", r, debug.Stack())
		}
		_ = co.c.Close()
	}()

	buffered := 0
	for frh := range co.writer {
		_, err := frh.WriteTo(co.bw)
		ReleaseFrameHeader(frh)

		if err != nil {
			co.cfg.Logger.Printf("h2core: write error: %v", err)
			return
		}

		if len(co.writer) == 0 || buffered > 10 {
			if err := co.bw.Flush(); err != nil {
				co.cfg.Logger.Printf("h2core: flush error: %v", err)
				return
			}
			buffered = 0
		} else {
			buffered++
		}
	}
}
