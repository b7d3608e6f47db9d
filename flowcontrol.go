package http2

// FlowWindow is one signed flow-control window in the range
// [-2^31, 2^31-1] (spec.md §3 Invariants). A negative window after a
// SETTINGS adjustment is permitted; sends simply block until it
// returns non-negative.
type FlowWindow struct {
	size int64
}

// NewFlowWindow creates a window initialized to n.
func NewFlowWindow(n int32) FlowWindow {
	return FlowWindow{size: int64(n)}
}

// Size returns the current window size.
func (w *FlowWindow) Size() int64 {
	return w.size
}

// Credit adds n to the window, e.g. on WINDOW_UPDATE receipt or an
// increased SETTINGS_INITIAL_WINDOW_SIZE.
func (w *FlowWindow) Credit(n int64) {
	w.size += n
}

// Debit subtracts n, e.g. when DATA of length n is sent or received.
// It never blocks; callers needing to block on window availability
// must check Size() first.
func (w *FlowWindow) Debit(n int64) {
	w.size -= n
}

// CanSend reports whether n octets may be sent without driving the
// window negative.
func (w *FlowWindow) CanSend(n int64) bool {
	return w.size-n >= 0
}

// ConnFlowControl tracks the connection-wide send/receive windows
// layered on top of each stream's own windows (spec.md §4.5): sending
// DATA of length L debits the min of stream and connection send
// windows, and receiving DATA debits both receive windows.
type ConnFlowControl struct {
	send FlowWindow
	recv FlowWindow

	// maxWindow is the receive window ceiling this endpoint advertises;
	// used to compute WINDOW_UPDATE refunds.
	maxWindow int32
}

// NewConnFlowControl creates connection-level flow control. The send
// window (what the peer grants us) starts at the RFC 7540 §6.5.2
// default of 65535 until a WINDOW_UPDATE says otherwise; the receive
// window (what we grant the peer) starts at, and is refunded up to,
// maxWindow.
func NewConnFlowControl(maxWindow int32) *ConnFlowControl {
	return &ConnFlowControl{
		send:      NewFlowWindow(int32(DefaultWindowSize)),
		recv:      NewFlowWindow(maxWindow),
		maxWindow: maxWindow,
	}
}

// SendWindow returns the connection's outbound window.
func (c *ConnFlowControl) SendWindow() int64 {
	return c.send.Size()
}

// CreditSend applies a connection WINDOW_UPDATE increment.
func (c *ConnFlowControl) CreditSend(n int64) {
	c.send.Credit(n)
}

// DebitSend accounts for L octets of DATA about to be sent.
func (c *ConnFlowControl) DebitSend(l int64) {
	c.send.Debit(l)
}

// CanSend reports whether l octets can be sent on the connection
// window without going negative.
func (c *ConnFlowControl) CanSend(l int64) bool {
	return c.send.CanSend(l)
}

// OnRecv accounts for l octets of DATA just received (including
// padding and the pad-length octet, per spec.md §4.5) and reports the
// WINDOW_UPDATE increment to emit under a refund-at-half-consumption
// policy, or 0 if no refund is due yet.
func (c *ConnFlowControl) OnRecv(l int64) int32 {
	c.recv.Debit(l)
	return refundIncrement(c.recv.Size(), c.maxWindow, &c.recv)
}

// refundIncrement implements "refund when half consumed": once the
// remaining window drops to or below half of max, credit it back up
// to max and return the increment sent to the peer.
func refundIncrement(current int64, max int32, w *FlowWindow) int32 {
	if max <= 0 {
		return 0
	}
	if current > int64(max)/2 {
		return 0
	}
	inc := int64(max) - current
	if inc <= 0 {
		return 0
	}
	w.Credit(inc)
	return int32(inc)
}

// StreamOnRecv accounts for l octets of DATA received on s and
// reports the per-stream WINDOW_UPDATE increment to emit, if any,
// under the same refund-at-half-consumption policy.
func StreamOnRecv(s *Stream, l int64, max int32) int32 {
	s.DebitRecv(l)
	w := FlowWindow{size: s.recvWindow}
	inc := refundIncrement(w.size, max, &w)
	s.recvWindow = w.size
	return inc
}
