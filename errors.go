package http2

import (
	"fmt"
)

// ErrorCode is an HTTP/2 error code as defined by
// https://tools.ietf.org/html/rfc7540#section-7
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectError         ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errorCodeNames = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	CancelError:          "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectError:         "CONNECT_ERROR",
	EnhanceYourCalm:      "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) && errorCodeNames[c] != "" {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", uint32(c))
}

// ConnError is a connection-level error (spec.md §7): the arbiter
// unwinds, emits GOAWAY with LastStreamID and Code, and closes the
// transport.
type ConnError struct {
	LastStreamID uint32
	Code         ErrorCode
	Message      string
}

func NewConnError(code ErrorCode, message string) *ConnError {
	return &ConnError{Code: code, Message: message}
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection error: %s: %s", e.Code, e.Message)
}

// StreamError is a stream-level error (spec.md §7): the arbiter emits
// RST_STREAM for StreamID and moves that stream to Reset, then keeps
// serving the connection.
type StreamError struct {
	StreamID uint32
	Code     ErrorCode
	Message  string
}

func NewStreamError(streamID uint32, code ErrorCode, message string) *StreamError {
	return &StreamError{StreamID: streamID, Code: code, Message: message}
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %d error: %s: %s", e.StreamID, e.Code, e.Message)
}

// ApplicationError reports a caller misuse of the StreamHandle write
// API (spec.md §9 "Exceptions as control flow"): the stream's wire
// state is unchanged when one of these is returned.
type ApplicationError struct {
	Message string
}

func NewApplicationError(message string) *ApplicationError {
	return &ApplicationError{Message: message}
}

func (e *ApplicationError) Error() string {
	return e.Message
}

var (
	ErrMissingBytes     = fmt.Errorf("frame is missing required bytes")
	ErrUnexpectedSize   = fmt.Errorf("field decode did not consume the whole fragment")
	ErrUnknownFrameType = fmt.Errorf("unknown frame type")
	ErrPayloadExceeds   = fmt.Errorf("frame payload exceeds the negotiated maximum size")
	ErrBadPreface       = fmt.Errorf("bad connection preface")
	ErrTransportClosed  = fmt.Errorf("transport closed")
)
