package http2

import (
	"github.com/arborian/h2core/http2utils"
)

const FrameResetStream FrameType = 0x3

var _ Frame = &RstStream{}

// RstStream immediately terminates a stream, carrying the ErrorCode
// the sender blames for the termination (spec.md §4.3's EventRecvReset
// and EventCancel transitions both arrive as this frame type on the
// wire).
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStream struct {
	code ErrorCode
}

func (rst *RstStream) Type() FrameType {
	return FrameResetStream
}

// Code returns the reset's ErrorCode.
func (rst *RstStream) Code() ErrorCode {
	return rst.code
}

// SetCode sets the reset's ErrorCode.
func (rst *RstStream) SetCode(code ErrorCode) {
	rst.code = code
}

func (rst *RstStream) Reset() {
	rst.code = 0
}

// CopyTo copies rst's fields to r.
func (rst *RstStream) CopyTo(r *RstStream) {
	r.code = rst.code
}

// IsGraceful reports whether the reset reflects ordinary stream
// teardown (NO_ERROR or CANCEL) rather than a protocol violation worth
// logging.
func (rst *RstStream) IsGraceful() bool {
	return rst.code == NoError || rst.code == CancelError
}

func (rst *RstStream) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}

	rst.code = ErrorCode(http2utils.BytesToUint32(fr.payload))

	return nil
}

func (rst *RstStream) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], uint32(rst.code))
	fr.length = 4
}
