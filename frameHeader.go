package http2

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/arborian/h2core/http2utils"
)

const (
	// DefaultFrameHeaderSize is the 9-octet frame header size
	// (https://httpwg.org/specs/rfc7540.html#FrameHeader).
	DefaultFrameHeaderSize = 9

	// DefaultMaxFrameSize is the SETTINGS_MAX_FRAME_SIZE default.
	DefaultMaxFrameSize = 1 << 14

	// Frame flags. Some flags reuse the same bit across frame types
	// under a different name (e.g. FlagAck/FlagEndStream both 0x1),
	// since no single frame type ever needs both meanings at once.
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader is the 9-octet frame header plus the body it governs
// (https://tools.ietf.org/html/rfc7540#section-4.1); the frame codec
// of spec.md §4.1.
//
// Use AcquireFrameHeader/ReleaseFrameHeader instead of constructing a
// FrameHeader directly. A FrameHeader must not be used concurrently.
type FrameHeader struct {
	length int        // 24 bits
	kind   FrameType  // 8 bits
	flags  FrameFlags // 8 bits
	stream uint32     // 31 bits

	maxLen uint32

	rawHeader [DefaultFrameHeaderSize]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	frh := frameHeaderPool.Get().(*FrameHeader)
	frh.Reset()
	return frh
}

// ReleaseFrameHeader releases frh's body and returns frh to the pool.
func ReleaseFrameHeader(frh *FrameHeader) {
	ReleaseFrame(frh.fr)
	frameHeaderPool.Put(frh)
}

// Reset clears frh's fields. The body, if any, is not released —
// callers that want that must call ReleaseFrameHeader instead.
func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = DefaultMaxFrameSize
	frh.fr = nil
	frh.payload = frh.payload[:0]
}

// Type returns the frame type.
func (frh *FrameHeader) Type() FrameType {
	return frh.kind
}

// Flags returns the frame flags.
func (frh *FrameHeader) Flags() FrameFlags {
	return frh.flags
}

// SetFlags overwrites the frame flags.
func (frh *FrameHeader) SetFlags(flags FrameFlags) {
	frh.flags = flags
}

// Stream returns the stream id of the frame.
func (frh *FrameHeader) Stream() uint32 {
	return frh.stream
}

// SetStream sets the stream id of the frame.
func (frh *FrameHeader) SetStream(stream uint32) {
	frh.stream = stream & (1<<31 - 1)
}

// Len returns the payload length.
func (frh *FrameHeader) Len() int {
	return frh.length
}

// MaxLen returns the negotiated maximum payload length used to
// validate incoming frames.
func (frh *FrameHeader) MaxLen() uint32 {
	return frh.maxLen
}

// SetMaxLen sets the negotiated maximum payload length.
func (frh *FrameHeader) SetMaxLen(n uint32) {
	frh.maxLen = n
}

func (frh *FrameHeader) parseValues(header []byte) {
	frh.length = int(http2utils.BytesToUint24(header[:3]))
	frh.kind = FrameType(header[3])
	frh.flags = FrameFlags(header[4])
	frh.stream = http2utils.BytesToUint32(header[5:]) & (1<<31 - 1)
}

func (frh *FrameHeader) packHeader(header []byte) {
	http2utils.Uint24ToBytes(header[:3], uint32(frh.length))
	header[3] = byte(frh.kind)
	header[4] = byte(frh.flags)
	http2utils.Uint32ToBytes(header[5:], frh.stream)
}

// ReadFrameFrom reads one frame (header + body) using the default
// maximum frame size.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	return ReadFrameFromWithSize(br, DefaultMaxFrameSize)
}

// ReadFrameFromWithSize reads one frame (header + body) from br,
// rejecting one whose length exceeds max with a FrameSizeError
// ConnError (spec.md §4.1). This fuses read_frame_header and
// read_body_into into a single call, as the teacher's FrameHeader
// owns reading its own body.
func ReadFrameFromWithSize(br *bufio.Reader, max uint32) (*FrameHeader, error) {
	frh := AcquireFrameHeader()
	frh.maxLen = max

	_, err := frh.readFrom(br)
	if err != nil {
		if frh.fr != nil {
			ReleaseFrameHeader(frh)
		} else {
			frameHeaderPool.Put(frh)
		}
		return nil, err
	}

	return frh, nil
}

// ReadFrom reads one frame from br into frh.
func (frh *FrameHeader) ReadFrom(br *bufio.Reader) (int64, error) {
	return frh.readFrom(br)
}

func (frh *FrameHeader) readFrom(br *bufio.Reader) (int64, error) {
	n, err := io.ReadFull(br, frh.rawHeader[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return int64(n), ErrTransportClosed
		}
		return int64(n), err
	}

	rn := int64(DefaultFrameHeaderSize)

	frh.parseValues(frh.rawHeader[:])
	if err := frh.checkLen(); err != nil {
		return rn, err
	}

	if !IsKnownFrameType(frh.kind) {
		if frh.length > 0 {
			if _, err := io.CopyN(io.Discard, br, int64(frh.length)); err != nil {
				return rn, ErrTransportClosed
			}
		}
		return rn + int64(frh.length), ErrUnknownFrameType
	}

	frh.fr = AcquireFrame(frh.kind)

	if frh.length > 0 {
		n := frh.length
		if n < 0 {
			panic(fmt.Sprintf("http2: negative frame length %d", n))
		}

		frh.payload = http2utils.Resize(frh.payload, n)

		nn, err := io.ReadFull(br, frh.payload[:n])
		rn += int64(nn)
		if err != nil {
			return rn, ErrTransportClosed
		}
	}

	return rn, frh.fr.Deserialize(frh)
}

// WriteTo serializes frh (header + body) into w. Writes from
// different streams must be serialized by the caller — the arbiter
// owns the single write-side goroutine (spec.md §4.6).
func (frh *FrameHeader) WriteTo(w *bufio.Writer) (wb int64, err error) {
	frh.fr.Serialize(frh)

	frh.length = len(frh.payload)
	frh.packHeader(frh.rawHeader[:])

	n, err := w.Write(frh.rawHeader[:])
	if err == nil {
		wb += int64(n)

		n, err = w.Write(frh.payload)
		wb += int64(n)
	}

	return wb, err
}

// Body returns the frame's typed payload.
func (frh *FrameHeader) Body() Frame {
	return frh.fr
}

// SetBody attaches fr as frh's body, adopting its FrameType.
func (frh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("http2: FrameHeader body cannot be nil")
	}

	frh.kind = fr.Type()
	frh.fr = fr
}

func (frh *FrameHeader) setPayload(payload []byte) {
	frh.payload = append(frh.payload[:0], payload...)
}

func (frh *FrameHeader) checkLen() error {
	if frh.maxLen != 0 && frh.length > int(frh.maxLen) {
		return NewConnError(FrameSizeError,
			fmt.Sprintf("frame length %d exceeds MAX_FRAME_SIZE %d", frh.length, frh.maxLen))
	}
	return nil
}
