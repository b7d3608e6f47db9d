package http2

import (
	"fmt"
	"sync"
)

// FrameType identifies the kind of an HTTP/2 frame body
// (https://tools.ietf.org/html/rfc7540#section-11.2).
type FrameType uint8

// String returns the RFC 7540 name of t, e.g. "HEADERS".
func (t FrameType) String() string {
	names := [...]string{"DATA", "HEADERS", "PRIORITY", "RST_STREAM", "SETTINGS",
		"PUSH_PROMISE", "PING", "GOAWAY", "WINDOW_UPDATE", "CONTINUATION"}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("UNKNOWN_FRAME_TYPE(0x%x)", uint8(t))
}

// FrameFlags are the 8 bits carried in a frame header; meaning is
// frame-type specific.
type FrameFlags uint8

// Has reports whether f contains every bit in mask.
func (f FrameFlags) Has(mask FrameFlags) bool {
	return f&mask == mask
}

// Add returns f with mask set.
func (f FrameFlags) Add(mask FrameFlags) FrameFlags {
	return f | mask
}

// Frame is the payload-specific behaviour every frame body implements.
// A FrameHeader owns exactly one Frame and drives (de)serialization
// through it.
//
// Implementations are pooled; acquire through AcquireFrame and give
// back through ReleaseFrame rather than constructing directly.
type Frame interface {
	// Type returns the wire FrameType this body serializes as.
	Type() FrameType

	// Reset clears the body so it can be reused from the pool.
	Reset()

	// Deserialize populates the body from frh's already-read payload.
	Deserialize(frh *FrameHeader) error

	// Serialize writes the body's wire representation into frh's
	// payload buffer, ready for FrameHeader.WriteTo.
	Serialize(frh *FrameHeader)
}

type frameFactory struct {
	pool sync.Pool
}

func newFrameFactory(newFn func() Frame) *frameFactory {
	return &frameFactory{
		pool: sync.Pool{
			New: func() interface{} { return newFn() },
		},
	}
}

// frameFactories is indexed by FrameType; nil entries are unknown
// types, which the codec frames-and-skips per spec.md §4.1.
var frameFactories = [maxKnownFrameType + 1]*frameFactory{
	FrameData:         newFrameFactory(func() Frame { return &Data{} }),
	FrameHeaders:      newFrameFactory(func() Frame { return &Headers{} }),
	FramePriority:     newFrameFactory(func() Frame { return &Priority{} }),
	FrameResetStream:  newFrameFactory(func() Frame { return &RstStream{} }),
	FrameSettings:     newFrameFactory(func() Frame { return &Settings{} }),
	FramePushPromise:  newFrameFactory(func() Frame { return &PushPromise{} }),
	FramePing:         newFrameFactory(func() Frame { return &Ping{} }),
	FrameGoAway:       newFrameFactory(func() Frame { return &GoAway{} }),
	FrameWindowUpdate: newFrameFactory(func() Frame { return &WindowUpdate{} }),
	FrameContinuation: newFrameFactory(func() Frame { return &Continuation{} }),
}

const maxKnownFrameType = FrameContinuation

// IsKnownFrameType reports whether t is one of the ten frame types
// the core recognizes. Unknown types are still framed (the codec
// reads past their payload) but are otherwise ignored, per spec.md §4.1.
func IsKnownFrameType(t FrameType) bool {
	return t <= maxKnownFrameType
}

// AcquireFrame returns a pooled Frame body for kind. The caller must
// release it (directly, or via ReleaseFrameHeader once it has been
// attached to a FrameHeader) through ReleaseFrame.
func AcquireFrame(kind FrameType) Frame {
	if !IsKnownFrameType(kind) {
		return nil
	}
	fr := frameFactories[kind].pool.Get().(Frame)
	fr.Reset()
	return fr
}

// ReleaseFrame resets fr and returns it to its type's pool. A nil fr
// is a no-op, since FrameHeader.Body() may legitimately be nil for an
// unknown frame type.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	f := frameFactories[fr.Type()]
	if f == nil {
		return
	}
	fr.Reset()
	f.pool.Put(fr)
}
