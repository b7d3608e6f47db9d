package http2

import (
	"github.com/arborian/h2core/http2utils"
)

const FramePriority FrameType = 0x2

var _ Frame = &Priority{}

// Priority is a standalone PRIORITY frame: a stream dependency, its
// exclusivity bit, and a weight, mirroring the PriorityRecord the
// assembler builds from a HEADERS frame's embedded priority prefix
// (spec.md §3 Data Model).
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	streamDep uint32
	exclusive bool
	weight    byte
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets priority fields.
func (pry *Priority) Reset() {
	pry.streamDep = 0
	pry.exclusive = false
	pry.weight = 0
}

func (pry *Priority) CopyTo(p *Priority) {
	p.streamDep = pry.streamDep
	p.exclusive = pry.exclusive
	p.weight = pry.weight
}

// StreamDependency returns the 31-bit stream this frame depends on.
func (pry *Priority) StreamDependency() uint32 {
	return pry.streamDep
}

// SetStreamDependency sets the dependency, masking off the exclusive bit.
func (pry *Priority) SetStreamDependency(stream uint32) {
	pry.streamDep = stream & (1<<31 - 1)
}

// Exclusive reports whether the dependency is exclusive.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the exclusive bit.
func (pry *Priority) SetExclusive(e bool) {
	pry.exclusive = e
}

// Weight returns the Priority frame weight.
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the Priority frame weight.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

func (pry *Priority) Deserialize(fr *FrameHeader) (err error) {
	if len(fr.payload) < 5 {
		return ErrMissingBytes
	}

	raw := http2utils.BytesToUint32(fr.payload)
	pry.exclusive = raw&(1<<31) != 0
	pry.streamDep = raw & (1<<31 - 1)
	pry.weight = fr.payload[4]

	return nil
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	raw := pry.streamDep
	if pry.exclusive {
		raw |= 1 << 31
	}
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], raw)
	fr.payload = append(fr.payload, pry.weight)
}
