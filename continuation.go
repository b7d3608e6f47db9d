package http2

const FrameContinuation FrameType = 0x9

var _ Frame = &Continuation{}

// Continuation carries the next chunk of a HeaderBlockFragment that
// didn't fit in the preceding HEADERS (or CONTINUATION) frame, plus
// the EndHeaders flag the assembler watches for (spec.md §4.2).
//
// https://tools.ietf.org/html/rfc7540#section-6.10
type Continuation struct {
	endHeaders bool
	fragment   []byte
}

func (c *Continuation) Type() FrameType {
	return FrameContinuation
}

func (c *Continuation) Reset() {
	c.endHeaders = false
	c.fragment = c.fragment[:0]
}

// CopyTo copies c's fields to c2.
func (c *Continuation) CopyTo(c2 *Continuation) {
	c2.endHeaders = c.endHeaders
	c2.fragment = append(c2.fragment[:0], c.fragment...)
}

// Fragment returns this frame's share of the HeaderBlockFragment.
func (c *Continuation) Fragment() []byte {
	return c.fragment
}

func (c *Continuation) SetEndHeaders(value bool) {
	c.endHeaders = value
}

func (c *Continuation) EndHeaders() bool {
	return c.endHeaders
}

func (c *Continuation) SetFragment(b []byte) {
	c.fragment = append(c.fragment[:0], b...)
}

// AppendFragment appends b to the fragment.
func (c *Continuation) AppendFragment(b []byte) {
	c.fragment = append(c.fragment, b...)
}

// Write appends b to the fragment; it exists so a Continuation can be
// built incrementally through io.Copy-style callers.
func (c *Continuation) Write(b []byte) (int, error) {
	c.AppendFragment(b)
	return len(b), nil
}

func (c *Continuation) Deserialize(fr *FrameHeader) error {
	c.endHeaders = fr.Flags().Has(FlagEndHeaders)
	c.SetFragment(fr.payload)

	// A non-final CONTINUATION carrying zero bytes makes no progress
	// toward EndHeaders; a peer could otherwise wedge the assembler's
	// loop open indefinitely (the CONTINUATION-flood class of attack).
	if !c.endHeaders && len(c.fragment) == 0 {
		return ErrMissingBytes
	}

	return nil
}

func (c *Continuation) Serialize(fr *FrameHeader) {
	if c.endHeaders {
		fr.SetFlags(
			fr.Flags().Add(FlagEndHeaders))
	}

	fr.setPayload(c.fragment)
}
