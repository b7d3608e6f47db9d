package http2

import (
	"bufio"
)

// PriorityRecord is the optional priority block carried by a HEADERS
// frame (spec.md §3 Data Model).
type PriorityRecord struct {
	StreamDependency uint32
	Exclusive        bool
	Weight           uint8
}

// CompleteHeaderBlock is the atomic result of assembling a HEADERS
// frame and its CONTINUATION frames (spec.md §3, §4.2). It is never
// observed partially by callers.
type CompleteHeaderBlock struct {
	Priority    *PriorityRecord
	Headers     []HeaderField
	EndOfStream bool
}

// AssembleHeaderBlock reads the HeaderBlockFragment carried by frh (a
// HEADERS frame whose body has already been parsed by Headers.Deserialize,
// so PADDED/PRIORITY prefixes are already stripped) plus any subsequent
// CONTINUATION frames on the same stream, decodes them through hp, and
// returns the completed block.
//
// br is the transport the remaining CONTINUATION frames are read from;
// maxFrameSize bounds each frame read; maxHeaderListSize bounds the
// running sum of decoded field sizes.
func AssembleHeaderBlock(br *bufio.Reader, frh *FrameHeader, hp *HPACK, maxFrameSize, maxHeaderListSize uint32) (*CompleteHeaderBlock, error) {
	h, ok := frh.Body().(*Headers)
	if !ok {
		return nil, NewConnError(InternalError, "AssembleHeaderBlock called on a non-HEADERS frame")
	}

	block := &CompleteHeaderBlock{
		EndOfStream: h.EndStream(),
	}

	if frh.Flags().Has(FlagPriority) {
		block.Priority = &PriorityRecord{
			StreamDependency: h.Stream() &^ (1 << 31),
			Exclusive:        h.Stream()&(1<<31) != 0,
			Weight:           h.Weight(),
		}
	}

	var total int
	appendFields := func(fragment []byte) error {
		fields, err := hp.DecodeFragment(fragment)
		if err != nil {
			return err
		}
		for i := range fields {
			total += fields[i].Size()
			if maxHeaderListSize != 0 && uint32(total) > maxHeaderListSize {
				return NewConnError(ProtocolError, "header list exceeds MAX_HEADER_LIST_SIZE")
			}
			cp := HeaderField{}
			fields[i].CopyTo(&cp)
			block.Headers = append(block.Headers, cp)
		}
		return nil
	}

	if err := appendFields(h.Headers()); err != nil {
		return nil, err
	}

	done := h.EndHeaders()
	stream := frh.Stream()

	for !done {
		cfrh, err := ReadFrameFromWithSize(br, maxFrameSize)
		if err != nil {
			return nil, err
		}

		c, ok := cfrh.Body().(*Continuation)
		if !ok || cfrh.Stream() != stream || cfrh.Len() == 0 {
			ReleaseFrameHeader(cfrh)
			return nil, NewConnError(ProtocolError, "expected CONTINUATION for the same stream")
		}

		err = appendFields(c.Fragment())
		done = c.EndHeaders()
		ReleaseFrameHeader(cfrh)
		if err != nil {
			return nil, err
		}
	}

	if err := hp.FinishBlock(); err != nil {
		return nil, err
	}

	if err := validatePseudoHeaders(block.Headers); err != nil {
		return nil, err
	}

	return block, nil
}

// validatePseudoHeaders enforces RFC 7540 §8.1.2.1/§8.1.2.3: every
// pseudo-header must precede all regular fields, appear at most once,
// and be one of the four request pseudo-headers a server recognizes.
// Trailers carry none of these and pass trivially.
func validatePseudoHeaders(fields []HeaderField) error {
	seenRegular := false
	seenPseudo := make(map[string]struct{}, 4)

	for i := range fields {
		f := &fields[i]
		if !f.IsPseudo() {
			seenRegular = true
			continue
		}
		if seenRegular {
			return NewConnError(ProtocolError, "pseudo-header field after a regular field")
		}
		if !f.IsKnownPseudo() {
			return NewConnError(ProtocolError, "unrecognized pseudo-header: "+f.Key())
		}
		if _, dup := seenPseudo[f.Key()]; dup {
			return NewConnError(ProtocolError, "duplicate pseudo-header: "+f.Key())
		}
		seenPseudo[f.Key()] = struct{}{}
	}

	return nil
}
