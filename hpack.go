package http2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HPACK wraps golang.org/x/net/http2/hpack's decoder and encoder
// behind the single decode-one-block / encode-list surface the rest
// of the core consumes (spec.md §4.2, §6 "HPACK tables ... we consume
// them via an interface"). Hand-rolling the static/dynamic tables and
// Huffman coding was explicitly scoped out of the spec as an external
// collaborator; x/net/http2/hpack is the real implementation the
// teacher's own go.mod already names as a dependency.
type HPACK struct {
	dec *hpack.Decoder
	enc *hpack.Encoder
	buf bytes.Buffer

	fields []HeaderField
}

// NewHPACK creates an HPACK codec with dynamic table size tableSize
// for both directions.
func NewHPACK(tableSize uint32) *HPACK {
	h := &HPACK{}
	h.dec = hpack.NewDecoder(tableSize, h.emit)
	h.enc = hpack.NewEncoder(&h.buf)
	h.enc.SetMaxDynamicTableSize(tableSize)
	return h
}

func (h *HPACK) emit(f hpack.HeaderField) {
	hf := HeaderField{}
	hf.SetKey(f.Name)
	hf.SetValue(f.Value)
	hf.sensible = f.Sensitive
	h.fields = append(h.fields, hf)
}

// SetMaxDecoderTableSize applies our own advertised
// SETTINGS_HEADER_TABLE_SIZE to the decoding side.
func (h *HPACK) SetMaxDecoderTableSize(size uint32) {
	h.dec.SetMaxDynamicTableSize(size)
}

// SetMaxEncoderTableSize applies a peer-advertised
// SETTINGS_HEADER_TABLE_SIZE to the encoding side.
func (h *HPACK) SetMaxEncoderTableSize(size uint32) {
	h.enc.SetMaxDynamicTableSize(size)
}

// DecodeFragment feeds one HeaderBlockFragment (the payload of a
// HEADERS or CONTINUATION frame, padding and priority prefix already
// stripped) to the decoder, returning any fields it completed.
//
// The returned slice is only valid until the next Decode* call.
func (h *HPACK) DecodeFragment(fragment []byte) ([]HeaderField, error) {
	h.fields = h.fields[:0]
	if _, err := h.dec.Write(fragment); err != nil {
		return nil, NewConnError(CompressionError, err.Error())
	}
	return h.fields, nil
}

// FinishBlock must be called once EndOfHeaders has been seen for a
// header block. It reports a COMPRESSION_ERROR connection error if
// the decoder is left mid-field, i.e. the block was truncated
// (spec.md §4.2's Open Question).
func (h *HPACK) FinishBlock() error {
	if err := h.dec.Close(); err != nil {
		return NewConnError(CompressionError, "truncated header block")
	}
	return nil
}

// EncodeList serializes fields as a single HeaderBlockFragment,
// appending it to dst.
func (h *HPACK) EncodeList(dst []byte, fields []HeaderField) ([]byte, error) {
	h.buf.Reset()
	for i := range fields {
		err := h.enc.WriteField(hpack.HeaderField{
			Name:      fields[i].Key(),
			Value:     fields[i].Value(),
			Sensitive: fields[i].IsSensible(),
		})
		if err != nil {
			return dst, err
		}
	}
	return append(dst, h.buf.Bytes()...), nil
}
