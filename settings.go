package http2

import (
	"github.com/arborian/h2core/http2utils"
)

const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

const (
	// Default SETTINGS parameters (https://tools.ietf.org/html/rfc7540#section-6.5.2).
	DefaultHeaderTableSize      uint32 = 4096
	DefaultConcurrentStreams    uint32 = 100
	DefaultWindowSize           uint32 = 1<<16 - 1
	DefaultMaxFrameSizeSetting  uint32 = 1 << 14
	MaxWindowSize                      = 1<<31 - 1
	MaxAllowedFrameSize                = 1<<24 - 1

	// SETTINGS parameter identifiers.
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

// Settings is the SETTINGS frame body, carrying connection-level
// parameters negotiated between endpoints
// (https://tools.ietf.org/html/rfc7540#section-6.5). An empty SETTINGS
// frame with FlagAck set acknowledges the peer's previous SETTINGS.
type Settings struct {
	ack bool

	HeaderTableSize      uint32
	DisablePush          bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset restores st to the RFC 7540 defaults.
func (st *Settings) Reset() {
	st.ack = false
	st.HeaderTableSize = DefaultHeaderTableSize
	st.DisablePush = false
	st.MaxConcurrentStreams = DefaultConcurrentStreams
	st.InitialWindowSize = DefaultWindowSize
	st.MaxFrameSize = DefaultMaxFrameSizeSetting
	st.MaxHeaderListSize = 0
}

// IsAck reports whether this frame is a SETTINGS acknowledgement.
func (st *Settings) IsAck() bool {
	return st.ack
}

// SetAck marks st as a SETTINGS acknowledgement; an ack carries no
// parameters.
func (st *Settings) SetAck(ack bool) {
	st.ack = ack
}

func (st *Settings) CopyTo(other *Settings) {
	*other = *st
}

// Deserialize decodes a SETTINGS payload into st, six octets per
// parameter (https://tools.ietf.org/html/rfc7540#section-6.5).
// Unknown identifiers are ignored, as the RFC requires.
func (st *Settings) Deserialize(fr *FrameHeader) error {
	st.ack = fr.Flags().Has(FlagAck)
	if st.ack {
		return nil
	}

	payload := fr.payload
	if len(payload)%6 != 0 {
		return NewConnError(FrameSizeError, "SETTINGS payload is not a multiple of 6")
	}

	for i := 0; i+6 <= len(payload); i += 6 {
		id := uint16(payload[i])<<8 | uint16(payload[i+1])
		value := http2utils.BytesToUint32(payload[i+2 : i+6])

		switch id {
		case settingHeaderTableSize:
			st.HeaderTableSize = value
		case settingEnablePush:
			if value > 1 {
				return NewConnError(ProtocolError, "invalid ENABLE_PUSH value")
			}
			st.DisablePush = value == 0
		case settingMaxConcurrentStreams:
			st.MaxConcurrentStreams = value
		case settingInitialWindowSize:
			if value > MaxWindowSize {
				return NewConnError(FlowControlError, "INITIAL_WINDOW_SIZE too large")
			}
			st.InitialWindowSize = value
		case settingMaxFrameSize:
			if value < DefaultMaxFrameSizeSetting || value > MaxAllowedFrameSize {
				return NewConnError(ProtocolError, "invalid MAX_FRAME_SIZE value")
			}
			st.MaxFrameSize = value
		case settingMaxHeaderListSize:
			st.MaxHeaderListSize = value
		}
	}

	return nil
}

// Serialize encodes st's parameters into fr's payload. An ack carries
// no parameters.
func (st *Settings) Serialize(fr *FrameHeader) {
	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.setPayload(nil)
		return
	}

	payload := make([]byte, 0, 36)
	payload = appendSetting(payload, settingHeaderTableSize, st.HeaderTableSize)
	if st.DisablePush {
		payload = appendSetting(payload, settingEnablePush, 0)
	}
	payload = appendSetting(payload, settingMaxConcurrentStreams, st.MaxConcurrentStreams)
	payload = appendSetting(payload, settingInitialWindowSize, st.InitialWindowSize)
	payload = appendSetting(payload, settingMaxFrameSize, st.MaxFrameSize)
	if st.MaxHeaderListSize != 0 {
		payload = appendSetting(payload, settingMaxHeaderListSize, st.MaxHeaderListSize)
	}

	fr.setPayload(payload)
}

func appendSetting(dst []byte, id uint16, value uint32) []byte {
	dst = append(dst, byte(id>>8), byte(id))
	return http2utils.AppendUint32Bytes(dst, value)
}
