package http2

import "time"

// Config holds the connection-level parameters the arbiter negotiates
// and enforces (spec.md §4.4, §4.5, §6). A zero Config is invalid;
// use DefaultConfig to obtain sane defaults.
type Config struct {
	// HeaderTableSize is our advertised SETTINGS_HEADER_TABLE_SIZE.
	HeaderTableSize uint32

	// MaxConcurrentStreams bounds active_remote_count (spec.md §4.4).
	MaxConcurrentStreams uint32

	// InitialWindowSize is the per-stream flow-control window granted
	// to new streams, and our advertised SETTINGS_INITIAL_WINDOW_SIZE.
	InitialWindowSize uint32

	// MaxConnectionWindow is the connection-wide receive window
	// ceiling used by the refund policy (spec.md §4.5).
	MaxConnectionWindow int32

	// MaxFrameSize is our advertised SETTINGS_MAX_FRAME_SIZE; frames
	// received larger than this are a FRAME_SIZE_ERROR connection error.
	MaxFrameSize uint32

	// MaxHeaderListSize bounds decoded header block size (spec.md §4.2).
	// Zero means unbounded.
	MaxHeaderListSize uint32

	// IdleTimeout closes the connection if no stream-bearing frame is
	// seen for this long. Zero disables the idle timer.
	IdleTimeout time.Duration

	// PingInterval, if non-zero, sends a keepalive PING on this cadence.
	PingInterval time.Duration

	// MaxRequestTime, if non-zero, arms one connection-wide timer that
	// is restarted each time a new stream is admitted; when it fires
	// the connection sends GOAWAY (NO_ERROR) and closes. Individual
	// streams are not timed.
	MaxRequestTime time.Duration

	// Debug enables logging of every received frame through Logger.
	Debug bool

	// Logger receives debug and error messages. Defaults to a
	// fasthttp.Logger-compatible stdlib logger when nil.
	Logger Logger
}

// Logger is the logging surface the arbiter writes through, matching
// fasthttp.Logger's shape so callers can hand in *log.Logger or a
// fasthttp-style adapter directly.
type Logger interface {
	Printf(format string, args ...interface{})
}

// DefaultConfig returns the RFC 7540 §6.5.2 defaults.
func DefaultConfig() *Config {
	return &Config{
		HeaderTableSize:      DefaultHeaderTableSize,
		MaxConcurrentStreams: DefaultConcurrentStreams,
		InitialWindowSize:    DefaultWindowSize,
		MaxConnectionWindow:  1 << 20,
		MaxFrameSize:         DefaultMaxFrameSizeSetting,
		MaxHeaderListSize:    0,
		Logger:               discardLogger{},
	}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

// settings builds the local SETTINGS frame body advertised at
// connection start from c.
func (c *Config) settings() *Settings {
	st := &Settings{}
	st.Reset()
	st.HeaderTableSize = c.HeaderTableSize
	st.MaxConcurrentStreams = c.MaxConcurrentStreams
	st.InitialWindowSize = c.InitialWindowSize
	st.MaxFrameSize = c.MaxFrameSize
	st.MaxHeaderListSize = c.MaxHeaderListSize
	return st
}
