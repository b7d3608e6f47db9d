package http2

import (
	"bufio"
	"io"
)

// Preface is the fixed client connection preface
// (https://tools.ietf.org/html/rfc7540#section-3.5). Reading and
// writing it sits outside the core engine's component design (spec.md
// §1 Non-goals), but Conn.Serve still has to get past it before the
// arbiter's frame loop can begin.
var Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// ReadPreface consumes the client preface from br, reporting
// ErrBadPreface if the bytes don't match.
func ReadPreface(br *bufio.Reader) error {
	buf := make([]byte, len(Preface))
	if _, err := io.ReadFull(br, buf); err != nil {
		return ErrBadPreface
	}
	for i := range buf {
		if buf[i] != Preface[i] {
			return ErrBadPreface
		}
	}
	return nil
}

// WriteHandshake writes the server's half of connection startup: our
// initial SETTINGS frame, immediately followed by a connection-level
// WINDOW_UPDATE raising the receive window to cfg.MaxConnectionWindow
// above the SETTINGS default.
func WriteHandshake(bw *bufio.Writer, cfg *Config) error {
	frh := AcquireFrameHeader()
	frh.SetBody(cfg.settings())
	if _, err := frh.WriteTo(bw); err != nil {
		ReleaseFrameHeader(frh)
		return err
	}
	ReleaseFrameHeader(frh)

	if cfg.MaxConnectionWindow > int32(DefaultWindowSize) {
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(int(cfg.MaxConnectionWindow - int32(DefaultWindowSize)))

		frh = AcquireFrameHeader()
		frh.SetBody(wu)
		if _, err := frh.WriteTo(bw); err != nil {
			ReleaseFrameHeader(frh)
			return err
		}
		ReleaseFrameHeader(frh)
	}

	return bw.Flush()
}
