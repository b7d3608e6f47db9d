package http2

import (
	"bufio"
	"bytes"
	"testing"
)

// roundTrip writes frh to the wire and reads it back, returning the
// freshly parsed FrameHeader. The caller owns releasing both.
func roundTrip(t *testing.T, frh *FrameHeader) *FrameHeader {
	t.Helper()

	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)
	if _, err := frh.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(buf)
	got, err := ReadFrameFromWithSize(br, DefaultMaxFrameSize)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestDataFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	data := AcquireFrame(FrameData).(*Data)
	data.SetData([]byte("hello, http/2"))
	data.SetEndStream(true)
	frh.SetBody(data)
	frh.SetStream(3)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	if got.Type() != FrameData || got.Stream() != 3 {
		t.Fatalf("got type=%s stream=%d", got.Type(), got.Stream())
	}
	gd := got.Body().(*Data)
	if string(gd.Data()) != "hello, http/2" {
		t.Fatalf("got %q", gd.Data())
	}
	if !gd.EndStream() {
		t.Fatal("expected EndStream to round-trip as set")
	}
}

func TestHeadersFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetHeaders([]byte("fake-hpack-block"))
	h.SetEndHeaders(true)
	h.SetEndStream(true)
	frh.SetBody(h)
	frh.SetStream(1)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gh := got.Body().(*Headers)
	if !gh.EndHeaders() || !gh.EndStream() {
		t.Fatalf("got endHeaders=%v endStream=%v", gh.EndHeaders(), gh.EndStream())
	}
	if string(gh.Headers()) != "fake-hpack-block" {
		t.Fatalf("got %q", gh.Headers())
	}
}

func TestSettingsFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	st := AcquireFrame(FrameSettings).(*Settings)
	st.HeaderTableSize = 8192
	st.MaxConcurrentStreams = 250
	st.InitialWindowSize = 1 << 20
	st.MaxFrameSize = DefaultMaxFrameSizeSetting
	frh.SetBody(st)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gs := got.Body().(*Settings)
	if gs.IsAck() {
		t.Fatal("expected a non-ack SETTINGS frame")
	}
	if gs.HeaderTableSize != 8192 || gs.MaxConcurrentStreams != 250 || gs.InitialWindowSize != 1<<20 {
		t.Fatalf("unexpected settings: %+v", gs)
	}
}

func TestSettingsAckFrameCarriesNoParameters(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	st := AcquireFrame(FrameSettings).(*Settings)
	st.SetAck(true)
	frh.SetBody(st)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gs := got.Body().(*Settings)
	if !gs.IsAck() {
		t.Fatal("expected an ack SETTINGS frame")
	}
}

func TestPingFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("12345678"))
	frh.SetBody(ping)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gp := got.Body().(*Ping)
	if gp.IsAck() {
		t.Fatal("expected a non-ack PING")
	}
	if string(gp.Data()) != "12345678" {
		t.Fatalf("got %q", gp.Data())
	}
}

func TestGoAwayFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(41)
	ga.SetCode(ProtocolError)
	ga.SetData([]byte("bye"))
	frh.SetBody(ga)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gg := got.Body().(*GoAway)
	if gg.Stream() != 41 || gg.Code() != ProtocolError || string(gg.Data()) != "bye" {
		t.Fatalf("unexpected goaway: %+v", gg)
	}
}

func TestWindowUpdateFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(65535)
	frh.SetBody(wu)
	frh.SetStream(5)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gw := got.Body().(*WindowUpdate)
	if gw.Increment() != 65535 {
		t.Fatalf("got %d, want 65535", gw.Increment())
	}
}

func TestRstStreamFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(CancelError)
	frh.SetBody(rst)
	frh.SetStream(7)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gr := got.Body().(*RstStream)
	if gr.Code() != CancelError {
		t.Fatalf("got %s, want CANCEL", gr.Code())
	}
}

func TestContinuationFrameRoundTrip(t *testing.T) {
	frh := AcquireFrameHeader()
	defer ReleaseFrameHeader(frh)

	c := AcquireFrame(FrameContinuation).(*Continuation)
	c.SetFragment([]byte("more-hpack"))
	c.SetEndHeaders(true)
	frh.SetBody(c)
	frh.SetStream(9)

	got := roundTrip(t, frh)
	defer ReleaseFrameHeader(got)

	gc := got.Body().(*Continuation)
	if !gc.EndHeaders() || string(gc.Fragment()) != "more-hpack" {
		t.Fatalf("got endHeaders=%v fragment=%q", gc.EndHeaders(), gc.Fragment())
	}
}

func TestUnknownFrameTypeIsSkipped(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)

	var header [9]byte
	payload := []byte("opaque")
	header[0], header[1], header[2] = 0, 0, byte(len(payload))
	header[3] = 0xff // unknown frame type
	if _, err := bw.Write(header[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := bw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(buf)
	_, err := ReadFrameFromWithSize(br, DefaultMaxFrameSize)
	if err != ErrUnknownFrameType {
		t.Fatalf("got %v, want ErrUnknownFrameType", err)
	}
}

func TestFrameLengthExceedingMaxIsRejected(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(buf)

	var header [9]byte
	header[0], header[1], header[2] = 0, 1, 0 // length = 256
	header[3] = byte(FrameData)
	if _, err := bw.Write(header[:]); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(buf)
	_, err := ReadFrameFromWithSize(br, 100)
	if err == nil {
		t.Fatal("expected a FRAME_SIZE_ERROR")
	}
	ce, ok := err.(*ConnError)
	if !ok {
		t.Fatalf("got %T, want *ConnError", err)
	}
	if ce.Code != FrameSizeError {
		t.Fatalf("got code %s, want FRAME_SIZE_ERROR", ce.Code)
	}
}
