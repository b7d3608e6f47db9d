package http2

import "testing"

func TestStreamIdleToOpenOnHeaders(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	if err := s.Apply(EventRecvHeaders, false); err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamOpen {
		t.Fatalf("got %s, want Open", s.State())
	}
}

func TestStreamIdleToHalfClosedRemoteOnHeadersWithEOS(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	if err := s.Apply(EventRecvHeaders, true); err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("got %s, want HalfClosedRemote", s.State())
	}
}

func TestStreamDataClosesOnEOS(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)
	mustApply(t, s, EventRecvData, true)

	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("got %s, want HalfClosedRemote", s.State())
	}
}

func TestStreamDuplicateHeadersWithoutEOSResets(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)

	err := s.Apply(EventRecvHeaders, false)
	if err == nil {
		t.Fatal("expected an error for duplicate HEADERS without EndOfStream")
	}
	if s.State() != StreamReset {
		t.Fatalf("got %s, want Reset", s.State())
	}
}

func TestStreamTrailersRequireEOS(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)

	err := s.Apply(EventRecvTrailers, false)
	if err == nil {
		t.Fatal("expected an error for trailers without EndOfStream")
	}
	if s.State() != StreamReset {
		t.Fatalf("got %s, want Reset", s.State())
	}
}

func TestStreamTrailersUnblockHalfClosedLocal(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)
	mustApply(t, s, EventSendHeaders, true) // -> HalfClosedLocal

	if s.State() != StreamHalfClosedLocal {
		t.Fatalf("got %s, want HalfClosedLocal", s.State())
	}

	mustApply(t, s, EventRecvTrailers, true)

	if s.State() != StreamClosed {
		t.Fatalf("got %s, want Closed", s.State())
	}
}

func TestStreamEventOnTerminalStreamErrors(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvReset, false)
	if s.State() != StreamReset {
		t.Fatalf("got %s, want Reset", s.State())
	}

	if err := s.Apply(EventRecvData, false); err == nil {
		t.Fatal("expected an error for an event on a terminal stream")
	}
}

func TestStreamWriteBeforeHeadersIsApplicationError(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)

	err := s.Apply(EventSendData, false)
	if err == nil {
		t.Fatal("expected an application error writing data before headers")
	}
	if _, ok := err.(*ApplicationError); !ok {
		t.Fatalf("got %T, want *ApplicationError", err)
	}
	// A misuse error must not move the wire state.
	if s.State() != StreamOpen {
		t.Fatalf("got %s, want state unchanged at Open", s.State())
	}
}

func TestStreamTrailersWithoutDataIsApplicationError(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)
	mustApply(t, s, EventSendHeaders, false)

	err := s.Apply(EventSendTrailers, true)
	if _, ok := err.(*ApplicationError); !ok {
		t.Fatalf("got %T, want *ApplicationError", err)
	}
}

func TestStreamTrailersMustCarryEOS(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)
	mustApply(t, s, EventSendHeaders, false)
	mustApply(t, s, EventSendData, false)

	err := s.Apply(EventSendTrailers, false)
	if _, ok := err.(*ApplicationError); !ok {
		t.Fatalf("got %T, want *ApplicationError", err)
	}
}

func TestStreamDataAfterLocalCompletionIsApplicationError(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)
	mustApply(t, s, EventSendHeaders, true) // -> HalfClosedLocal

	err := s.Apply(EventSendData, false)
	if _, ok := err.(*ApplicationError); !ok {
		t.Fatalf("got %T, want *ApplicationError", err)
	}
	if s.State() != StreamHalfClosedLocal {
		t.Fatalf("got %s, want state unchanged at HalfClosedLocal", s.State())
	}
}

func TestStreamTrailersAfterLocalCompletionIsApplicationError(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	mustApply(t, s, EventRecvHeaders, false)
	mustApply(t, s, EventSendHeaders, true) // -> HalfClosedLocal

	err := s.Apply(EventSendTrailers, true)
	if _, ok := err.(*ApplicationError); !ok {
		t.Fatalf("got %T, want *ApplicationError", err)
	}
}

func TestStreamFlowControlWindows(t *testing.T) {
	s := NewStream(3, 1000)
	defer s.Release()

	if s.SendWindow() != 1000 || s.RecvWindow() != 1000 {
		t.Fatalf("unexpected initial windows: send=%d recv=%d", s.SendWindow(), s.RecvWindow())
	}

	s.DebitSend(400)
	if s.SendWindow() != 600 {
		t.Fatalf("got %d, want 600", s.SendWindow())
	}

	s.CreditSend(100)
	if s.SendWindow() != 700 {
		t.Fatalf("got %d, want 700", s.SendWindow())
	}

	s.DebitRecv(250)
	if s.RecvWindow() != 750 {
		t.Fatalf("got %d, want 750", s.RecvWindow())
	}

	s.CreditRecv(250)
	if s.RecvWindow() != 1000 {
		t.Fatalf("got %d, want 1000", s.RecvWindow())
	}
}

func TestStreamActive(t *testing.T) {
	s := NewStream(1, 65535)
	defer s.Release()

	if !s.Active() {
		t.Fatal("Idle stream should be Active (consumes a concurrency slot)")
	}

	mustApply(t, s, EventRecvHeaders, true)
	mustApply(t, s, EventSendHeaders, true)

	if s.State() != StreamClosed {
		t.Fatalf("got %s, want Closed", s.State())
	}
	if s.Active() {
		t.Fatal("Closed stream should not be Active")
	}
}

func mustApply(t *testing.T, s *Stream, event StreamEvent, eos bool) {
	t.Helper()
	if err := s.Apply(event, eos); err != nil {
		t.Fatalf("Apply(%s, %v): %v", event, eos, err)
	}
}
