package http2

import "testing"

func neverRefuse(uint32) bool { return false }

func TestRegistryAdmitsNewStream(t *testing.T) {
	r := NewStreamRegistry(10)

	s, err := r.AdmitRemoteHeaders(1, false, neverRefuse)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() != 1 || s.State() != StreamOpen {
		t.Fatalf("got id=%d state=%s", s.ID(), s.State())
	}
	if r.Get(1) != s {
		t.Fatal("admitted stream not retrievable via Get")
	}
}

func TestRegistryRejectsStreamZero(t *testing.T) {
	r := NewStreamRegistry(10)

	_, err := r.AdmitRemoteHeaders(0, false, neverRefuse)
	if _, ok := err.(*ConnError); !ok {
		t.Fatalf("got %T, want *ConnError", err)
	}
}

func TestRegistryRejectsEvenStreamID(t *testing.T) {
	r := NewStreamRegistry(10)

	_, err := r.AdmitRemoteHeaders(2, false, neverRefuse)
	if _, ok := err.(*StreamError); !ok {
		t.Fatalf("got %T, want *StreamError", err)
	}
}

func TestRegistryRejectsBelowHighWaterMark(t *testing.T) {
	r := NewStreamRegistry(10)

	if _, err := r.AdmitRemoteHeaders(5, true, neverRefuse); err != nil {
		t.Fatal(err)
	}
	r.Delete(5)

	_, err := r.AdmitRemoteHeaders(3, false, neverRefuse)
	if _, ok := err.(*StreamError); !ok {
		t.Fatalf("got %T, want *StreamError for a descending stream id", err)
	}
}

func TestRegistryEnforcesMaxConcurrentStreams(t *testing.T) {
	r := NewStreamRegistry(1)

	if _, err := r.AdmitRemoteHeaders(1, false, neverRefuse); err != nil {
		t.Fatal(err)
	}

	_, err := r.AdmitRemoteHeaders(3, false, neverRefuse)
	se, ok := err.(*StreamError)
	if !ok {
		t.Fatalf("got %T, want *StreamError", err)
	}
	if se.Code != RefusedStreamError {
		t.Fatalf("got code %s, want REFUSED_STREAM", se.Code)
	}
}

func TestRegistryListenerCanRefuseStream(t *testing.T) {
	r := NewStreamRegistry(10)

	_, err := r.AdmitRemoteHeaders(1, false, func(uint32) bool { return true })
	se, ok := err.(*StreamError)
	if !ok {
		t.Fatalf("got %T, want *StreamError", err)
	}
	if se.Code != RefusedStreamError {
		t.Fatalf("got code %s, want REFUSED_STREAM", se.Code)
	}
	// A refused stream must not linger in the registry or consume a slot.
	if r.Get(1) != nil {
		t.Fatal("refused stream should not be registered")
	}
}

func TestRegistryActiveCountTracksLifecycle(t *testing.T) {
	r := NewStreamRegistry(10)

	s, err := r.AdmitRemoteHeaders(1, false, neverRefuse)
	if err != nil {
		t.Fatal(err)
	}
	if r.activeRemoteCount != 1 {
		t.Fatalf("got %d, want 1", r.activeRemoteCount)
	}

	if err := r.Transition(s, EventRecvData, true); err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("got %s, want HalfClosedRemote", s.State())
	}
	// still active: the local side hasn't completed.
	if r.activeRemoteCount != 1 {
		t.Fatalf("got %d, want 1 (still active pending local completion)", r.activeRemoteCount)
	}

	if err := r.Transition(s, EventSendHeaders, true); err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamClosed {
		t.Fatalf("got %s, want Closed", s.State())
	}
	if r.activeRemoteCount != 0 {
		t.Fatalf("got %d, want 0 once the stream closes", r.activeRemoteCount)
	}
}

func TestRegistryResetDecrementsActiveCount(t *testing.T) {
	r := NewStreamRegistry(10)

	s, err := r.AdmitRemoteHeaders(1, false, neverRefuse)
	if err != nil {
		t.Fatal(err)
	}

	r.Reset(s)
	if s.State() != StreamReset {
		t.Fatalf("got %s, want Reset", s.State())
	}
	if r.activeRemoteCount != 0 {
		t.Fatalf("got %d, want 0", r.activeRemoteCount)
	}
}

func TestRegistryExistingStreamSecondHeadersOnOpenResets(t *testing.T) {
	r := NewStreamRegistry(10)

	s, err := r.AdmitRemoteHeaders(1, false, neverRefuse)
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamOpen {
		t.Fatalf("got %s, want Open", s.State())
	}

	// A second HEADERS on an already-Open stream without EndOfStream
	// is a protocol violation and resets the stream.
	_, err = r.AdmitRemoteHeaders(1, false, neverRefuse)
	if _, ok := err.(*StreamError); !ok {
		t.Fatalf("got %T, want *StreamError", err)
	}
	if s.State() != StreamReset {
		t.Fatalf("got %s, want Reset", s.State())
	}
}

func TestRegistryDeleteRemovesStream(t *testing.T) {
	r := NewStreamRegistry(10)

	s, err := r.AdmitRemoteHeaders(1, true, neverRefuse)
	if err != nil {
		t.Fatal(err)
	}
	_ = s

	r.Delete(1)
	if r.Get(1) != nil {
		t.Fatal("deleted stream should no longer be retrievable")
	}
	if r.Len() != 0 {
		t.Fatalf("got len %d, want 0", r.Len())
	}
}
