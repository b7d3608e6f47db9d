package http2

import (
	"sort"
)

// StreamRegistry is the connection's id→Stream map plus the admission
// bookkeeping of spec.md §4.4. It is owned by the arbiter's single
// goroutine and is not safe for concurrent use.
type StreamRegistry struct {
	list []*Stream

	highestRemoteIDSeen uint32
	activeRemoteCount   int
	maxConcurrentRemote uint32
}

// NewStreamRegistry creates a registry admitting up to maxConcurrent
// simultaneously active remote-initiated streams.
func NewStreamRegistry(maxConcurrent uint32) *StreamRegistry {
	return &StreamRegistry{maxConcurrentRemote: maxConcurrent}
}

// SetMaxConcurrent updates the admission ceiling, e.g. on a local
// SETTINGS_MAX_CONCURRENT_STREAMS change.
func (r *StreamRegistry) SetMaxConcurrent(n uint32) {
	r.maxConcurrentRemote = n
}

func (r *StreamRegistry) search(id uint32) int {
	return sort.Search(len(r.list), func(i int) bool {
		return r.list[i].id >= id
	})
}

// Get returns the stream with id, or nil if unknown.
func (r *StreamRegistry) Get(id uint32) *Stream {
	i := r.search(id)
	if i < len(r.list) && r.list[i].id == id {
		return r.list[i]
	}
	return nil
}

func (r *StreamRegistry) insert(s *Stream) {
	i := r.search(s.id)
	if i == len(r.list) {
		r.list = append(r.list, s)
		return
	}
	r.list = append(r.list, nil)
	copy(r.list[i+1:], r.list[i:])
	r.list[i] = s
}

// Delete removes the stream with id from the registry and releases
// it. Callers must have already accounted for any activeRemoteCount
// change via Transition.
func (r *StreamRegistry) Delete(id uint32) {
	i := r.search(id)
	if i < len(r.list) && r.list[i].id == id {
		s := r.list[i]
		r.list = append(r.list[:i], r.list[i+1:]...)
		s.Release()
	}
}

// Len reports the number of streams currently tracked, regardless of
// state (a Closed/Reset stream lingers until its handle is dropped).
func (r *StreamRegistry) Len() int {
	return len(r.list)
}

// AdmitRemoteHeaders runs the seven-step admission algorithm of
// spec.md §4.4 for an inbound HEADERS on stream id. refuse reports
// whether the application-provided listener declined the stream (or
// none is installed); when refuse is nil, the stream is always
// admitted at the registry level.
//
// On success it returns the (possibly newly created) Stream, already
// advanced by the R_Headers event. On failure it returns a *ConnError
// (step 1) or *StreamError (steps 2, 4, 5, 6) and no stream; for an
// already known stream (step 3) whose R_Headers transition fails, it
// returns that stream together with the transition's error.
func (r *StreamRegistry) AdmitRemoteHeaders(id uint32, endOfStream bool, refuse func(id uint32) bool) (*Stream, error) {
	if id == 0 {
		return nil, NewConnError(ProtocolError, "HEADERS on stream 0")
	}

	if id%2 == 0 {
		return nil, NewStreamError(id, StreamClosedError, "even stream id is not client-initiated")
	}

	if s := r.Get(id); s != nil {
		err := r.Transition(s, EventRecvHeaders, endOfStream)
		return s, err
	}

	if id <= r.highestRemoteIDSeen {
		return nil, NewStreamError(id, StreamClosedError, "stream id below high-water mark")
	}

	if r.activeRemoteCount >= int(r.maxConcurrentRemote) {
		return nil, NewStreamError(id, RefusedStreamError, "MAX_CONCURRENT_STREAMS reached")
	}

	if refuse != nil && refuse(id) {
		return nil, NewStreamError(id, RefusedStreamError, "rejected by listener")
	}

	s := NewStream(id, int32(DefaultWindowSize))
	if err := s.Apply(EventRecvHeaders, endOfStream); err != nil {
		s.Release()
		return nil, err
	}

	r.insert(s)
	r.highestRemoteIDSeen = id
	r.activeRemoteCount++

	return s, nil
}

// Transition applies event to s and keeps activeRemoteCount in sync:
// it decrements when s moves from an active state (per Stream.Active)
// to a terminal one.
func (r *StreamRegistry) Transition(s *Stream, event StreamEvent, endOfStream bool) error {
	wasActive := s.Active()
	err := s.Apply(event, endOfStream)
	if wasActive && !s.Active() {
		r.activeRemoteCount--
	}
	return err
}

// Reset forces s directly to Reset (e.g. on RST_STREAM receipt or a
// connection-level teardown), updating activeRemoteCount.
func (r *StreamRegistry) Reset(s *Stream) {
	wasActive := s.Active()
	s.state = StreamReset
	if wasActive {
		r.activeRemoteCount--
	}
}
