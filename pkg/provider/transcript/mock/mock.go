// Package mock provides test doubles for the transcript package interfaces.
//
// Stream exposes a writable channel so tests can push events and then close
// it to end the stream:
//
//	st := mock.NewStream(8)
//	src := &mock.Source{Stream: st}
//	st.Send(types.TranscriptEvent{Speaker: types.SpeakerSelf, Text: "lol"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/emotive/pkg/provider/transcript"
	"github.com/MrWong99/emotive/pkg/types"
)

var (
	_ transcript.Source = (*Source)(nil)
	_ transcript.Stream = (*Stream)(nil)
)

// Source is a mock implementation of transcript.Source.
type Source struct {
	mu sync.Mutex

	// Stream is returned by Start. If nil, Start returns a fresh Stream.
	Stream *Stream

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls counts Start invocations.
	StartCalls int
}

// Start records the call and returns Stream, StartErr.
func (s *Source) Start(context.Context) (transcript.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.Stream == nil {
		s.Stream = NewStream(16)
	}
	return s.Stream, nil
}

// Starts returns the number of Start calls.
func (s *Source) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StartCalls
}

// Stream is a mock implementation of transcript.Stream.
type Stream struct {
	events chan types.TranscriptEvent

	mu         sync.Mutex
	closed     bool
	CloseCalls int
}

// NewStream returns a Stream whose channel holds buffer events.
func NewStream(buffer int) *Stream {
	return &Stream{events: make(chan types.TranscriptEvent, buffer)}
}

// Events implements transcript.Stream.
func (s *Stream) Events() <-chan types.TranscriptEvent { return s.events }

// Send pushes ev to the consumer. It reports false once the stream is closed.
func (s *Stream) Send(ev types.TranscriptEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

// Close implements transcript.Stream. The events channel is closed once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Closes returns the number of Close calls.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCalls
}
