package stt

import (
	"context"
	"sync"

	"github.com/scribelabs/scribe-core/internal/transcript"
)

// Mock is a scripted Provider for tests. Every stream it opens replays the
// script and records the audio it receives.
type Mock struct {
	// NewStreamErr, when set, makes every NewStream call fail.
	NewStreamErr error

	mu      sync.Mutex
	script  []transcript.Event
	streams []*MockStream
}

func NewMock(script ...transcript.Event) *Mock {
	return &Mock{script: script}
}

func (m *Mock) NewStream(_ context.Context, params StreamParams) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NewStreamErr != nil {
		return nil, m.NewStreamErr
	}
	s := &MockStream{
		Params: params,
		events: make(chan transcript.Event, len(m.script)+1),
	}
	for _, ev := range m.script {
		s.events <- ev
	}
	close(s.events)
	m.streams = append(m.streams, s)
	return s, nil
}

// Streams returns every stream opened so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

type MockStream struct {
	Params StreamParams

	mu       sync.Mutex
	events   chan transcript.Event
	received [][]byte
	closed   bool
	err      error
}

func (s *MockStream) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.received = append(s.received, buf)
	return nil
}

func (s *MockStream) Events() <-chan transcript.Event {
	return s.events
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MockStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Received returns the audio chunks written to the stream.
func (s *MockStream) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// Closed reports whether Close has been called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
