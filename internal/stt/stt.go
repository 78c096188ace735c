// Package stt abstracts streaming speech-to-text vendors behind a narrow
// provider interface. One Stream corresponds to one vendor session for one
// participant track.
package stt

import (
	"context"
	"errors"

	"github.com/scribelabs/scribe-core/internal/transcript"
)

// ErrStreamClosed is returned by SendAudio once a stream has been closed.
var ErrStreamClosed = errors.New("stt: stream closed")

// StreamParams describes the session to open for one participant track.
type StreamParams struct {
	Language   string // ISO 639-1 code, already sanitized
	SampleRate int
	Channels   int
	UserID     string
	TrackID    string
}

// Stream is one live vendor session. Events carries raw utterances in the
// vendor's native time units; it is closed exactly once, after the vendor
// connection ends. Err reports the terminal error, if any, once Events is
// closed.
type Stream interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Events() <-chan transcript.Event
	Close() error
	Err() error
}

// Provider constructs vendor sessions. Implementations must be safe for
// concurrent NewStream calls; every job gets its own Provider instance
// built from the startup configuration.
type Provider interface {
	NewStream(ctx context.Context, params StreamParams) (Stream, error)
}
