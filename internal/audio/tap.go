package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// Tap observes per-user PCM frames after decode and resample. Tap failures
// must never disturb the transcription pipeline, so OnFrame reports nothing.
type Tap interface {
	OnFrame(userID string, pcm []int16)
	Close() error
}

// NoopTap discards every frame.
type NoopTap struct{}

func (NoopTap) OnFrame(string, []int16) {}

func (NoopTap) Close() error { return nil }

// WAVTap records each user's audio to a WAV file under dir, one file per
// user per session. Meant for debugging what the vendor actually hears.
type WAVTap struct {
	dir        string
	sampleRate int
	log        zerolog.Logger

	mu    sync.Mutex
	sinks map[string]*wavSink
}

type wavSink struct {
	f   *os.File
	enc *wav.Encoder
}

func NewWAVTap(dir string, sampleRate int, log zerolog.Logger) (*WAVTap, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create tap dir: %w", err)
	}
	return &WAVTap{
		dir:        dir,
		sampleRate: sampleRate,
		log:        log.With().Str("component", "audio-tap").Logger(),
		sinks:      make(map[string]*wavSink),
	}, nil
}

func (t *WAVTap) OnFrame(userID string, pcm []int16) {
	if len(pcm) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sink, seen := t.sinks[userID]
	if !seen {
		var err error
		sink, err = t.newSink(userID)
		if err != nil {
			t.log.Warn().Err(err).Str("userId", userID).Msg("audio tap disabled for user")
		}
		// A nil entry remembers the failure so we do not retry per frame.
		t.sinks[userID] = sink
	}
	if sink == nil {
		return
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: t.sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(pcm)),
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}
	if err := sink.enc.Write(buf); err != nil {
		t.log.Warn().Err(err).Str("userId", userID).Msg("audio tap write failed, closing sink")
		_ = sink.enc.Close()
		_ = sink.f.Close()
		t.sinks[userID] = nil
	}
}

func (t *WAVTap) newSink(userID string) (*wavSink, error) {
	name := fmt.Sprintf("%s-%s.wav", safeName(userID), time.Now().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(t.dir, name))
	if err != nil {
		return nil, err
	}
	enc := wav.NewEncoder(f, t.sampleRate, 16, 1, 1)
	t.log.Info().Str("file", f.Name()).Msg("recording tap audio")
	return &wavSink{f: f, enc: enc}, nil
}

// Close finalizes all open WAV files.
func (t *WAVTap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for id, sink := range t.sinks {
		if sink != nil {
			if err := sink.enc.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			_ = sink.f.Close()
		}
		delete(t.sinks, id)
	}
	return firstErr
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
