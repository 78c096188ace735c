// Package audio decodes and reshapes participant audio on its way to the
// transcription vendor. Browser tracks arrive as 48 kHz mono Opus; the
// vendor wants little-endian PCM16 at its configured rate.
package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"
)

// OpusSampleRate is the rate WebRTC Opus tracks decode at.
const OpusSampleRate = 48000

// maxFrameSamples holds 120 ms at 48 kHz, the largest Opus frame.
const maxFrameSamples = 5760

// Decoder turns Opus packets from one track into mono PCM16 samples.
// Not safe for concurrent use; each track gets its own decoder.
type Decoder struct {
	dec *opus.Decoder
	buf []int16
}

func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(OpusSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &Decoder{dec: dec, buf: make([]int16, maxFrameSamples)}, nil
}

// Decode returns the PCM samples for one Opus payload. The returned slice
// aliases an internal buffer and is only valid until the next call.
func (d *Decoder) Decode(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	n, err := d.dec.Decode(payload, d.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: decode opus frame: %w", err)
	}
	return d.buf[:n], nil
}

// Resample converts mono PCM16 between rates by nearest-sample selection.
// Good enough for speech headed to a transcription vendor.
func Resample(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(pcm) == 0 {
		return pcm
	}
	ratio := float64(toRate) / float64(fromRate)
	out := make([]int16, int(float64(len(pcm))*ratio))
	for i := range out {
		src := int(float64(i) / ratio)
		if src >= len(pcm) {
			src = len(pcm) - 1
		}
		out[i] = pcm[src]
	}
	return out
}

// Bytes packs samples as little-endian PCM16 for the wire.
func Bytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
