package audio

import (
	"math"
	"testing"

	"github.com/hraban/opus"
)

func TestDecodeRoundTrip(t *testing.T) {
	enc, err := opus.NewEncoder(OpusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	// One 20ms frame of a 440Hz tone.
	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(3000 * math.Sin(2*math.Pi*440*float64(i)/OpusSampleRate))
	}
	packet := make([]byte, 4000)
	n, err := enc.Encode(pcm, packet)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	out, err := dec.Decode(packet[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(pcm) {
		t.Fatalf("decoded %d samples, want %d", len(out), len(pcm))
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	out, err := dec.Decode(nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != nil {
		t.Fatalf("expected no samples, got %d", len(out))
	}
}

func TestResampleDownByThree(t *testing.T) {
	in := make([]int16, 48)
	for i := range in {
		in[i] = int16(i)
	}

	out := Resample(in, 48000, 16000)
	if len(out) != 16 {
		t.Fatalf("len = %d, want 16", len(out))
	}
	for i, s := range out {
		if want := int16(i * 3); s != want {
			t.Fatalf("out[%d] = %d, want %d", i, s, want)
		}
	}
}

func TestResampleSameRate(t *testing.T) {
	in := []int16{1, 2, 3}
	out := Resample(in, 16000, 16000)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("out = %v", out)
	}
}

func TestBytesLittleEndian(t *testing.T) {
	out := Bytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %#x, want %#x", i, out[i], want[i])
		}
	}
}
