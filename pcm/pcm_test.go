package pcm

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestResampleLength(t *testing.T) {
	for _, tt := range []struct {
		name     string
		inLen    int
		from, to int
	}{
		{"44100_to_16000", 4096, 44100, 16000},
		{"48000_to_16000", 4096, 48000, 16000},
		{"24000_to_16000", 3000, 24000, 16000},
		{"16000_identity", 1600, 16000, 16000},
		{"upsample_8000", 800, 8000, 16000},
	} {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]float32, tt.inLen)
			out := Resample(in, tt.from, tt.to)
			want := int(math.Round(float64(tt.inLen) * float64(tt.to) / float64(tt.from)))
			if diff := len(out) - want; diff > 1 || diff < -1 {
				t.Errorf("len(out) = %d, want %d (±1)", len(out), want)
			}
		})
	}
}

func TestResampleEmptyAndBadRate(t *testing.T) {
	if out := Resample(nil, 44100, 16000); len(out) != 0 {
		t.Errorf("nil input: got %d samples", len(out))
	}
	if out := Resample(make([]float32, 100), 0, 16000); len(out) != 0 {
		t.Errorf("zero rate: got %d samples", len(out))
	}
	if out := Resample(make([]float32, 100), -44100, 16000); len(out) != 0 {
		t.Errorf("negative rate: got %d samples", len(out))
	}
}

func TestResampleRoundTripEnergy(t *testing.T) {
	// 440 Hz tone at 44.1 kHz, down to 16 kHz and back.
	const from = 44100
	in := make([]float32, 8192)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/from))
	}

	down := Resample(in, from, WireSampleRate)
	back := Resample(down, WireSampleRate, from)

	energy := func(s []float32) float64 {
		var e float64
		for _, v := range s {
			e += float64(v) * float64(v)
		}
		return e / float64(len(s))
	}

	e0, e1 := energy(in), energy(back)
	if ratio := e1 / e0; ratio < 0.90 || ratio > 1.10 {
		t.Errorf("round-trip energy ratio = %.3f, want within [0.90, 1.10]", ratio)
	}
}

func TestQuantize(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{2, 32767},   // clamped
		{-2, -32768}, // clamped
	} {
		if got := quantize(tt.in); got != tt.want {
			t.Errorf("quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestQuantizeFloorSemantics(t *testing.T) {
	// Property: floor(s*32767) for s>=0, floor(s*32768) for s<0.
	for _, s := range []float32{0.1, 0.333, 0.9999, -0.1, -0.333, -0.9999} {
		var want float64
		if s < 0 {
			want = math.Floor(float64(s) * 32768)
		} else {
			want = math.Floor(float64(s) * 32767)
		}
		if got := quantize(s); float64(got) != want {
			t.Errorf("quantize(%v) = %d, want %v", s, got, want)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.99, -0.99}
	wire := ResampleToWire(in, WireSampleRate)
	if len(wire) != len(in)*2 {
		t.Fatalf("wire len = %d, want %d", len(wire), len(in)*2)
	}
	out := DecodeWire(wire)
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > 1.0/32768+1e-6 {
			t.Errorf("sample %d: got %v, want %v (±1 LSB)", i, out[i], in[i])
		}
	}
}

func TestResampleToWireEmpty(t *testing.T) {
	if out := ResampleToWire(nil, 44100); out != nil {
		t.Errorf("got %d bytes, want nil", len(out))
	}
	if out := ResampleToWire(make([]float32, 10), 0); out != nil {
		t.Errorf("bad rate: got %d bytes, want nil", len(out))
	}
}

func TestMeanAbs(t *testing.T) {
	if got := MeanAbs(nil); got != 0 {
		t.Errorf("MeanAbs(nil) = %v, want 0", got)
	}

	// Full-scale alternating signal should be close to 1.
	buf := make([]byte, 200)
	fullScale := int16(-32768)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(fullScale))
	}
	if got := MeanAbs(buf); got != 1 {
		t.Errorf("MeanAbs(full-scale) = %v, want 1", got)
	}
}

func TestWireDuration(t *testing.T) {
	// One second of wire audio = 32000 bytes.
	buf := make([]byte, 32000)
	if got := WireDuration(buf); got != 1 {
		t.Errorf("WireDuration = %v, want 1", got)
	}
}
