// Package pcm converts between the capture format (float32 at the device
// sample rate) and the backend wire format (16-bit signed little-endian PCM,
// mono, 16 kHz).
package pcm

import (
	"encoding/binary"
	"math"
)

const (
	WireSampleRate = 16000
	Channels       = 1
	BitsPerSample  = 16

	// FrameSize is the capture frame length in source samples. 4096 samples
	// bounds latency against per-frame overhead.
	FrameSize = 4096
)

// Resample converts samples from one rate to another using linear
// interpolation. Output length is round(len(in) * to / from). A zero-length
// input or a non-positive rate yields an empty slice; the capture pipeline
// feeds zero-length frames while the graph warms up and must not trip here.
func Resample(in []float32, from, to int) []float32 {
	if len(in) == 0 || from <= 0 || to <= 0 {
		return nil
	}
	if from == to {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	outLen := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	if outLen == 0 {
		return nil
	}

	ratio := float64(from) / float64(to)
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(in, idx)
		s1 := sampleAt(in, idx+1)
		out[i] = s0 + float32(frac)*(s1-s0)
	}
	return out
}

func sampleAt(in []float32, idx int) float32 {
	if idx >= len(in) {
		idx = len(in) - 1
	}
	return in[idx]
}

// ToInt16 quantizes float samples in [-1,1] to signed 16-bit: negative
// samples scale by 32768, non-negative by 32767, clamped to the int16 range.
func ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = quantize(s)
	}
	return out
}

func quantize(s float32) int16 {
	var v float64
	if s < 0 {
		v = float64(s) * 32768
	} else {
		v = float64(s) * 32767
	}
	v = math.Floor(v)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ResampleToWire produces a wire-format buffer (little-endian int16 at
// 16 kHz) from float samples captured at the given source rate.
func ResampleToWire(in []float32, from int) []byte {
	resampled := Resample(in, from, WireSampleRate)
	if len(resampled) == 0 {
		return nil
	}
	out := make([]byte, len(resampled)*2)
	for i, s := range resampled {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize(s)))
	}
	return out
}

// DecodeWire converts a wire-format buffer back to float samples in [-1,1).
// A trailing odd byte is ignored.
func DecodeWire(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// MeanAbs returns the mean absolute amplitude of a wire-format buffer,
// normalized to [0,1]. Used for the barge-in threshold check.
func MeanAbs(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		sum += math.Abs(float64(v)) / 32768
	}
	return sum / float64(n)
}

// WireDuration estimates the playback duration of a wire-format buffer in
// seconds.
func WireDuration(data []byte) float64 {
	return float64(len(data)/2) / float64(WireSampleRate)
}
