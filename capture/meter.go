package capture

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize       = 2048
	smoothing     = 0.8
	meterBinCount = 50
)

// Meter derives a smoothed magnitude spectrum and scalar amplitude from the
// raw capture stream. Spectrum bins feed the waveform display; the mean
// absolute amplitude feeds voice-activity heuristics.
type Meter struct {
	fft *fourier.FFT

	mu       sync.Mutex
	window   []float64 // rolling FFT input, most recent fftSize samples
	spectrum []float64 // exponentially smoothed magnitudes
	bins     []float64
	level    float64
	meanAbs  float64
}

func NewMeter() *Meter {
	return &Meter{
		fft:      fourier.NewFFT(fftSize),
		window:   make([]float64, 0, fftSize),
		spectrum: make([]float64, fftSize/2+1),
		bins:     make([]float64, meterBinCount),
	}
}

// Process ingests one capture callback's samples. Safe to call from the
// audio thread; the sample slice is not retained.
func (m *Meter) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}

	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	mean := sum / float64(len(samples))

	m.mu.Lock()
	defer m.mu.Unlock()

	m.meanAbs = mean

	for _, s := range samples {
		m.window = append(m.window, float64(s))
	}
	if len(m.window) < fftSize {
		return
	}
	if extra := len(m.window) - fftSize; extra > 0 {
		m.window = m.window[extra:]
	}

	coeffs := m.fft.Coefficients(nil, m.window)
	for i, c := range coeffs {
		mag := cmplx.Abs(c) / fftSize
		m.spectrum[i] = smoothing*m.spectrum[i] + (1-smoothing)*mag
	}
	m.window = m.window[:0]

	// Downsample the spectrum to a fixed bin count and derive the scalar
	// level from the average magnitude, scaled into [0,100].
	per := len(m.spectrum) / meterBinCount
	var total float64
	for b := 0; b < meterBinCount; b++ {
		var acc float64
		for i := b * per; i < (b+1)*per; i++ {
			acc += m.spectrum[i]
		}
		v := acc / float64(per)
		m.bins[b] = math.Min(v*100/0.25, 100)
		total += v
	}
	m.level = math.Min(total/float64(meterBinCount)*100/0.25, 100)
}

func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Meter) MeanAbs() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meanAbs
}

// Bins returns a copy of the current 50-bin spectrum, each in [0,100].
func (m *Meter) Bins() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.bins))
	copy(out, m.bins)
	return out
}
