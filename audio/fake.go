package audio

import (
	"sync"
	"time"
)

const fakeFrameSize = 1024

// FakeContext is an in-memory audio backend for tests: capture replays a
// prepared sample buffer, playback records every buffer it is asked to play.
type FakeContext struct {
	samples  []float32
	realtime bool

	mu       sync.Mutex
	playback *FakePlayback
}

func NewFakeContext(samples []float32, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		samples:    f.samples,
		realtime:   f.realtime,
		sampleRate: int(cfg.SampleRate),
	}, nil
}

func (f *FakeContext) NewPlayback(_ PlaybackConfig) (PlaybackDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playback == nil {
		f.playback = &FakePlayback{}
	}
	return f.playback, nil
}

// Playback returns the shared fake playback device, creating it if needed.
func (f *FakeContext) Playback() *FakePlayback {
	p, _ := f.NewPlayback(PlaybackConfig{})
	return p.(*FakePlayback)
}

type FakeCapture struct {
	samples    []float32
	realtime   bool
	sampleRate int

	mu     sync.Mutex
	cb     FrameCallback
	stopCh chan struct{}
	done   chan struct{}
}

func (f *FakeCapture) SetCallback(cb FrameCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})

	interval := time.Duration(0)
	if f.realtime && f.sampleRate > 0 {
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(f.sampleRate)
	}

	go func() {
		defer close(f.done)
		silence := make([]float32, fakeFrameSize)
		pos := 0
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()

			if cb != nil {
				if pos < len(f.samples) {
					end := min(pos+fakeFrameSize, len(f.samples))
					chunk := make([]float32, end-pos)
					copy(chunk, f.samples[pos:end])
					pos = end
					cb(chunk)
				} else {
					cb(silence)
				}
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(max(interval, time.Millisecond)):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.done
}

func (f *FakeCapture) Close() {}

// FakePlayback records played buffers and optionally delays each Play call
// to simulate real device drain time.
type FakePlayback struct {
	PlayDelay time.Duration

	mu      sync.Mutex
	played  [][]float32
	stopped int
}

func (p *FakePlayback) Play(samples []float32, stop <-chan struct{}) error {
	buf := make([]float32, len(samples))
	copy(buf, samples)

	if p.PlayDelay > 0 {
		select {
		case <-time.After(p.PlayDelay):
		case <-stop:
			p.mu.Lock()
			p.stopped++
			p.mu.Unlock()
			return nil
		}
	}

	p.mu.Lock()
	p.played = append(p.played, buf)
	p.mu.Unlock()
	return nil
}

func (p *FakePlayback) Close() {}

// Played returns a snapshot of every fully played buffer in order.
func (p *FakePlayback) Played() [][]float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]float32, len(p.played))
	copy(out, p.played)
	return out
}

// StoppedCount reports how many Play calls were aborted via the stop channel.
func (p *FakePlayback) StoppedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
