// Package capture turns a microphone into a steady stream of fixed-size
// float32 frames plus a live amplitude signal for the UI and for barge-in
// detection.
package capture

import (
	"fmt"
	"sync"

	"vona/audio"
	"vona/pcm"
)

type Config struct {
	Device     *audio.DeviceInfo
	SampleRate uint32 // device rate, e.g. 44100
	FrameSize  int    // samples per emitted frame; defaults to pcm.FrameSize
}

// Pipeline owns the capture device and the level meter. Frames handed to the
// OnFrame callback are freshly allocated copies; the device recycles its own
// buffer after every callback.
type Pipeline struct {
	ctx audio.Context
	cfg Config

	meter *Meter

	mu      sync.Mutex
	dev     audio.CaptureDevice
	onFrame func([]float32)
	buf     []float32
	started bool
}

func NewPipeline(ctx audio.Context, cfg Config) *Pipeline {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = pcm.FrameSize
	}
	return &Pipeline{
		ctx:   ctx,
		cfg:   cfg,
		meter: NewMeter(),
	}
}

// OnFrame registers the frame consumer. Must be called before Start.
func (p *Pipeline) OnFrame(cb func(frame []float32)) {
	p.mu.Lock()
	p.onFrame = cb
	p.mu.Unlock()
}

// Start acquires the device and begins delivering frames. On any failure the
// partially built state is torn down before returning, so a failed Start
// never leaks a microphone lock.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	dev, err := p.ctx.NewCapture(p.cfg.Device, audio.CaptureConfig{
		SampleRate:    p.cfg.SampleRate,
		Channels:      pcm.Channels,
		EchoCancel:    true,
		NoiseSuppress: true,
		AutoGain:      true,
	})
	if err != nil {
		return fmt.Errorf("acquire microphone: %w", err)
	}

	dev.SetCallback(p.handleSamples)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	p.dev = dev
	p.buf = p.buf[:0]
	p.started = true
	return nil
}

func (p *Pipeline) handleSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}

	p.meter.Process(samples)

	p.mu.Lock()
	cb := p.onFrame
	p.buf = append(p.buf, samples...)
	var frames [][]float32
	for len(p.buf) >= p.cfg.FrameSize {
		frame := make([]float32, p.cfg.FrameSize)
		copy(frame, p.buf[:p.cfg.FrameSize])
		p.buf = p.buf[p.cfg.FrameSize:]
		frames = append(frames, frame)
	}
	p.mu.Unlock()

	if cb == nil {
		return
	}
	for _, f := range frames {
		cb(f)
	}
}

// Stop releases the device. Idempotent: the second and later calls are
// no-ops, and a Stop racing a failed Start leaves nothing dangling.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	dev := p.dev
	p.dev = nil
	p.buf = nil
	p.started = false
	p.mu.Unlock()

	if dev != nil {
		dev.ClearCallback()
		dev.Stop()
		dev.Close()
	}
}

// Level is the current amplitude level in [0,100].
func (p *Pipeline) Level() float64 { return p.meter.Level() }

// Bins is the 50-bin spectrum snapshot for visualization.
func (p *Pipeline) Bins() []float64 { return p.meter.Bins() }

// MeanAbs is the mean absolute amplitude of the most recent samples, in
// [0,1]. This is the signal compared against the barge-in threshold.
func (p *Pipeline) MeanAbs() float64 { return p.meter.MeanAbs() }
