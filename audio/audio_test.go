package audio

import (
	"testing"
	"time"
)

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Jabra Elite 75t", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
		{"Headset (Bluetooth)", true},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFakeCaptureDeliversSamplesThenSilence(t *testing.T) {
	samples := make([]float32, fakeFrameSize*2)
	for i := range samples {
		samples[i] = 0.5
	}
	ctx := NewFakeContext(samples, false)
	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 44100, Channels: 1})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}

	frames := make(chan []float32, 16)
	dev.SetCallback(func(s []float32) {
		buf := make([]float32, len(s))
		copy(buf, s)
		select {
		case frames <- buf:
		default:
		}
	})
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer dev.Stop()

	var got []float32
	deadline := time.After(time.Second)
	for len(got) < len(samples) {
		select {
		case f := <-frames:
			got = append(got, f...)
		case <-deadline:
			t.Fatalf("timed out after %d samples", len(got))
		}
	}
	for i := 0; i < len(samples); i++ {
		if got[i] != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, got[i])
		}
	}
}

func TestFakeCaptureStopIdempotent(t *testing.T) {
	ctx := NewFakeContext(nil, false)
	dev, _ := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.Stop()
	dev.Stop() // must not panic or hang
}

func TestFakePlaybackRecordsAndStops(t *testing.T) {
	p := &FakePlayback{}
	if err := p.Play([]float32{1, 2, 3}, nil); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := p.Played(); len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("Played = %v", got)
	}

	p2 := &FakePlayback{PlayDelay: time.Hour}
	stop := make(chan struct{})
	close(stop)
	if err := p2.Play([]float32{1}, stop); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if p2.StoppedCount() != 1 {
		t.Errorf("StoppedCount = %d, want 1", p2.StoppedCount())
	}
	if len(p2.Played()) != 0 {
		t.Errorf("aborted buffer must not count as played")
	}
}
