// Package audio abstracts the OS audio subsystem behind capture and playback
// device interfaces so the pipeline and the tests never touch malgo directly.
package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether a microphone is a
// bluetooth headset. Used only for labeling; BT codecs degrade capture
// quality noticeably at 16 kHz.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FrameCallback receives float32 samples captured at the device rate. The
// slice is only valid for the duration of the call; implementations recycle
// the underlying buffer, so consumers must copy before retaining.
type FrameCallback func(samples []float32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// EchoCancel, NoiseSuppress and AutoGain are requested from the backend
	// where supported; backends that cannot honor them ignore the flags.
	EchoCancel    bool
	NoiseSuppress bool
	AutoGain      bool
}

type PlaybackConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	NewPlayback(config PlaybackConfig) (PlaybackDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb FrameCallback)
	ClearCallback()
}

// PlaybackDevice plays a single buffer of float32 samples to completion.
// Play blocks until the buffer has drained or the stop channel fires.
type PlaybackDevice interface {
	Play(samples []float32, stop <-chan struct{}) error
	Close()
}
