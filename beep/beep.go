// Package beep plays short audio cues for session lifecycle events.
package beep

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Connect cue: high pitch, short
	connectFreq   = 1200
	connectVolume = 0.5
	connectDecay  = 60

	// Disconnect cue: medium pitch, slightly longer
	disconnectFreq   = 900
	disconnectVolume = 0.5
	disconnectDecay  = 40

	// Error cue: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30

	// Interrupt cue: very short click when barge-in flushes playback
	interruptFreq   = 1500
	interruptVolume = 0.3
	interruptDecay  = 120
)
