// Package playback plays received audio responses in strict arrival order,
// one at a time, with barge-in interruption when the user speaks over the
// assistant.
package playback

import (
	"time"

	"sync"

	"vona/audio"
	"vona/format"
	"vona/log"
	"vona/pcm"
)

const (
	// DefaultGap is the pause inserted between responses so consecutive
	// utterances don't clip into each other.
	DefaultGap = 500 * time.Millisecond

	// BargeInThreshold is the normalized mean amplitude above which live
	// capture counts as the user speaking over playback.
	BargeInThreshold = 0.05
)

type entry struct {
	data     []byte
	duration time.Duration // estimate, used when the device can't block
}

// Queue is a strictly ordered single-consumer playback queue. Entries are
// decoded and played to completion before the next starts; Interrupt drops
// everything pending and stops the buffer currently sounding.
type Queue struct {
	dev audio.PlaybackDevice
	gap time.Duration

	mu         sync.Mutex
	entries    []entry
	playing    bool
	gen        uint64 // bumped on every interrupt/close
	stopCur    chan struct{}
	closed     bool
	interrupts int
	onPlaying  func(bool)
}

func NewQueue(dev audio.PlaybackDevice) *Queue {
	return &Queue{dev: dev, gap: DefaultGap}
}

// SetGap overrides the inter-response gap. Zero disables it.
func (q *Queue) SetGap(d time.Duration) {
	q.mu.Lock()
	q.gap = d
	q.mu.Unlock()
}

// OnPlayingChange registers an observer for the playing flag. Called outside
// the queue lock.
func (q *Queue) OnPlayingChange(cb func(bool)) {
	q.mu.Lock()
	q.onPlaying = cb
	q.mu.Unlock()
}

// Enqueue appends a wire-format buffer and starts draining if idle.
func (q *Queue) Enqueue(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries, entry{
		data:     buf,
		duration: time.Duration(pcm.WireDuration(buf) * float64(time.Second)),
	})
	start := !q.playing
	var cb func(bool)
	if start {
		q.playing = true
		q.stopCur = make(chan struct{})
		cb = q.onPlaying
		go q.drain(q.gen)
	}
	q.mu.Unlock()

	if cb != nil {
		cb(true)
	}
}

func (q *Queue) drain(gen uint64) {
	for {
		q.mu.Lock()
		if q.gen != gen || q.closed || len(q.entries) == 0 {
			stopped := q.gen == gen && q.playing
			if stopped {
				q.playing = false
			}
			cb := q.onPlaying
			q.mu.Unlock()
			if stopped && cb != nil {
				cb(false)
			}
			return
		}
		e := q.entries[0]
		q.entries = q.entries[1:]
		stop := q.stopCur
		q.mu.Unlock()

		q.playEntry(e, stop)

		// A flush may have happened while the buffer was sounding; never
		// start the gap timer for a dead generation.
		q.mu.Lock()
		alive := q.gen == gen && !q.closed
		gap := q.gap
		q.mu.Unlock()
		if !alive {
			return
		}
		if gap > 0 {
			select {
			case <-time.After(gap):
			case <-stop:
				return
			}
		}
	}
}

func (q *Queue) playEntry(e entry, stop <-chan struct{}) {
	kind := format.Detect(e.data)
	if !format.Support()[kind] {
		// Container formats are not decoded natively; skip rather than
		// stall the queue.
		log.Warnf("playback: skipping unsupported payload (%s, %d bytes)", kind, len(e.data))
		return
	}

	samples := pcm.DecodeWire(format.StripWAV(e.data))
	if len(samples) == 0 {
		return
	}

	if err := q.dev.Play(samples, stop); err != nil {
		log.Errorf("playback: %v", err)
	}
}

// NotifyAmplitude feeds the live capture amplitude. Above the barge-in
// threshold while playing, the queue is flushed and the in-flight buffer is
// stopped.
func (q *Queue) NotifyAmplitude(v float64) {
	if v <= BargeInThreshold {
		return
	}
	q.mu.Lock()
	playing := q.playing
	q.mu.Unlock()
	if playing {
		log.Info("playback: user spoke over response, interrupting")
		q.Interrupt()
	}
}

// Interrupt discards all pending entries and stops the current buffer. Safe
// to call at any time, including when idle.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	q.entries = nil
	q.gen++
	wasPlaying := q.playing
	q.playing = false
	if q.stopCur != nil {
		close(q.stopCur)
		q.stopCur = nil
	}
	if wasPlaying {
		q.interrupts++
	}
	cb := q.onPlaying
	q.mu.Unlock()

	if wasPlaying && cb != nil {
		cb(false)
	}
}

// Close interrupts playback and rejects further entries.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Interrupt()
}

// Playing reports whether a buffer is currently being played or pending
// drain.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len is the number of entries waiting (not counting the one sounding).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Interrupts counts barge-in flushes since creation.
func (q *Queue) Interrupts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interrupts
}
