// Package session owns the network channel to the voice backend: connection
// lifecycle, keep-alive, retry policy and message framing for both the
// WebSocket and the chunked-HTTP transports.
package session

import (
	"context"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	// ConnectTimeout bounds the handshake so a hung attempt can't block a
	// retry forever.
	ConnectTimeout = 30 * time.Second

	// KeepAliveInterval is how often a ping goes out while Open.
	KeepAliveInterval = 30 * time.Second

	// DefaultMaxRetries caps explicit reconnection attempts.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the initial backoff; it doubles per attempt.
	DefaultRetryBackoff = time.Second
)

// Handlers receives everything the backend pushes. Nil fields are skipped.
// Callbacks run on the session's read goroutine; they must not block.
type Handlers struct {
	OnAudio       func(data []byte)
	OnTranscript  func(t Transcript)
	OnResponse    func(r Response)
	OnError       func(message string)
	OnStatus      func(status string)
	OnStateChange func(s State, err error)
}

// Session is one logical conversation connection.
type Session interface {
	// Start runs the prerequisite session-create call and opens the channel.
	Start(ctx context.Context) error
	// Send transmits one wire-format audio frame. When the channel is not
	// open the frame is dropped with a logged warning; capture callbacks
	// fire on a fixed cadence and must never be halted by backpressure.
	Send(pcm []byte)
	// Stop tears the session down. Idempotent.
	Stop()
	// Retry re-runs connection setup with capped exponential backoff. It
	// never fires automatically; the caller decides when to retry.
	Retry(ctx context.Context) error

	State() State
	SessionID() string
	UserID() string
}

// Stats tracks per-session counters for the teardown log line.
type Stats struct {
	ConnectedAt time.Time
	ConnectDur  time.Duration
	SentChunks  int
	SentBytes   uint64
	RecvAudio   int
	RecvText    int
}
