package main

import (
	"vona/log"
	"vona/session"
)

// EventSink abstracts the display layer so the Bubble Tea TUI and the
// headless console mode receive the same conversation events. Methods are
// called from capture and session goroutines and must not block.
type EventSink interface {
	SessionState(s session.State, err error)
	Transcript(t session.Transcript)
	Response(r session.Response)
	AudioLevel(level float64, bins []float64)
	Playing(on bool)
	NoVoiceWarning(on bool)
	Status(text string)
	Error(text string)
}

// logSink is the headless sink. Conversation text goes to the transcript
// log from the session handlers, so here only the event flow is recorded.
type logSink struct{}

func (logSink) SessionState(s session.State, err error) {
	if err != nil {
		log.Errorf("state -> %s: %v", s, err)
		return
	}
	log.Infof("state -> %s", s)
}

func (logSink) Transcript(t session.Transcript) {
	if t.IsFinal {
		log.Info("transcript_final")
	}
}

func (logSink) Response(session.Response) {
	log.Info("response_received")
}

func (logSink) AudioLevel(float64, []float64) {}

func (logSink) Playing(on bool) {
	if on {
		log.Info("playback_start")
	} else {
		log.Info("playback_idle")
	}
}

func (logSink) NoVoiceWarning(on bool) {
	if on {
		log.Info("no_voice_warning")
	} else {
		log.Info("voice_cleared")
	}
}

func (logSink) Status(text string) { log.Info("server_status: " + text) }
func (logSink) Error(text string)  { log.Errorf("server error: %s", text) }
