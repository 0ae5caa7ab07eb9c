package session

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"vona/log"
)

// Transcript is one recognized-speech entry. Entries are append-only: a
// later partial or final for the same utterance arrives as a new entry and
// is never merged into an earlier one.
type Transcript struct {
	ID        string
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

// Response is one assistant reply. Type distinguishes quick acknowledgements
// from main answers where the backend marks them.
type Response struct {
	ID        string
	Text      string
	AudioURL  string
	Type      string
	Timestamp time.Time
	Raw       json.RawMessage
}

type inboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	IsFinal  bool   `json:"is_final"`
	Message  string `json:"message"`
	Status   string `json:"status"`
	AudioURL string `json:"audio_url"`
	// Data carries raw audio bytes on the HTTP stream, encoded as a JSON
	// number array by the backend.
	Data []int `json:"data"`
}

func (m *inboundMessage) audioBytes() []byte {
	if len(m.Data) == 0 {
		return nil
	}
	out := make([]byte, len(m.Data))
	for i, v := range m.Data {
		out[i] = byte(v)
	}
	return out
}

// dispatchText routes one inbound JSON text message to its handler.
// Non-JSON text and unknown types are logged and ignored; they never affect
// connection state.
func dispatchText(raw []byte, h Handlers) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warnf("session: non-JSON text frame ignored: %.80s", raw)
		return
	}
	dispatch(&msg, raw, h)
}

func dispatch(msg *inboundMessage, raw []byte, h Handlers) {
	switch msg.Type {
	case "audio":
		if data := msg.audioBytes(); len(data) > 0 && h.OnAudio != nil {
			h.OnAudio(data)
		}
	case "transcript", "user_transcript":
		if msg.Text == "" {
			return
		}
		if h.OnTranscript != nil {
			h.OnTranscript(Transcript{
				ID:        uuid.NewString(),
				Text:      msg.Text,
				IsFinal:   msg.IsFinal,
				Timestamp: time.Now(),
			})
		}
	case "response", "text":
		if msg.Text == "" {
			return
		}
		if h.OnResponse != nil {
			kind := "main"
			if msg.Type == "text" {
				kind = "quick"
			}
			h.OnResponse(Response{
				ID:        uuid.NewString(),
				Text:      msg.Text,
				AudioURL:  msg.AudioURL,
				Type:      kind,
				Timestamp: time.Now(),
				Raw:       append(json.RawMessage(nil), raw...),
			})
		}
	case "error":
		log.Warnf("session: server error: %s", msg.Message)
		if h.OnError != nil {
			h.OnError(msg.Message)
		}
	case "status", "connection_status":
		if h.OnStatus != nil {
			h.OnStatus(msg.Status)
		}
	default:
		log.Warnf("session: unknown message type %q ignored", msg.Type)
	}
}

type clientInfo struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

type connectionStatusMessage struct {
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	ClientInfo clientInfo `json:"client_info"`
}

func clientConnectedMessage(userID, sessionID string) []byte {
	data, _ := json.Marshal(connectionStatusMessage{
		Type:   "connection_status",
		Status: "client_connected",
		ClientInfo: clientInfo{
			UserID:    userID,
			SessionID: sessionID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
	return data
}

var pingMessage = []byte(`{"type":"ping"}`)

// splitMessages extracts complete newline-terminated messages from a growing
// stream buffer. The trailing partial line is returned as the remainder for
// the next read.
func splitMessages(buf []byte) (msgs [][]byte, remainder []byte) {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return msgs, buf
		}
		line := bytes.TrimSpace(buf[:i])
		buf = buf[i+1:]
		if len(line) > 0 {
			msgs = append(msgs, line)
		}
	}
}
