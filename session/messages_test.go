package session

import (
	"strings"
	"testing"
)

func TestDispatchTranscriptEntriesNotMerged(t *testing.T) {
	var got []Transcript
	h := Handlers{OnTranscript: func(tr Transcript) { got = append(got, tr) }}

	dispatchText([]byte(`{"type":"transcript","text":"hello","is_final":false}`), h)
	dispatchText([]byte(`{"type":"transcript","text":"hello world","is_final":true}`), h)

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].IsFinal {
		t.Error("first entry should be partial")
	}
	if !got[1].IsFinal {
		t.Error("second entry should be final")
	}
	if got[0].ID == got[1].ID {
		t.Error("entries must be independent, not merged")
	}
	if got[1].Text != "hello world" {
		t.Errorf("Text = %q", got[1].Text)
	}
}

func TestDispatchResponseKinds(t *testing.T) {
	var got []Response
	h := Handlers{OnResponse: func(r Response) { got = append(got, r) }}

	dispatchText([]byte(`{"type":"response","text":"the answer"}`), h)
	dispatchText([]byte(`{"type":"text","text":"ok"}`), h)

	if len(got) != 2 {
		t.Fatalf("got %d responses, want 2", len(got))
	}
	if got[0].Type != "main" {
		t.Errorf("response kind = %q, want main", got[0].Type)
	}
	if got[1].Type != "quick" {
		t.Errorf("text kind = %q, want quick", got[1].Type)
	}
	if len(got[0].Raw) == 0 {
		t.Error("raw payload should be retained")
	}
}

func TestDispatchErrorAndStatus(t *testing.T) {
	var errMsg, status string
	h := Handlers{
		OnError:  func(m string) { errMsg = m },
		OnStatus: func(s string) { status = s },
	}

	dispatchText([]byte(`{"type":"error","message":"backend exploded"}`), h)
	dispatchText([]byte(`{"type":"status","status":"processing"}`), h)
	dispatchText([]byte(`{"type":"connection_status","status":"connected"}`), h)

	if errMsg != "backend exploded" {
		t.Errorf("errMsg = %q", errMsg)
	}
	if status != "connected" {
		t.Errorf("status = %q", status)
	}
}

func TestDispatchMalformedIgnored(t *testing.T) {
	called := false
	h := Handlers{
		OnTranscript: func(Transcript) { called = true },
		OnResponse:   func(Response) { called = true },
		OnError:      func(string) { called = true },
	}

	dispatchText([]byte("not json at all"), h)
	dispatchText([]byte(`{"type":"wormhole","text":"??"}`), h)
	dispatchText([]byte(`{"type":"transcript"}`), h) // empty text

	if called {
		t.Error("malformed/unknown messages must not reach handlers")
	}
}

func TestDispatchAudioData(t *testing.T) {
	var got []byte
	h := Handlers{OnAudio: func(b []byte) { got = b }}

	dispatchText([]byte(`{"type":"audio","data":[0,1,255,16]}`), h)

	want := []byte{0, 1, 255, 16}
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSplitMessages(t *testing.T) {
	msgs, rem := splitMessages([]byte("{\"a\":1}\n{\"b\":2}\n{\"part"))
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if string(rem) != "{\"part" {
		t.Errorf("remainder = %q", rem)
	}

	// Feeding the remainder plus the rest completes the message.
	msgs2, rem2 := splitMessages(append(rem, []byte("ial\":3}\n")...))
	if len(msgs2) != 1 || string(msgs2[0]) != `{"partial":3}` {
		t.Errorf("msgs2 = %v", msgs2)
	}
	if len(rem2) != 0 {
		t.Errorf("rem2 = %q", rem2)
	}
}

func TestSplitMessagesSkipsBlankLines(t *testing.T) {
	msgs, rem := splitMessages([]byte("\n  \r\n{\"a\":1}\n\n"))
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(rem) != 0 {
		t.Errorf("remainder = %q", rem)
	}
}

func TestClientConnectedMessage(t *testing.T) {
	data := clientConnectedMessage("u1", "s1")
	s := string(data)
	for _, want := range []string{`"connection_status"`, `"client_connected"`, `"u1"`, `"s1"`} {
		if !strings.Contains(s, want) {
			t.Errorf("message %s missing %s", s, want)
		}
	}
}
