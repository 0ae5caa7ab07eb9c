package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// httpBackend serves the chunked-HTTP endpoints with a scripted stream body.
type httpBackend struct {
	srv         *httptest.Server
	chunks      chan []byte
	closeCalled chan struct{}
	stream      func(w http.ResponseWriter, r *http.Request)
}

func newHTTPBackend(t *testing.T, stream func(w http.ResponseWriter, r *http.Request)) *httpBackend {
	t.Helper()
	b := &httpBackend{
		chunks:      make(chan []byte, 16),
		closeCalled: make(chan struct{}, 4),
		stream:      stream,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/letta/audio_http_session/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"hsess-1"}`))
	})
	mux.HandleFunc("/letta/audio_stream/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("session_id"); got != "hsess-1" {
			t.Errorf("stream session_id = %q", got)
		}
		b.stream(w, r)
	})
	mux.HandleFunc("/letta/audio_input/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.chunks <- body
	})
	mux.HandleFunc("/letta/close_session/", func(w http.ResponseWriter, r *http.Request) {
		b.closeCalled <- struct{}{}
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

// holdOpen writes the response headers and then parks until the client
// aborts, like a real long-lived stream with nothing to say.
func holdOpen(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()
	<-r.Context().Done()
}

func TestHTTPSessionStreamEvents(t *testing.T) {
	gotText := make(chan Transcript, 2)
	gotAudio := make(chan []byte, 1)

	backend := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		f.Flush()

		// A message split across two chunk writes: the reader must hold the
		// partial line until the newline lands.
		io.WriteString(w, `{"type":"transcript","te`)
		f.Flush()
		time.Sleep(20 * time.Millisecond)
		io.WriteString(w, "xt\":\"split line\",\"is_final\":true}\n")
		f.Flush()

		io.WriteString(w, "{\"type\":\"audio\",\"data\":[7,8,9]}\n")
		f.Flush()

		<-r.Context().Done()
	})

	s := NewHTTPSession(Config{ServerURL: backend.srv.URL, UserID: "u1"}, Handlers{
		OnTranscript: func(tr Transcript) { gotText <- tr },
		OnAudio:      func(b []byte) { gotAudio <- b },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %s, want open", s.State())
	}
	if s.SessionID() != "hsess-1" {
		t.Errorf("SessionID = %q", s.SessionID())
	}

	select {
	case tr := <-gotText:
		if tr.Text != "split line" {
			t.Errorf("transcript text = %q", tr.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript delivered")
	}
	select {
	case b := <-gotAudio:
		if len(b) != 3 || b[0] != 7 {
			t.Errorf("audio = %v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audio delivered")
	}

	s.Stop()
	if s.State() != StateClosed {
		t.Errorf("state after Stop = %s, want closed", s.State())
	}
	select {
	case <-backend.closeCalled:
	case <-time.After(2 * time.Second):
		t.Error("close_session not called")
	}
}

func TestHTTPSessionSendChunking(t *testing.T) {
	backend := newHTTPBackend(t, holdOpen)

	// 10 ms chunks: 16000 Hz * 2 bytes * 10 ms = 320 bytes per POST.
	s := NewHTTPSession(Config{ServerURL: backend.srv.URL, UserID: "u1", ChunkMs: 10}, Handlers{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if got := s.chunkBytes(); got != 320 {
		t.Fatalf("chunkBytes = %d, want 320", got)
	}

	frame := make([]byte, 700)
	for i := range frame {
		frame[i] = byte(i)
	}
	s.Send(frame)

	// 700 buffered bytes flush two full 320-byte chunks; 60 stay pending.
	for i := 0; i < 2; i++ {
		select {
		case chunk := <-backend.chunks:
			if len(chunk) != 320 {
				t.Errorf("chunk %d len = %d, want 320", i, len(chunk))
			}
			if chunk[0] != byte(i*320) {
				t.Errorf("chunk %d starts with %d, out of order", i, chunk[0])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("chunk %d never posted", i)
		}
	}
	select {
	case chunk := <-backend.chunks:
		t.Errorf("unexpected extra chunk of %d bytes", len(chunk))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHTTPSessionSendWhileClosed(t *testing.T) {
	s := NewHTTPSession(Config{ServerURL: "http://localhost:1", UserID: "u1"}, Handlers{})
	// Never started: frames are dropped, not queued or panicking.
	s.Send(make([]byte, 640))
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestHTTPSessionServerEndsStream(t *testing.T) {
	backend := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "{\"type\":\"status\",\"status\":\"done\"}\n")
		// Handler returns: the body ends cleanly with EOF.
	})

	closed := make(chan State, 4)
	s := NewHTTPSession(Config{ServerURL: backend.srv.URL, UserID: "u1"}, Handlers{
		OnStateChange: func(st State, err error) {
			if st == StateClosed || st == StateFailed {
				closed <- st
			}
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case st := <-closed:
		if st != StateClosed {
			t.Errorf("terminal state = %s, want closed", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never observed the stream end")
	}
}

func TestHTTPSessionStopIdempotent(t *testing.T) {
	backend := newHTTPBackend(t, holdOpen)

	s := NewHTTPSession(Config{ServerURL: backend.srv.URL, UserID: "u1"}, Handlers{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestHTTPSessionStopDuringConnect(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	closed := make(chan struct{}, 1)
	var streamOpened atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/letta/audio_http_session/", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release // hold the session create until Stop has landed
		w.Write([]byte(`{"session_id":"hsess-1"}`))
	})
	mux.HandleFunc("/letta/audio_stream/", func(w http.ResponseWriter, r *http.Request) {
		streamOpened.Store(true)
		holdOpen(w, r)
	})
	mux.HandleFunc("/letta/close_session/", func(w http.ResponseWriter, r *http.Request) {
		closed <- struct{}{}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewHTTPSession(Config{ServerURL: srv.URL, UserID: "u1"}, Handlers{})

	startDone := make(chan error, 1)
	go func() { startDone <- s.Start(context.Background()) }()

	<-entered
	s.Stop()
	close(release)

	select {
	case err := <-startDone:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start never returned")
	}

	// The stopped session must stay down: no stream, no state flip.
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if streamOpened.Load() {
		t.Error("stream was opened after Stop")
	}

	// The server-side record created mid-race must still be released.
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Error("orphaned session record never released")
	}
}

func TestHTTPSessionStopAbortsPendingChunks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/letta/audio_http_session/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"session_id":"hsess-1"}`))
	})
	mux.HandleFunc("/letta/audio_stream/", holdOpen)
	mux.HandleFunc("/letta/audio_input/", func(w http.ResponseWriter, r *http.Request) {
		// Drain the body first: the server only notices a client abort (and
		// cancels the request context) once the body has been consumed.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done() // uploads never complete
	})
	mux.HandleFunc("/letta/close_session/", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewHTTPSession(Config{ServerURL: srv.URL, UserID: "u1", ChunkMs: 10}, Handlers{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 3200 bytes at 10 ms chunks queues ten uploads behind a stuck server.
	s.Send(make([]byte, 3200))
	time.Sleep(50 * time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		s.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked behind queued chunk uploads")
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}

	// A frame racing the teardown is dropped, never a panic.
	s.Send(make([]byte, 640))
}

func TestHTTPSessionConnectFailure(t *testing.T) {
	backend := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	s := NewHTTPSession(Config{ServerURL: backend.srv.URL, UserID: "u1"}, Handlers{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start should fail on a 503 stream response")
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}
