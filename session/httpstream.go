package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"vona/log"
	"vona/pcm"
)

// HTTPSession is the chunked-HTTP transport: outbound audio goes out as
// discrete POSTs of ~200 ms chunks, inbound data arrives on a long-lived
// chunked response body as newline-delimited JSON events.
type HTTPSession struct {
	cfg      Config
	handlers Handlers
	rest     *restClient
	client   *http.Client // no timeout: the stream is long-lived

	mu         sync.Mutex
	state      State
	sessionID  string
	cancel     context.CancelFunc
	sendBuf    []byte
	sendCh     chan []byte
	senderDone chan struct{}
	readerDone chan struct{}
	stats      Stats
}

func NewHTTPSession(cfg Config, h Handlers) *HTTPSession {
	cfg.applyDefaults()
	return &HTTPSession{
		cfg:      cfg,
		handlers: h,
		rest:     newRESTClient(cfg.ServerURL, cfg.AuthToken),
		client:   &http.Client{},
		state:    StateIdle,
	}
}

func (s *HTTPSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *HTTPSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *HTTPSession) UserID() string { return s.cfg.UserID }

func (s *HTTPSession) setState(next State, err error) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	cb := s.handlers.OnStateChange
	s.mu.Unlock()

	log.Infof("session: state -> %s", next)
	if cb != nil {
		cb(next, err)
	}
}

// chunkBytes is the outbound POST size: ChunkMs of wire-format audio.
func (s *HTTPSession) chunkBytes() int {
	return pcm.WireSampleRate * pcm.Channels * (pcm.BitsPerSample / 8) * s.cfg.ChunkMs / 1000
}

func (s *HTTPSession) streamURL(sessionID string) string {
	q := url.Values{}
	q.Set("user_id", s.cfg.UserID)
	q.Set("session_id", sessionID)
	return s.rest.base + "/letta/audio_stream/?" + q.Encode()
}

// Start creates the session record and opens the inbound stream. Returns
// once the stream response headers have arrived (bounded by the connect
// timeout) so a hung connect can't block a retry.
func (s *HTTPSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateOpen:
		s.mu.Unlock()
		log.Warn("session: start ignored, stream already live")
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()
	if cb := s.handlers.OnStateChange; cb != nil {
		cb(StateConnecting, nil)
	}

	connectStart := time.Now()

	sessionID, _, err := s.rest.createHTTPSession(ctx, s.cfg.UserID)
	if err != nil {
		s.setState(StateFailed, err)
		return fmt.Errorf("create session: %w", err)
	}

	// Stop may have run while the session record was being created; a
	// stopped session must stay down, not open the stream anyway.
	if s.State() != StateConnecting {
		s.releaseServerSession(sessionID)
		log.Warn("session: stopped during connect, aborting")
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.streamURL(sessionID), nil)
	if err != nil {
		cancel()
		s.setState(StateFailed, err)
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	// Bound only the connect phase; once headers are in, the stream runs
	// until Stop aborts it.
	connectTimer := time.AfterFunc(s.cfg.ConnectTimeout, cancel)
	resp, err := s.client.Do(req)
	timedOut := !connectTimer.Stop()
	if err != nil {
		if timedOut {
			err = fmt.Errorf("stream connect timed out after %s", s.cfg.ConnectTimeout)
		}
		cancel()
		s.setState(StateFailed, err)
		return fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		err := fmt.Errorf("open stream: status %d", resp.StatusCode)
		s.setState(StateFailed, err)
		return err
	}

	// Install and open atomically: a Stop that won the race against the
	// stream open has already moved the state on, and the fresh stream
	// must be discarded rather than resurrect the session.
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		cancel()
		resp.Body.Close()
		s.releaseServerSession(sessionID)
		log.Warn("session: stopped during connect, discarding stream")
		return nil
	}
	s.sessionID = sessionID
	s.cancel = cancel
	s.sendBuf = nil
	s.sendCh = make(chan []byte, 64)
	s.senderDone = make(chan struct{})
	s.readerDone = make(chan struct{})
	s.stats = Stats{ConnectedAt: time.Now(), ConnectDur: time.Since(connectStart)}
	sendCh := s.sendCh
	senderDone := s.senderDone
	readerDone := s.readerDone
	s.state = StateOpen
	cb := s.handlers.OnStateChange
	s.mu.Unlock()

	log.Infof("session: state -> %s", StateOpen)
	if cb != nil {
		cb(StateOpen, nil)
	}

	go s.senderLoop(streamCtx, sessionID, sendCh, senderDone)
	go s.readLoop(resp.Body, readerDone)

	log.SessionStart("http", s.cfg.ServerURL, s.cfg.UserID)
	return nil
}

// readLoop consumes the chunked body. Messages are only consumable once a
// full newline-terminated line is buffered; the partial tail is carried
// into the next read.
func (s *HTTPSession) readLoop(body io.ReadCloser, done chan<- struct{}) {
	defer close(done)
	defer body.Close()

	var pending []byte
	chunk := make([]byte, 16*1024)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			var msgs [][]byte
			msgs, pending = splitMessages(pending)
			for _, raw := range msgs {
				s.mu.Lock()
				s.stats.RecvText++
				s.mu.Unlock()
				dispatchText(raw, s.handlers)
			}
		}
		if err != nil {
			s.handleStreamEnd(err)
			return
		}
	}
}

func (s *HTTPSession) handleStreamEnd(err error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateClosing || state == StateClosed {
		return
	}

	if err == io.EOF {
		log.Info("session: stream ended by server")
		s.setState(StateClosed, nil)
		return
	}
	log.Errorf("session: stream read failed: %v", err)
	s.setState(StateFailed, fmt.Errorf("connection lost: %w", err))
}

// senderLoop serializes chunk POSTs so outbound audio keeps capture order.
// It exits on context cancellation, abandoning any still-queued chunks: a
// stopping session must not sit behind a backlog of uploads.
func (s *HTTPSession) senderLoop(ctx context.Context, sessionID string, ch <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-ch:
			if err := s.rest.sendAudioChunk(ctx, s.cfg.UserID, sessionID, chunk); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warnf("session: audio chunk POST failed: %v", err)
			}
		}
	}
}

// Send buffers the frame and flushes complete chunks to the sender.
func (s *HTTPSession) Send(frame []byte) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		log.Warnf("session: dropping %d byte frame, stream %s", len(frame), s.state)
		return
	}
	s.sendBuf = append(s.sendBuf, frame...)
	size := s.chunkBytes()
	var chunks [][]byte
	for len(s.sendBuf) >= size {
		chunk := make([]byte, size)
		copy(chunk, s.sendBuf[:size])
		s.sendBuf = s.sendBuf[size:]
		chunks = append(chunks, chunk)
	}
	ch := s.sendCh
	s.mu.Unlock()

	for _, chunk := range chunks {
		select {
		case ch <- chunk:
			s.mu.Lock()
			s.stats.SentChunks++
			s.stats.SentBytes += uint64(len(chunk))
			s.mu.Unlock()
		default:
			log.Warn("session: outbound chunk queue full, dropping audio")
		}
	}
}

// Stop aborts the stream read and the sender, then releases the server
// session. Idempotent. Cancellation comes first so queued chunk uploads
// are abandoned, not drained; the send channel is never closed, so a Send
// racing Stop lands harmlessly in the orphaned buffer.
func (s *HTTPSession) Stop() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	cancel := s.cancel
	senderDone := s.senderDone
	readerDone := s.readerDone
	sessionID := s.sessionID
	stats := s.stats
	s.cancel = nil
	s.sendCh = nil
	s.sendBuf = nil
	s.mu.Unlock()
	if cb := s.handlers.OnStateChange; cb != nil {
		cb(StateClosing, nil)
	}

	if cancel != nil {
		cancel()
	}
	if senderDone != nil {
		<-senderDone
	}
	if readerDone != nil {
		select {
		case <-readerDone:
		case <-time.After(2 * time.Second):
			log.Warn("session: stream reader drain timeout")
		}
	}

	s.releaseServerSession(sessionID)

	if !stats.ConnectedAt.IsZero() {
		log.Session(log.SessionMetrics{
			Transport:  "http",
			ConnectMs:  float64(stats.ConnectDur.Milliseconds()),
			SessionS:   time.Since(stats.ConnectedAt).Seconds(),
			SentChunks: stats.SentChunks,
			SentKB:     float64(stats.SentBytes) / 1024,
			RecvText:   stats.RecvText,
		})
	}

	s.setState(StateClosed, nil)
	log.SessionEnd(StateClosed.String())
}

// releaseServerSession closes a server-side session record, best effort.
func (s *HTTPSession) releaseServerSession(sessionID string) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rest.closeHTTPSession(ctx, s.cfg.UserID, sessionID); err != nil {
		log.Warnf("session: close_session failed: %v", err)
	}
}

// Retry re-runs connection setup with exponential backoff, at most
// MaxRetries attempts.
func (s *HTTPSession) Retry(ctx context.Context) error {
	var lastErr error
	backoff := s.cfg.RetryBackoff
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()

		log.Infof("session: retry attempt %d/%d", attempt, s.cfg.MaxRetries)
		if lastErr = s.Start(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("retry exhausted after %d attempts: %w", s.cfg.MaxRetries, lastErr)
}
