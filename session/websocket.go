package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"vona/log"
)

// Config is shared by both transport implementations.
type Config struct {
	ServerURL      string // http(s) base URL of the backend
	UserID         string
	AuthToken      string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	ChunkMs        int  // HTTP transport outbound chunk size
	Legacy         bool // use the /ws/audio/ path without a session id
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = ConnectTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = KeepAliveInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.ChunkMs <= 0 {
		c.ChunkMs = 200
	}
}

// WSSession is the WebSocket transport: binary frames carry PCM audio in
// both directions, JSON text frames carry control and conversation messages.
type WSSession struct {
	cfg      Config
	handlers Handlers
	rest     *restClient

	mu            sync.Mutex
	state         State
	sessionID     string
	conn          *websocket.Conn
	connCtx       context.Context
	connCancel    context.CancelFunc
	keepAliveStop chan struct{}
	stats         Stats
}

func NewWSSession(cfg Config, h Handlers) *WSSession {
	cfg.applyDefaults()
	return &WSSession{
		cfg:      cfg,
		handlers: h,
		rest:     newRESTClient(cfg.ServerURL, cfg.AuthToken),
		state:    StateIdle,
	}
}

func (s *WSSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *WSSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *WSSession) UserID() string { return s.cfg.UserID }

func (s *WSSession) setState(next State, err error) {
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

// wireURL derives the ws(s) endpoint from the http(s) base URL.
func (s *WSSession) wireURL(sessionID string) (string, error) {
	u, err := url.Parse(s.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	q := url.Values{}
	q.Set("user_id", s.cfg.UserID)
	if s.cfg.Legacy {
		u.Path = "/ws/audio/"
	} else {
		u.Path = "/ws/audio_streaming/receive/"
		q.Set("session_id", sessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start creates the server-side session record and opens the channel. The
// handshake is bounded by the connect timeout; an unresolved dial fails the
// session rather than hanging a retry.
func (s *WSSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateOpen:
		s.mu.Unlock()
		log.Warn("session: start ignored, channel already live")
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()
	if cb := s.handlers.OnStateChange; cb != nil {
		cb(StateConnecting, nil)
	}

	connectStart := time.Now()

	var sessionID string
	if !s.cfg.Legacy {
		id, _, err := s.rest.createStreamingSession(ctx, s.cfg.UserID)
		if err != nil {
			s.setState(StateFailed, err)
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = id
	}

	// Stop may have run while the session record was being created; a
	// stopped session must stay down, not dial anyway.
	if s.State() != StateConnecting {
		s.releaseServerSession(sessionID)
		log.Warn("session: stopped during connect, aborting")
		return nil
	}

	endpoint, err := s.wireURL(sessionID)
	if err != nil {
		s.setState(StateFailed, err)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		if dialCtx.Err() != nil {
			err = fmt.Errorf("handshake timed out after %s: %w", s.cfg.ConnectTimeout, err)
		}
		s.setState(StateFailed, err)
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(4 << 20) // response audio buffers run to megabytes

	connCtx, connCancel := context.WithCancel(context.Background())

	// Install and open atomically: a Stop that won the race against the
	// dial has already moved the state on, and the fresh connection must
	// be discarded rather than resurrect the session.
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "client stopping")
		s.releaseServerSession(sessionID)
		log.Warn("session: stopped during connect, discarding channel")
		return nil
	}
	s.sessionID = sessionID
	s.conn = conn
	s.connCtx = connCtx
	s.connCancel = connCancel
	s.keepAliveStop = make(chan struct{})
	s.stats = Stats{ConnectedAt: time.Now(), ConnectDur: time.Since(connectStart)}
	keepAliveStop := s.keepAliveStop
	s.state = StateOpen
	cb := s.handlers.OnStateChange
	s.mu.Unlock()

	log.Infof("session: state -> %s", StateOpen)
	if cb != nil {
		cb(StateOpen, nil)
	}

	if err := conn.Write(connCtx, websocket.MessageText, clientConnectedMessage(s.cfg.UserID, sessionID)); err != nil {
		log.Warnf("session: client_connected send failed: %v", err)
	}

	go s.keepAliveLoop(conn, connCtx, keepAliveStop)
	go s.readLoop(conn, connCtx)

	log.SessionStart("ws", s.cfg.ServerURL, s.cfg.UserID)
	return nil
}

func (s *WSSession) keepAliveLoop(conn *websocket.Conn, ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != StateOpen {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, pingMessage); err != nil {
				log.Warnf("session: keep-alive write failed: %v", err)
				return
			}
		}
	}
}

func (s *WSSession) readLoop(conn *websocket.Conn, ctx context.Context) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.handleReadError(err)
			return
		}
		switch typ {
		case websocket.MessageBinary:
			s.mu.Lock()
			s.stats.RecvAudio++
			s.mu.Unlock()
			if s.handlers.OnAudio != nil {
				s.handlers.OnAudio(data)
			}
		case websocket.MessageText:
			s.mu.Lock()
			s.stats.RecvText++
			s.mu.Unlock()
			dispatchText(data, s.handlers)
		}
	}
}

func (s *WSSession) handleReadError(err error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	// Reads fail as a matter of course once Stop has closed the channel.
	if state == StateClosing || state == StateClosed {
		return
	}

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		s.teardown(false)
		s.setState(StateClosed, nil)
		return
	}

	log.Errorf("session: abnormal closure: %v", err)
	s.teardown(false)
	s.setState(StateFailed, fmt.Errorf("connection lost: %w", err))
}

// teardown releases the channel resources. Safe to call repeatedly.
func (s *WSSession) teardown(notifyServer bool) {
	s.mu.Lock()
	conn := s.conn
	cancel := s.connCancel
	keepAliveStop := s.keepAliveStop
	sessionID := s.sessionID
	stats := s.stats
	s.conn = nil
	s.connCancel = nil
	s.keepAliveStop = nil
	s.mu.Unlock()

	if keepAliveStop != nil {
		close(keepAliveStop)
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client stopping")
	}
	if cancel != nil {
		cancel()
	}

	if notifyServer {
		s.releaseServerSession(sessionID)
	}

	if !stats.ConnectedAt.IsZero() {
		log.Session(log.SessionMetrics{
			Transport:  "ws",
			ConnectMs:  float64(stats.ConnectDur.Milliseconds()),
			SessionS:   time.Since(stats.ConnectedAt).Seconds(),
			SentChunks: stats.SentChunks,
			SentKB:     float64(stats.SentBytes) / 1024,
			RecvAudio:  stats.RecvAudio,
			RecvText:   stats.RecvText,
		})
	}
}

// releaseServerSession ends a server-side session record, best effort.
// Harmless when the id is empty (legacy path has no record to release).
func (s *WSSession) releaseServerSession(sessionID string) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rest.endStreamingSession(ctx, sessionID); err != nil {
		log.Warnf("session: end_audio_session failed: %v", err)
	}
}

// Stop closes the channel and notifies the backend. Calling it twice, or
// during an in-flight Start, leaves the session cleanly Closed either way.
func (s *WSSession) Stop() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()
	if cb := s.handlers.OnStateChange; cb != nil {
		cb(StateClosing, nil)
	}

	s.teardown(true)
	s.setState(StateClosed, nil)
	log.SessionEnd(StateClosed.String())
}

// Send transmits one audio frame, dropping it when the channel isn't open.
func (s *WSSession) Send(pcm []byte) {
	s.mu.Lock()
	if s.state != StateOpen || s.conn == nil {
		s.mu.Unlock()
		log.Warnf("session: dropping %d byte frame, channel %s", len(pcm), s.state)
		return
	}
	conn := s.conn
	ctx := s.connCtx
	s.stats.SentChunks++
	s.stats.SentBytes += uint64(len(pcm))
	s.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
		log.Warnf("session: audio send failed: %v", err)
	}
}

// Retry re-runs connection setup with exponential backoff, at most
// MaxRetries attempts. It is never invoked automatically.
func (s *WSSession) Retry(ctx context.Context) error {
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
