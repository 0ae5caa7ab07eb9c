package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"
)

// restClient wraps the session-management endpoints. Connection setup is
// traced so the session log can report where connect time went.
type restClient struct {
	base   string // http(s) base URL, no trailing slash
	token  string // bearer token, optional
	client *http.Client
}

func newRESTClient(base, token string) *restClient {
	return &restClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type restTiming struct {
	DNS   time.Duration
	TLS   time.Duration
	TTFB  time.Duration
	Total time.Duration
}

func (c *restClient) postJSON(ctx context.Context, path string, payload, out any) (*restTiming, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	timing := &restTiming{}
	var dnsStart, tlsStart, reqStart time.Time
	trace := &httptrace.ClientTrace{
		DNSStart:          func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { timing.DNS = time.Since(dnsStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { timing.TLS = time.Since(tlsStart) },
		GotFirstResponseByte: func() {
			timing.TTFB = time.Since(reqStart)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	reqStart = time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	timing.Total = time.Since(reqStart)
	if err != nil {
		return timing, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return timing, fmt.Errorf("%s: status %d: %.200s", path, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return timing, fmt.Errorf("%s: decode response: %w", path, err)
		}
	}
	return timing, nil
}

type sessionCreated struct {
	SessionID string `json:"session_id"`
}

// createStreamingSession registers a WebSocket conversation and returns the
// server-assigned session id.
func (c *restClient) createStreamingSession(ctx context.Context, userID string) (string, *restTiming, error) {
	var out sessionCreated
	timing, err := c.postJSON(ctx, "/letta/audio_streaming_session/", map[string]string{"user_id": userID}, &out)
	if err != nil {
		return "", timing, err
	}
	if out.SessionID == "" {
		return "", timing, fmt.Errorf("audio_streaming_session: no session_id in response")
	}
	return out.SessionID, timing, nil
}

func (c *restClient) endStreamingSession(ctx context.Context, sessionID string) error {
	_, err := c.postJSON(ctx, "/letta/end_audio_session/"+sessionID+"/", nil, nil)
	return err
}

func (c *restClient) createHTTPSession(ctx context.Context, userID string) (string, *restTiming, error) {
	var out sessionCreated
	timing, err := c.postJSON(ctx, "/letta/audio_http_session/", map[string]string{"user_id": userID}, &out)
	if err != nil {
		return "", timing, err
	}
	if out.SessionID == "" {
		return "", timing, fmt.Errorf("audio_http_session: no session_id in response")
	}
	return out.SessionID, timing, nil
}

// sendAudioChunk submits one recorded chunk as a raw body POST.
func (c *restClient) sendAudioChunk(ctx context.Context, userID, sessionID string, chunk []byte) error {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("session_id", sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/letta/audio_input/?"+q.Encode(), bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audio_input: status %d", resp.StatusCode)
	}
	return nil
}

func (c *restClient) closeHTTPSession(ctx context.Context, userID, sessionID string) error {
	_, err := c.postJSON(ctx, "/letta/close_session/", map[string]string{
		"user_id":    userID,
		"session_id": sessionID,
	}, nil)
	return err
}
