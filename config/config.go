// Package config loads client settings from the environment, with optional
// .env support for development setups.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL      string // http(s) base URL of the backend
	UserID         string
	AuthToken      string // bearer token for session-management calls, optional
	Transport      string // "ws" or "http"
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	ChunkMs        int // outbound chunk size for the HTTP transport
	CaptureRate    int // device capture rate
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real env vars win.
func Load() Config {
	godotenv.Load()

	return Config{
		ServerURL:      envStr("VONA_SERVER_URL", "http://localhost:8000"),
		UserID:         envStr("VONA_USER_ID", ""),
		AuthToken:      envStr("VONA_AUTH_TOKEN", ""),
		Transport:      envStr("VONA_TRANSPORT", "ws"),
		ConnectTimeout: time.Duration(envInt("VONA_CONNECT_TIMEOUT_S", 30)) * time.Second,
		KeepAlive:      time.Duration(envInt("VONA_KEEPALIVE_S", 30)) * time.Second,
		MaxRetries:     envInt("VONA_MAX_RETRIES", 3),
		RetryBackoff:   time.Duration(envInt("VONA_RETRY_BACKOFF_MS", 1000)) * time.Millisecond,
		ChunkMs:        envInt("VONA_CHUNK_MS", 200),
		CaptureRate:    envInt("VONA_CAPTURE_RATE", 44100),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
