package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VONA_SERVER_URL", "")
	t.Setenv("VONA_MAX_RETRIES", "")

	cfg := Load()
	if cfg.ServerURL != "http://localhost:8000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want 30s", cfg.ConnectTimeout)
	}
	if cfg.Transport != "ws" {
		t.Errorf("Transport = %q, want ws", cfg.Transport)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VONA_SERVER_URL", "https://api.example.com")
	t.Setenv("VONA_TRANSPORT", "http")
	t.Setenv("VONA_CHUNK_MS", "100")
	t.Setenv("VONA_MAX_RETRIES", "bogus") // bad int falls back

	cfg := Load()
	if cfg.ServerURL != "https://api.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Transport != "http" {
		t.Errorf("Transport = %q", cfg.Transport)
	}
	if cfg.ChunkMs != 100 {
		t.Errorf("ChunkMs = %d", cfg.ChunkMs)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want fallback 3", cfg.MaxRetries)
	}
}
