package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveDirFlagWins(t *testing.T) {
	t.Setenv("VONA_LOG_PATH", "/env/path")
	got, err := ResolveDir("/flag/path")
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if got != "/flag/path" {
		t.Errorf("got %q, want /flag/path", got)
	}
}

func TestResolveDirEnvFallback(t *testing.T) {
	t.Setenv("VONA_LOG_PATH", "/env/path")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if got != "/env/path" {
		t.Errorf("got %q, want /env/path", got)
	}
}

func TestResolveDirRelative(t *testing.T) {
	t.Setenv("VONA_LOG_PATH", "")
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if !filepath.IsAbs(got) || !strings.HasSuffix(got, "logs") {
		t.Errorf("got %q, want absolute path ending in logs", got)
	}
}

func TestInitAndTranscript(t *testing.T) {
	SetDir(t.TempDir())
	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Info("hello")
	Warnf("warn %d", 1)
	Transcript("user", "hello there")

	data, err := os.ReadFile(filepath.Join(Dir(), "conversation_log.txt"))
	if err != nil {
		t.Fatalf("read conversation log: %v", err)
	}
	if !strings.Contains(string(data), "hello there") {
		t.Errorf("conversation log missing entry: %q", data)
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	Close()
	Info("dropped")     // must not panic
	Transcript("u", "") // must not panic
}
