// Package log writes diagnostic and conversation logs for the voice client.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog      zerolog.Logger
	diagFile     *os.File
	convoFile    *os.File
	logMu        sync.Mutex
	logReady     bool
	pid          int
	dir          string
)

// ResolveDir picks the log directory: flag, then VONA_LOG_PATH, then the
// OS-specific default.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("VONA_LOG_PATH")} {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, p), nil
		}
		return p, nil
	}
	return defaultDir()
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	convoPath := filepath.Join(dir, "conversation_log.txt")
	convoFile, err = os.OpenFile(convoPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if convoFile != nil {
		convoFile.Close()
		convoFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Transcript appends one line to the conversation log: who said what. The
// diagnostics log never carries conversation text.
func Transcript(role, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, role, text)
	convoFile.WriteString(line)
}

// SessionMetrics summarizes one transport session at teardown.
type SessionMetrics struct {
	Transport  string
	ConnectMs  float64
	SessionS   float64
	SentChunks int
	SentKB     float64
	RecvAudio  int
	RecvText   int
}

func Session(m SessionMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("transport", m.Transport).
		Float64("connect_ms", m.ConnectMs).
		Float64("session_s", m.SessionS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_audio", m.RecvAudio).
		Int("recv_text", m.RecvText).
		Msg("session")
}

func SessionStart(transport, server, userID string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("transport", transport).
		Str("server", server).
		Str("user_id", userID).
		Msg("session_start")
}

func SessionEnd(state string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("state", state).Msg("session_end")
}
