package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"vona/audio"
	"vona/beep"
	"vona/capture"
	"vona/config"
	"vona/doctor"
	"vona/log"
	"vona/pcm"
	"vona/playback"
	"vona/session"
	"vona/shutdown"
)

var version = "dev"

var shutdownOnce sync.Once

type app struct {
	cfg      config.Config
	audioCtx audio.Context
	pipe     *capture.Pipeline
	queue    *playback.Queue
	playDev  audio.PlaybackDevice
	sess     session.Session
	registry *session.Registry
}

func (a *app) gracefulShutdown() {
	shutdownOnce.Do(func() {
		log.Info("shutting down")
		if a.pipe != nil {
			a.pipe.Stop()
		}
		if a.registry != nil && a.sess != nil {
			a.registry.Release(a.sess.UserID())
		}
		if a.queue != nil {
			log.Infof("playback_interrupts: %d", a.queue.Interrupts())
			a.queue.Close()
		}
		if a.playDev != nil {
			a.playDev.Close()
		}
		if a.audioCtx != nil {
			a.audioCtx.Close()
		}
		log.Close()

		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func main() {
	serverFlag := flag.String("server", "", "Backend base URL (overrides VONA_SERVER_URL)")
	userFlag := flag.String("user", "", "User id (overrides VONA_USER_ID)")
	tokenFlag := flag.String("token", "", "Bearer token for session-management calls")
	transportFlag := flag.String("transport", "", "Transport: ws or http (overrides VONA_TRANSPORT)")
	legacyFlag := flag.Bool("legacy", false, "Use the legacy /ws/audio/ endpoint without session ids")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("vona %s\n", version)
		os.Exit(0)
	}

	cfg := config.Load()
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}
	if *userFlag != "" {
		cfg.UserID = *userFlag
	}
	if *tokenFlag != "" {
		cfg.AuthToken = *tokenFlag
	}
	if *transportFlag != "" {
		cfg.Transport = *transportFlag
	}
	if cfg.Transport != "ws" && cfg.Transport != "http" {
		fmt.Printf("Error: unknown transport %q (use ws or http)\n", cfg.Transport)
		os.Exit(1)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg.ServerURL))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
		log.Infof("no user id configured, using ephemeral id %s", cfg.UserID)
	}

	run(cfg, *deviceFlag, *setupFlag, *legacyFlag, *tuiFlag)
}

func run(cfg config.Config, deviceName string, setup, legacy, withTUI bool) {
	a := &app{cfg: cfg, registry: session.Default()}

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	a.audioCtx = audioCtx

	var selectedDevice *audio.DeviceInfo
	if deviceName != "" {
		if devices, err := audioCtx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == deviceName {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			fmt.Printf("Warning: device %q not found, using system default\n", deviceName)
		}
	} else if setup {
		selectedDevice, err = audio.SelectDevice(audioCtx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	playDev, err := audioCtx.NewPlayback(audio.PlaybackConfig{
		SampleRate: pcm.WireSampleRate,
		Channels:   pcm.Channels,
	})
	if err != nil {
		log.Errorf("playback device init error: %v", err)
		fmt.Printf("Error initializing playback: %v\n", err)
		audioCtx.Close()
		os.Exit(1)
	}
	a.playDev = playDev
	a.queue = playback.NewQueue(playDev)

	a.pipe = capture.NewPipeline(audioCtx, capture.Config{
		Device:     selectedDevice,
		SampleRate: uint32(cfg.CaptureRate),
		FrameSize:  pcm.FrameSize,
	})

	vp, err := newVADProcessor()
	if err != nil {
		log.Warnf("VAD init failed, no-voice warning disabled: %v", err)
		vp = nil
	}

	// Pick the sink before the session exists so early state changes land
	// somewhere.
	var sink EventSink = logSink{}
	if withTUI {
		sink = tuiSink{}
	}

	sessCfg := session.Config{
		ServerURL:      cfg.ServerURL,
		UserID:         cfg.UserID,
		AuthToken:      cfg.AuthToken,
		ConnectTimeout: cfg.ConnectTimeout,
		KeepAlive:      cfg.KeepAlive,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		ChunkMs:        cfg.ChunkMs,
		Legacy:         legacy,
	}
	handlers := session.Handlers{
		OnAudio: func(data []byte) {
			a.queue.Enqueue(data)
		},
		OnTranscript: func(t session.Transcript) {
			sink.Transcript(t)
			if t.IsFinal {
				log.Transcript("user", t.Text)
			}
		},
		OnResponse: func(r session.Response) {
			sink.Response(r)
			log.Transcript("assistant", r.Text)
		},
		OnError: func(msg string) {
			sink.Error(msg)
		},
		OnStatus: func(status string) {
			sink.Status(status)
		},
		OnStateChange: func(s session.State, err error) {
			sink.SessionState(s, err)
			switch s {
			case session.StateOpen:
				beep.PlayConnect()
			case session.StateClosed:
				beep.PlayDisconnect()
			case session.StateFailed:
				beep.PlayError()
			}
		},
	}

	a.sess = a.registry.Acquire(cfg.UserID, func() session.Session {
		if cfg.Transport == "http" {
			return session.NewHTTPSession(sessCfg, handlers)
		}
		return session.NewWSSession(sessCfg, handlers)
	})

	a.queue.OnPlayingChange(func(on bool) {
		sink.Playing(on)
	})

	// Half-duplex: while the assistant is sounding, the mic only feeds the
	// barge-in detector; nothing goes to the server.
	a.pipe.OnFrame(func(frame []float32) {
		wire := pcm.ResampleToWire(frame, cfg.CaptureRate)
		if len(wire) == 0 {
			return
		}
		if vp != nil {
			vp.Process(wire)
		}
		if a.queue.Playing() {
			a.queue.NotifyAmplitude(pcm.MeanAbs(wire))
			return
		}
		a.sess.Send(wire)
	})

	if err := a.pipe.Start(); err != nil {
		log.Errorf("capture start error: %v", err)
		fmt.Printf("Error starting capture: %v\n", err)
		a.gracefulShutdown()
	}

	beep.Init()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		a.gracefulShutdown()
	}()

	// Monitor loop: UI level updates, the no-voice warning, and the audible
	// barge-in cue.
	go func() {
		mon := newSilenceMonitor()
		lastInterrupts := 0
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for range ticker.C {
			sink.AudioLevel(a.pipe.Level(), a.pipe.Bins())

			if n := a.queue.Interrupts(); n != lastInterrupts {
				lastInterrupts = n
				beep.PlayInterrupt()
			}

			if vp == nil || a.sess.State() != session.StateOpen {
				continue
			}
			speech := vp.HasSpeechTick() || a.queue.Playing()
			switch mon.Tick(speech) {
			case SilenceWarn, SilenceRepeat:
				sink.NoVoiceWarning(true)
				beep.PlayError()
			case SilenceWarnClear:
				sink.NoVoiceWarning(false)
			}
		}
	}()

	deviceLine := "mic: system default"
	if selectedDevice != nil {
		deviceLine = "mic: " + selectedDevice.Name
		if audio.IsBluetooth(selectedDevice.Name) {
			deviceLine += " (BT!)"
		}
	}

	go func() {
		if err := a.sess.Start(context.Background()); err != nil {
			log.Errorf("session start: %v", err)
		}
	}()

	if !withTUI {
		fmt.Printf("vona %s — %s (%s), user %s\n", version, cfg.ServerURL, cfg.Transport, cfg.UserID)
		fmt.Println("Ctrl+C to quit")
		select {}
	}

	serverLine := fmt.Sprintf("%s (%s)", cfg.ServerURL, cfg.Transport)
	onRetry := func() {
		if err := a.sess.Retry(context.Background()); err != nil {
			log.Errorf("retry: %v", err)
		}
	}

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(serverLine, deviceLine, onRetry)
	p := tuiProgram
	tuiMu.Unlock()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}
	a.gracefulShutdown()
}
