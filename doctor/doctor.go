// Package doctor runs system diagnostics: audio devices, microphone level,
// log directory, and backend reachability.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vona/audio"
	"vona/log"
	"vona/pcm"
)

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run(serverURL string) int {
	fmt.Println("vona doctor - system diagnostics")
	fmt.Println("================================")

	allPass := true

	if !checkAudio() {
		allPass = false
	}
	if !checkLogDir() {
		allPass = false
	}
	if !checkServer(serverURL) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkAudio() bool {
	fmt.Println()
	fmt.Println("[1/3] Audio capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}
	for _, d := range devices {
		note := ""
		if audio.IsBluetooth(d.Name) {
			note = " (bluetooth — expect degraded quality)"
		}
		fmt.Printf("  device: %s%s\n", d.Name, note)
	}

	// Capture two seconds from the default device and report the level.
	dev, err := ctx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: pcm.WireSampleRate,
		Channels:   pcm.Channels,
	})
	if err != nil {
		fmt.Printf("  FAIL: cannot open default device: %v\n", err)
		return false
	}
	defer dev.Close()

	var mu sync.Mutex
	var sum float64
	var count int
	cb := audio.FrameCallback(func(samples []float32) {
		mu.Lock()
		for _, s := range samples {
			if s < 0 {
				sum -= float64(s)
			} else {
				sum += float64(s)
			}
		}
		count += len(samples)
		mu.Unlock()
	})
	dev.SetCallback(cb)

	fmt.Println("  recording 2s from the default device — say something...")
	if err := dev.Start(); err != nil {
		fmt.Printf("  FAIL: cannot start capture: %v\n", err)
		return false
	}
	time.Sleep(2 * time.Second)
	dev.Stop()
	dev.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	if count == 0 {
		fmt.Println("  FAIL: no samples delivered")
		return false
	}
	level := sum / float64(count)
	if level < 0.001 {
		fmt.Printf("  WARN: mic level %.4f — is the microphone muted?\n", level)
	} else {
		fmt.Printf("  PASS: mic level %.4f over %d samples\n", level, count)
	}
	return true
}

func checkLogDir() bool {
	fmt.Println()
	fmt.Println("[2/3] Log directory")

	dir := log.Dir()
	if dir == "" {
		var err error
		dir, err = log.ResolveDir("")
		if err != nil {
			fmt.Printf("  FAIL: cannot resolve log directory: %v\n", err)
			return false
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Printf("  FAIL: cannot create %s: %v\n", dir, err)
		return false
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		fmt.Printf("  FAIL: %s not writable: %v\n", dir, err)
		return false
	}
	os.Remove(probe)
	fmt.Printf("  PASS: %s writable\n", dir)
	return true
}

func checkServer(serverURL string) bool {
	fmt.Println()
	fmt.Println("[3/3] Backend reachability")

	if serverURL == "" {
		fmt.Println("  SKIP: no server URL configured")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL, nil)
	if err != nil {
		fmt.Printf("  FAIL: bad server URL %q: %v\n", serverURL, err)
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("  FAIL: %s unreachable: %v\n", serverURL, err)
		return false
	}
	resp.Body.Close()
	fmt.Printf("  PASS: %s responded with %d\n", serverURL, resp.StatusCode)
	return true
}
