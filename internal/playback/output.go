package playback

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"sync"
)

// Output owns the audio device while the player is running.
type Output interface {
	// Start begins playing the track from offset seconds.
	Start(offset float64) error
	Stop()
}

// NopOutput plays nothing. Used headless and in tests.
type NopOutput struct{}

func (NopOutput) Start(float64) error { return nil }
func (NopOutput) Stop()               {}

// FFplayOutput plays the track through ffplay without a window.
type FFplayOutput struct {
	Binary string
	Path   string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewFFplayOutput(binary, path string) *FFplayOutput {
	if binary == "" {
		binary = "ffplay"
	}
	return &FFplayOutput{Binary: binary, Path: path}
}

func (o *FFplayOutput) Start(offset float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()

	cmd := exec.Command(o.Binary,
		"-nodisp", "-autoexit", "-loglevel", "quiet",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		o.Path,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffplay start error: %w", err)
	}
	o.cmd = cmd
	// reap the process; a kill from Stop surfaces here as an error and is expected
	go cmd.Wait()
	return nil
}

func (o *FFplayOutput) Stop() {
	o.mu.Lock()
	o.stopLocked()
	o.mu.Unlock()
}

func (o *FFplayOutput) stopLocked() {
	if o.cmd == nil || o.cmd.Process == nil {
		return
	}
	if err := o.cmd.Process.Kill(); err != nil {
		log.Printf("[!] ffplay stop: %v", err)
	}
	o.cmd = nil
}
