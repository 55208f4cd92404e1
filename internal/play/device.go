package play

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNotAcquired is returned when the device is used without being acquired
	ErrNotAcquired = errors.New("playback device not acquired")
	// ErrBusy is returned when acquiring a device that already has an owner
	ErrBusy = errors.New("playback device already acquired")
	// ErrNotPlaying is returned by Pause when nothing is playing
	ErrNotPlaying = errors.New("nothing is playing")
	// ErrNotPaused is returned by Resume when playback is not paused
	ErrNotPaused = errors.New("playback is not paused")
)

// State is the state of the playback device
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Status describes what the device is doing
type Status struct {
	State State  `json:"state"`
	File  string `json:"file,omitempty"`
}

// Device is the single audio output of the process. Starting a file while
// another plays preempts it; Pause, Resume and Stop act on whatever is
// currently playing.
type Device struct {
	launcher Launcher

	mu       sync.Mutex
	acquired bool
	proc     Process
	file     string
	state    State
	gen      uint64
}

// New creates a device that starts playback through launcher
func New(launcher Launcher) *Device {
	return &Device{launcher: launcher, state: StateIdle}
}

// Acquire takes ownership of the device
func (d *Device) Acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.acquired {
		return ErrBusy
	}
	d.acquired = true
	return nil
}

// Release stops any playback and gives up ownership
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired {
		return ErrNotAcquired
	}
	err := d.stopLocked()
	d.acquired = false
	return err
}

// Play starts path, stopping whatever was playing before
func (d *Device) Play(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired {
		return ErrNotAcquired
	}
	if err := d.stopLocked(); err != nil {
		slog.Debug("Stopping previous playback failed", "file", d.file, "error", err)
	}

	proc, err := d.launcher.Launch(path)
	if err != nil {
		return fmt.Errorf("failed to start playback of %s: %w", path, err)
	}

	d.gen++
	gen := d.gen
	d.proc = proc
	d.file = path
	d.state = StatePlaying
	slog.Info("Playback started", "file", path)

	go d.wait(proc, gen)
	return nil
}

// wait returns the device to idle when a player exits on its own
func (d *Device) wait(proc Process, gen uint64) {
	err := proc.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return
	}
	if err != nil {
		slog.Debug("Player exited", "file", d.file, "error", err)
	}
	d.proc = nil
	d.file = ""
	d.state = StateIdle
}

// Pause suspends the current playback
func (d *Device) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired {
		return ErrNotAcquired
	}
	if d.state != StatePlaying {
		return ErrNotPlaying
	}
	if err := d.proc.Pause(); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	d.state = StatePaused
	return nil
}

// Resume continues paused playback
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired {
		return ErrNotAcquired
	}
	if d.state != StatePaused {
		return ErrNotPaused
	}
	if err := d.proc.Resume(); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}
	d.state = StatePlaying
	return nil
}

// Stop ends the current playback, if any
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired {
		return ErrNotAcquired
	}
	return d.stopLocked()
}

// Status reports the device state
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{State: d.state, File: d.file}
}

func (d *Device) stopLocked() error {
	if d.proc == nil {
		return nil
	}
	// bump the generation so the exiting waiter leaves state alone
	d.gen++
	err := d.proc.Stop()
	d.proc = nil
	d.file = ""
	d.state = StateIdle
	return err
}
