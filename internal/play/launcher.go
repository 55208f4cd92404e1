package play

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// Process is a running player
type Process interface {
	Pause() error
	Resume() error
	Stop() error
	// Wait blocks until the player exits
	Wait() error
}

// Launcher starts a player for a file
type Launcher interface {
	Launch(path string) (Process, error)
}

// ExecLauncher plays files with the first external player found on PATH
type ExecLauncher struct {
	Players []string
}

// NewExecLauncher returns a launcher trying players in order
func NewExecLauncher(players []string) *ExecLauncher {
	if len(players) == 0 {
		players = []string{"ffplay", "mpv", "aplay"}
	}
	return &ExecLauncher{Players: players}
}

// Launch implements Launcher
func (l *ExecLauncher) Launch(path string) (Process, error) {
	player, err := l.findAudioPlayer(path)
	if err != nil {
		return nil, fmt.Errorf("no suitable audio player found: %w", err)
	}

	cmd := exec.Command(player, playerArgs(player, path)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return &execProcess{cmd: cmd}, nil
}

func (l *ExecLauncher) findAudioPlayer(path string) (string, error) {
	isWAV := strings.EqualFold(filepath.Ext(path), ".wav")
	for _, player := range l.Players {
		// aplay only works with WAV files
		if player == "aplay" && !isWAV {
			continue
		}
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(l.Players, ", "))
}

func playerArgs(player, path string) []string {
	switch filepath.Base(player) {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", path}
	case "mpv":
		return []string{"--no-video", "--really-quiet", path}
	case "vlc", "cvlc":
		return []string{"--intf", "dummy", "--play-and-exit", path}
	default:
		return []string{path}
	}
}

type execProcess struct {
	cmd      *exec.Cmd
	waitOnce sync.Once
	waitErr  error
}

func (p *execProcess) Pause() error {
	return p.cmd.Process.Signal(syscall.SIGSTOP)
}

func (p *execProcess) Resume() error {
	return p.cmd.Process.Signal(syscall.SIGCONT)
}

func (p *execProcess) Stop() error {
	// a stopped process must be continued before it can handle the kill
	p.cmd.Process.Signal(syscall.SIGCONT)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}
