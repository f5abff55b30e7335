// Package daemon tracks a background web server through a PID file in the
// state directory.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNotRunning is returned when no live server owns the PID file.
var ErrNotRunning = errors.New("server is not running")

// AlreadyRunningError is returned by Acquire when a live process holds the file.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("server already running (pid %d)", e.PID)
}

// PIDFile records the process id of the running server.
type PIDFile struct {
	Path string
}

// NewPIDFile returns a PIDFile stored at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire claims the PID file for the current process. A file left behind by
// a dead process is taken over.
func (p *PIDFile) Acquire() error {
	if pid, ok := p.IsRunning(); ok && pid != os.Getpid() {
		return &AlreadyRunningError{PID: pid}
	}
	return p.WritePID(os.Getpid())
}

// Release removes the PID file if it still names the current process.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return p.Remove()
}

// WritePID writes pid to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read returns the pid stored in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file content %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Stop asks the server to shut down and waits up to timeout for it to exit,
// killing it afterwards. The PID file is removed once the process is gone.
func (p *PIDFile) Stop(timeout time.Duration) (int, error) {
	pid, ok := p.IsRunning()
	if !ok {
		_ = p.Remove()
		return 0, ErrNotRunning
	}

	if err := p.terminate(); err != nil {
		return pid, fmt.Errorf("stop pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, alive := p.IsRunning(); !alive {
			_ = p.Remove()
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := p.kill(); err != nil {
		return pid, fmt.Errorf("kill pid %d: %w", pid, err)
	}
	_ = p.Remove()
	return pid, nil
}
