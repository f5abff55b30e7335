//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// IsRunning reports the pid in the file and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	return pid, proc.Signal(syscall.Signal(0)) == nil
}

// Windows has no SIGTERM delivery; both stop paths kill the process.
func (p *PIDFile) terminate() error { return p.kill() }

func (p *PIDFile) kill() error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
