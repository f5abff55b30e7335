//go:build !windows

package daemon

import "syscall"

// IsRunning reports the pid in the file and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	// Signal 0 only checks for existence.
	return pid, syscall.Kill(pid, 0) == nil
}

func (p *PIDFile) terminate() error { return p.signal(syscall.SIGTERM) }

func (p *PIDFile) kill() error { return p.signal(syscall.SIGKILL) }

func (p *PIDFile) signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	return syscall.Kill(pid, sig)
}
