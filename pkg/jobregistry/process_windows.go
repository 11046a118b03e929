//go:build windows

package jobregistry

import "os"

// IsProcessAlive reports whether pid exists. FindProcess opens a handle on
// Windows and fails for processes that are gone.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// SignalJob terminates the job's shell. Windows has no graceful signal for
// a detached console process, so force is implied.
func SignalJob(pid int, _ bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
