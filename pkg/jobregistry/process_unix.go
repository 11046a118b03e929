//go:build unix

package jobregistry

import (
	"errors"
	"syscall"
)

// IsProcessAlive reports whether pid exists. Signal 0 checks existence
// without delivering anything.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// SignalJob signals the job's whole process group. Jobs are launched as
// session leaders, so the group id equals the recorded pid and the tagger
// children receive the signal too.
func SignalJob(pid int, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		// Fall back to the leader alone if it is not a group leader.
		if errors.Is(err, syscall.ESRCH) {
			return syscall.Kill(pid, sig)
		}
		return err
	}
	return nil
}
