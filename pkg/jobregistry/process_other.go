//go:build !unix && !windows

package jobregistry

import "errors"

func IsProcessAlive(pid int) bool { return false }

func SignalJob(pid int, force bool) error {
	return errors.New("stopping jobs is not supported on this platform")
}
