//go:build unix

package launcher

import (
	"os/exec"
	"syscall"
)

// detach starts the job in its own session so it survives the launcher
// exiting or its terminal closing.
func detach(cmd *exec.Cmd, _ string, _ []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
