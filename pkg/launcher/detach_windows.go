//go:build windows

package launcher

import (
	"os/exec"
	"strings"
	"syscall"
)

// DETACHED_PROCESS is not exported by package syscall.
const detachedProcess = 0x00000008

// detach spawns the job without a console and outside the caller's process
// group. CmdLine is passed verbatim so the already-quoted launcher path is
// not re-escaped.
func detach(cmd *exec.Cmd, name string, args []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
		CmdLine:       name + " " + strings.Join(args, " "),
	}
}
