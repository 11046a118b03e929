//go:build !unix && !windows

package launcher

import "os/exec"

func detach(_ *exec.Cmd, _ string, _ []string) {}
