// Package platform isolates the shell conventions that differ between
// POSIX systems and Windows.
//
// A Platform is injected into the command builder and the job launcher so
// neither has to branch on runtime.GOOS itself. Both implementations are
// pure string rules and compile on every OS; only the process attributes
// used by the launcher are OS-specific.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform names.
const (
	NamePOSIX   = "posix"
	NameWindows = "windows"
)

// Platform describes how to quote paths, write scripts, and invoke the
// shell on one family of operating systems.
type Platform interface {
	// Name returns NamePOSIX or NameWindows.
	Name() string

	// Quote wraps a raw filesystem path so it survives the platform shell
	// as a single argument.
	Quote(path string) string

	// LineEnding is the line terminator used in generated scripts.
	LineEnding() string

	// ScriptExt is the file extension for generated scripts (".sh", ".bat").
	ScriptExt() string

	// ScriptHeader returns the leading lines of a generated script.
	ScriptHeader() []string

	// Echo returns a script line that prints msg.
	Echo(msg string) string

	// Redirect appends stdout/stderr redirection to the log file.
	Redirect(commandLine, logPath string) string

	// UsesLauncherScript reports whether even single commands must be
	// written to a launcher script before being spawned.
	UsesLauncherScript() bool

	// Shell returns the program and arguments that execute commandLine.
	Shell(commandLine string) (string, []string)
}

// Current returns the Platform for the running operating system.
func Current() Platform {
	if runtime.GOOS == "windows" {
		return Windows{}
	}
	return POSIX{}
}

// ByName resolves a platform name. An empty name selects Current.
func ByName(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return Current(), nil
	case NamePOSIX, "unix", "linux", "darwin":
		return POSIX{}, nil
	case NameWindows, "win":
		return Windows{}, nil
	default:
		return nil, fmt.Errorf("unknown platform %q (expected posix or windows)", name)
	}
}
