package platform

import "strings"

// POSIX targets /bin/sh compatible shells.
type POSIX struct{}

var _ Platform = POSIX{}

func (POSIX) Name() string { return NamePOSIX }

// Quote wraps path in double quotes. Backslashes are escaped before double
// quotes so the escapes added for quotes are not doubled.
func (POSIX) Quote(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

func (POSIX) LineEnding() string { return "\n" }

func (POSIX) ScriptExt() string { return ".sh" }

func (POSIX) ScriptHeader() []string { return []string{"#!/bin/bash"} }

func (p POSIX) Echo(msg string) string { return "echo " + p.Quote(msg) }

func (p POSIX) Redirect(commandLine, logPath string) string {
	return commandLine + " > " + p.Quote(logPath) + " 2>&1"
}

func (POSIX) UsesLauncherScript() bool { return false }

func (POSIX) Shell(commandLine string) (string, []string) {
	return "/bin/sh", []string{"-c", commandLine}
}
