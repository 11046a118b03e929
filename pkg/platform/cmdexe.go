package platform

import "strings"

// Windows targets cmd.exe.
type Windows struct{}

var _ Platform = Windows{}

func (Windows) Name() string { return NameWindows }

// Quote wraps path in double quotes and doubles embedded quotes. Backslashes
// are path separators on Windows and are left alone.
func (Windows) Quote(path string) string {
	return `"` + strings.ReplaceAll(path, `"`, `""`) + `"`
}

func (Windows) LineEnding() string { return "\r\n" }

func (Windows) ScriptExt() string { return ".bat" }

func (Windows) ScriptHeader() []string { return []string{"@echo off"} }

// Echo does not quote msg: cmd.exe prints quotes literally.
func (Windows) Echo(msg string) string { return "echo " + msg }

func (w Windows) Redirect(commandLine, logPath string) string {
	return commandLine + " > " + w.Quote(logPath) + " 2>&1"
}

// UsesLauncherScript is true: composing nested quotes inline for cmd /C is
// unreliable, so every command goes through a generated .bat file.
func (Windows) UsesLauncherScript() bool { return true }

func (w Windows) Shell(commandLine string) (string, []string) {
	return "cmd.exe", []string{"/C", commandLine}
}
