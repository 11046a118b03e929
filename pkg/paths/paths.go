// Package paths holds the well-known file locations shared by the launcher,
// the completion monitor, and the external tagger job.
//
// The signal and log files live at fixed names under the platform temporary
// directory. The tagger resolves the same names on its side, so these are
// part of the on-disk contract and must not be made caller-configurable.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Fixed file names under TempDir.
const (
	SignalFileName   = "racing_tagger_output.complete"
	LogFileName      = "racing_tagger_output.log"
	BatchScriptBase  = "racing_tagger_batch"
	LauncherBase     = "racing_tagger_launch"
	LockFileName     = "taglaunch.lock"
	ResultsExtension = ".results.json"
)

// TempDir returns the directory the well-known files live in.
func TempDir() string {
	return os.TempDir()
}

// SignalPath is the completion-signal file written by the tagger.
func SignalPath() string {
	return filepath.Join(TempDir(), SignalFileName)
}

// LogPath is the job output log.
func LogPath() string {
	return filepath.Join(TempDir(), LogFileName)
}

// ResultsPath is the per-image results file the tagger writes next to its
// log file.
func ResultsPath(logPath string) string {
	ext := filepath.Ext(logPath)
	return logPath[:len(logPath)-len(ext)] + ResultsExtension
}

// BatchScriptPath returns the generated batch script for the given
// extension (".sh" or ".bat").
func BatchScriptPath(ext string) string {
	return filepath.Join(TempDir(), BatchScriptBase+ext)
}

// LauncherScriptPath returns the generated launcher script (Windows only).
func LauncherScriptPath() string {
	return filepath.Join(TempDir(), LauncherBase+".bat")
}

// LockPath is the machine-wide lock serializing launches.
func LockPath() string {
	return filepath.Join(TempDir(), LockFileName)
}

// DataDir returns the data directory for persistent job records.
// Order: XDG_DATA_HOME/taglaunch, platform-specific fallback.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "taglaunch")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("LocalAppData"); appData != "" {
			return filepath.Join(appData, "taglaunch")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taglaunch")
}

// JobsDir returns the default job registry root.
func JobsDir() string {
	return filepath.Join(DataDir(), "jobs")
}
