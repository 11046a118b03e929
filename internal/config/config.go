// Package config loads taglaunch configuration.
//
// Precedence, highest first: runtime overrides (CLI flags), environment
// variables (TAGLAUNCH_*), the config file, then defaults.
package config

import (
	"runtime"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Tagger  TaggerConfig  `mapstructure:"tagger"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
}

// TaggerConfig locates the external tagger.
type TaggerConfig struct {
	// Python is the interpreter that runs the tagger script.
	Python string `mapstructure:"python" validate:"required"`

	// Script is the tagger entry point (racing_tagger.py). Required to
	// launch, optional for job inspection commands.
	Script string `mapstructure:"script"`

	// Platform overrides shell conventions: posix or windows. Empty means
	// the running OS.
	Platform string `mapstructure:"platform" validate:"omitempty,oneof=posix windows"`
}

// MonitorConfig tunes completion detection.
type MonitorConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxWait             time.Duration `mapstructure:"max_wait" validate:"gtfield=PollInterval"`
	StabilityWindow     time.Duration `mapstructure:"stability_window" validate:"gt=0"`
	ProgressLogInterval time.Duration `mapstructure:"progress_log_interval" validate:"gt=0"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval" validate:"gte=0"`
}

// LoggingConfig selects the log level and output profile.
type LoggingConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Profile string `mapstructure:"profile" validate:"oneof=structured console"`
}

// JobsConfig locates the job registry.
type JobsConfig struct {
	// Dir holds job records. Empty means <data dir>/jobs.
	Dir string `mapstructure:"dir"`
}

// Defaults are the values used when nothing else sets a key.
var Defaults = map[string]any{
	"tagger.python":                 defaultPython(),
	"tagger.script":                 "",
	"tagger.platform":               "",
	"monitor.poll_interval":         "5s",
	"monitor.max_wait":              "4h",
	"monitor.stability_window":      "45s",
	"monitor.progress_log_interval": "60s",
	"monitor.settle_delay":          "2s",
	"monitor.heartbeat_interval":    "30s",
	"logging.level":                 "info",
	"logging.profile":               "console",
	"jobs.dir":                      "",
}

func defaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}
