// Package command assembles the command line, and when needed the script
// files, that start the external tagger job.
//
// The tagger is invoked once per target:
//
//	<python> <racing_tagger.py> <target> --verbose [--dry-run] [--resume] --log-file <log>
//
// A single target becomes one command line with output redirected to the
// log file. Several targets become a generated batch script with one such
// line per target. On Windows every command is additionally wrapped in a
// small launcher script so cmd.exe never sees nested quotes.
package command

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/pkg/paths"
	"github.com/3leaps/taglaunch/pkg/platform"
)

// Flags emitted to the tagger, in contract order.
const (
	FlagVerbose = "--verbose"
	FlagDryRun  = "--dry-run"
	FlagResume  = "--resume"
	FlagLogFile = "--log-file"
)

// Echo messages bracketing a batch script.
const (
	batchStartMessage = "Starting racing tagger batch"
	batchDoneMessage  = "Racing tagger batch complete"
)

// Mode distinguishes single-target launches from generated batches.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

// LaunchDescriptor is everything the launcher needs to spawn a job.
type LaunchDescriptor struct {
	Platform string `json:"platform"`
	Mode     Mode   `json:"mode"`

	// Executable is the interpreter that runs the tagger script.
	Executable string `json:"executable"`

	// Script is the tagger entry point.
	Script string `json:"script"`

	// Args is the quoted argument string for a single-target launch.
	Args string `json:"args,omitempty"`

	// BatchScript is the generated per-target script (batch mode only).
	BatchScript string `json:"batch_script,omitempty"`

	// LauncherScript is the generated indirection script (Windows only).
	LauncherScript string `json:"launcher_script,omitempty"`

	// LogPath receives the job's stdout and stderr.
	LogPath string `json:"log_path"`

	// CommandLine is handed to the platform shell as-is.
	CommandLine string `json:"command_line"`

	// Invocations are the per-target tagger lines, in order.
	Invocations []string `json:"invocations"`
}

// Config configures a Builder.
type Config struct {
	// Executable is the interpreter (e.g., python3). Required.
	Executable string

	// Script is the path to racing_tagger.py. Required.
	Script string

	// LogPath defaults to paths.LogPath().
	LogPath string

	// BatchScriptPath defaults to paths.BatchScriptPath(platform ext).
	BatchScriptPath string

	// LauncherScriptPath defaults to paths.LauncherScriptPath().
	LauncherScriptPath string
}

// Builder turns a JobSpec into a LaunchDescriptor for one platform.
type Builder struct {
	platform platform.Platform
	cfg      Config
	logger   *zap.Logger
}

// NewBuilder creates a Builder. A nil logger disables logging.
func NewBuilder(p platform.Platform, cfg Config, logger *zap.Logger) *Builder {
	if p == nil {
		p = platform.Current()
	}
	if cfg.LogPath == "" {
		cfg.LogPath = paths.LogPath()
	}
	if cfg.BatchScriptPath == "" {
		cfg.BatchScriptPath = paths.BatchScriptPath(p.ScriptExt())
	}
	if cfg.LauncherScriptPath == "" {
		cfg.LauncherScriptPath = paths.LauncherScriptPath()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{platform: p, cfg: cfg, logger: logger}
}

// Platform returns the platform the builder targets.
func (b *Builder) Platform() platform.Platform {
	return b.platform
}

// Args returns the quoted tagger arguments for one target.
func (b *Builder) Args(target string, spec JobSpec) string {
	parts := []string{b.platform.Quote(target), FlagVerbose}
	if spec.DryRun {
		parts = append(parts, FlagDryRun)
	}
	if spec.Resume {
		parts = append(parts, FlagResume)
	}
	parts = append(parts, FlagLogFile, b.platform.Quote(b.cfg.LogPath))
	return strings.Join(parts, " ")
}

// Invocation returns the complete tagger command for one target.
func (b *Builder) Invocation(target string, spec JobSpec) string {
	return b.platform.Quote(b.cfg.Executable) + " " + b.platform.Quote(b.cfg.Script) + " " + b.Args(target, spec)
}

// Build validates spec and produces a LaunchDescriptor, writing any script
// files it needs. On error no usable descriptor is returned and the caller
// must not assume a job was started.
func (b *Builder) Build(spec JobSpec) (*LaunchDescriptor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(b.cfg.Executable) == "" || strings.TrimSpace(b.cfg.Script) == "" {
		return nil, ErrNoExecutable
	}

	desc := &LaunchDescriptor{
		Platform:    b.platform.Name(),
		Mode:        ModeSingle,
		Executable:  b.cfg.Executable,
		Script:      b.cfg.Script,
		LogPath:     b.cfg.LogPath,
		Invocations: make([]string, 0, len(spec.Targets)),
	}
	for _, target := range spec.Targets {
		desc.Invocations = append(desc.Invocations, b.Invocation(target, spec))
	}

	var commandLine string
	if spec.IsBatch() {
		desc.Mode = ModeBatch
		desc.BatchScript = b.cfg.BatchScriptPath
		if err := b.writeScript(desc.BatchScript, b.batchLines(desc.Invocations)); err != nil {
			return nil, err
		}
		commandLine = b.platform.Quote(desc.BatchScript)
		if b.platform.UsesLauncherScript() {
			commandLine = "call " + commandLine
		}
	} else {
		desc.Args = b.Args(spec.Targets[0], spec)
		commandLine = desc.Invocations[0]
	}
	commandLine = b.platform.Redirect(commandLine, desc.LogPath)

	if b.platform.UsesLauncherScript() {
		desc.LauncherScript = b.cfg.LauncherScriptPath
		lines := append(b.platform.ScriptHeader(), commandLine)
		if err := b.writeScript(desc.LauncherScript, lines); err != nil {
			return nil, err
		}
		commandLine = b.platform.Quote(desc.LauncherScript)
	}
	desc.CommandLine = commandLine

	b.logger.Debug("Built launch descriptor",
		zap.String("platform", desc.Platform),
		zap.String("mode", string(desc.Mode)),
		zap.Int("targets", len(spec.Targets)),
		zap.String("command_line", desc.CommandLine))

	return desc, nil
}

func (b *Builder) batchLines(invocations []string) []string {
	lines := append([]string(nil), b.platform.ScriptHeader()...)
	lines = append(lines, b.platform.Echo(fmt.Sprintf("%s: %d targets", batchStartMessage, len(invocations))))
	lines = append(lines, invocations...)
	lines = append(lines, b.platform.Echo(batchDoneMessage))
	return lines
}

// writeScript writes lines with platform line endings. POSIX scripts are
// made executable before they can be invoked.
func (b *Builder) writeScript(path string, lines []string) error {
	le := b.platform.LineEnding()
	body := strings.Join(lines, le) + le

	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return &ConstructionError{Op: "write script", Path: path, Err: err}
	}
	if b.platform.Name() == platform.NamePOSIX {
		if err := os.Chmod(path, 0755); err != nil {
			return &ConstructionError{Op: "chmod script", Path: path, Err: err}
		}
	}
	return nil
}
