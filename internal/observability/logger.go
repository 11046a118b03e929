// Package observability owns the process-wide loggers.
//
// Library packages never reach for these globals; they take a *zap.Logger
// at construction. The CLI layer wires CLILogger into them.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileStructured = "structured"
	ProfileConsole    = "console"
)

// CLILogger is the logger used by CLI commands. It is a no-op until
// InitCLILogger or SetCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger installs a human-readable stderr logger named name. verbose
// lowers the level to debug.
func InitCLILogger(name string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	l, err := NewLogger(level, ProfileConsole)
	if err != nil {
		l = zap.NewNop()
	}
	SetCLILogger(l.Named(name))
}

// SetCLILogger replaces CLILogger, flushing the previous one.
func SetCLILogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	_ = CLILogger.Sync()
	CLILogger = l
}

// NewLogger builds a stderr logger.
//
// The structured profile emits JSON lines with ISO-8601 timestamps; the
// console profile emits colored, aligned text for terminals.
func NewLogger(level, profile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", ProfileStructured:
		enc = zapcore.NewJSONEncoder(encCfg)
	case ProfileConsole:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encCfg.CallerKey = zapcore.OmitKey
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log profile %q (expected %s or %s)", profile, ProfileStructured, ProfileConsole)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core), nil
}
