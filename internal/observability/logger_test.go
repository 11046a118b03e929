package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		profile string
		want    zapcore.Level
		wantErr bool
	}{
		{"structured info", "info", ProfileStructured, zapcore.InfoLevel, false},
		{"console debug", "debug", ProfileConsole, zapcore.DebugLevel, false},
		{"empty profile", "warn", "", zapcore.WarnLevel, false},
		{"case insensitive", " ERROR ", "Console", zapcore.ErrorLevel, false},
		{"bad level", "loud", ProfileConsole, 0, true},
		{"bad profile", "info", "xml", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.level, tt.profile)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("test", false)
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("test", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	SetCLILogger(nil)
	assert.NotNil(t, CLILogger)
	assert.Equal(t, zap.NewNop().Core().Enabled(zapcore.ErrorLevel), CLILogger.Core().Enabled(zapcore.ErrorLevel))
}
