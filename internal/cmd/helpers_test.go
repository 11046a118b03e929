package cmd

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/3leaps/taglaunch/internal/config"
)

// useTestConfig installs a fast config with an isolated job registry and
// restores the previous one when the test ends.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := appConfig
	cfg := &config.Config{
		Tagger: config.TaggerConfig{Python: "python3", Platform: "posix"},
		Monitor: config.MonitorConfig{
			PollInterval:        20 * time.Millisecond,
			MaxWait:             10 * time.Second,
			StabilityWindow:     60 * time.Millisecond,
			ProgressLogInterval: time.Second,
			SettleDelay:         -1,
		},
		Logging: config.LoggingConfig{Level: "info", Profile: "console"},
		Jobs:    config.JobsConfig{Dir: t.TempDir()},
	}
	appConfig = cfg
	t.Cleanup(func() { appConfig = prev })
	return cfg
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling
// test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
