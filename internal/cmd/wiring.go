package cmd

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/internal/config"
	"github.com/3leaps/taglaunch/internal/observability"
	"github.com/3leaps/taglaunch/pkg/command"
	"github.com/3leaps/taglaunch/pkg/jobregistry"
	"github.com/3leaps/taglaunch/pkg/launcher"
	"github.com/3leaps/taglaunch/pkg/monitor"
	"github.com/3leaps/taglaunch/pkg/paths"
	"github.com/3leaps/taglaunch/pkg/platform"
)

// currentConfig returns the config loaded by the root pre-run hook, loading
// defaults when a command runs without it (as in tests).
func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		observability.CLILogger.Warn("Falling back to built-in defaults", zap.Error(err))
		return &config.Config{
			Tagger:  config.TaggerConfig{Python: "python3"},
			Monitor: config.MonitorConfig{},
			Logging: config.LoggingConfig{Level: "info", Profile: observability.ProfileConsole},
		}
	}
	appConfig = cfg
	return cfg
}

func jobsRootDir() string {
	if dir := strings.TrimSpace(currentConfig().Jobs.Dir); dir != "" {
		return dir
	}
	return paths.JobsDir()
}

func jobStore() *jobregistry.Store {
	return jobregistry.NewStore(jobsRootDir())
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		PollInterval:        cfg.Monitor.PollInterval,
		MaxWait:             cfg.Monitor.MaxWait,
		StabilityWindow:     cfg.Monitor.StabilityWindow,
		ProgressLogInterval: cfg.Monitor.ProgressLogInterval,
		SettleDelay:         cfg.Monitor.SettleDelay,
	}
}

// newBuilder returns the command builder for the configured tagger.
func newBuilder(cfg *config.Config) (*command.Builder, error) {
	p, err := platform.ByName(cfg.Tagger.Platform)
	if err != nil {
		return nil, err
	}
	return command.NewBuilder(p, command.Config{
		Executable: cfg.Tagger.Python,
		Script:     cfg.Tagger.Script,
	}, observability.CLILogger), nil
}

// newExecutor wires the registry, builder, and launcher together.
func newExecutor(cfg *config.Config) (*jobregistry.Executor, error) {
	b, err := newBuilder(cfg)
	if err != nil {
		return nil, err
	}
	l := launcher.New(b.Platform(), observability.CLILogger)
	return jobregistry.NewExecutor(jobStore(), b, l, jobregistry.ExecutorConfig{}, observability.CLILogger), nil
}

// watchJob monitors rec until it finishes, times out, or ctx is done, and
// records the outcome.
func watchJob(ctx context.Context, exec *jobregistry.Executor, rec *jobregistry.JobRecord, mcfg monitor.Config, opts ...monitor.Option) (monitor.Outcome, error) {
	m, err := exec.Monitor(rec, mcfg, observability.CLILogger, opts...)
	if err != nil {
		return monitor.Outcome{}, err
	}

	stopHeartbeat := exec.Heartbeat(ctx, rec, currentConfig().Monitor.HeartbeatInterval)
	out := <-m.Start(ctx)
	stopHeartbeat()

	if err := exec.Finish(rec, out); err != nil {
		observability.CLILogger.Warn("Failed to record job outcome", zap.String("job_id", rec.JobID), zap.Error(err))
	}
	return out, nil
}
