package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/taglaunch/internal/config"
	"github.com/3leaps/taglaunch/internal/observability"
)

// versionInfo is set by main via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile    string
	verbose    bool
	logProfile string

	// appConfig is loaded once per invocation by the root pre-run hook.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "taglaunch",
	Short: "Launch and monitor racing photo tagger jobs",
	Long: `taglaunch starts the racing photo tagger as a detached background job
and reports when it has finished.

The tagger's process is never awaited. Completion is detected by polling
the signal file the tagger rewrites after each invocation, and is only
reported once the sequence counter has stayed at the expected value for a
stability window.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/taglaunch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logProfile, "log-profile", "", "Log profile: console or structured")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signalContext(context.Background())
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	code := ExitWithCode(err)
	if err != nil && !isOutcomeError(err) {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	}
	_ = observability.CLILogger.Sync()
	return code
}

func initRuntime(cmd *cobra.Command, _ []string) error {
	config.SetConfigFile(cfgFile)

	overrides := map[string]any{}
	logging := map[string]any{}
	if verbose {
		logging["level"] = "debug"
	}
	if logProfile != "" {
		logging["profile"] = logProfile
	}
	if len(logging) > 0 {
		overrides["logging"] = logging
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(ExitUsage, "Failed to load configuration", err)
	}
	appConfig = cfg

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(ExitUsage, "Failed to initialize logging", err)
	}
	observability.SetCLILogger(logger.Named("taglaunch"))

	if used := config.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Loaded config file", zap.String("path", used))
	}
	return nil
}
