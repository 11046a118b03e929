package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Identity names the application for config discovery and env binding.
type Identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity returns taglaunch's identity.
func DefaultIdentity() *Identity {
	return &Identity{
		BinaryName: "taglaunch",
		EnvPrefix:  "TAGLAUNCH_",
		ConfigName: "config",
	}
}

// EnvSpec binds one environment variable to a config key path.
type EnvSpec struct {
	Name string
	Path string
}

// envSuffixes maps env var suffixes (after the prefix) to config keys.
var envSuffixes = map[string]string{
	"PYTHON":                "tagger.python",
	"TAGGER_SCRIPT":         "tagger.script",
	"PLATFORM":              "tagger.platform",
	"POLL_INTERVAL":         "monitor.poll_interval",
	"MAX_WAIT":              "monitor.max_wait",
	"STABILITY_WINDOW":      "monitor.stability_window",
	"PROGRESS_LOG_INTERVAL": "monitor.progress_log_interval",
	"SETTLE_DELAY":          "monitor.settle_delay",
	"HEARTBEAT_INTERVAL":    "monitor.heartbeat_interval",
	"LOG_LEVEL":             "logging.level",
	"LOG_PROFILE":           "logging.profile",
	"JOBS_DIR":              "jobs.dir",
}

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
	configFile  string
	usedFile    string

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// SetConfigFile selects an explicit config file for subsequent loads. An
// empty path restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// ConfigFileUsed returns the file the last Load read, if any.
func ConfigFileUsed() string {
	configMu.RLock()
	defer configMu.RUnlock()
	return usedFile
}

// Load builds the configuration. Each override map is applied on top of
// everything else, in order; nested maps address nested keys.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		appIdentity = DefaultIdentity()
	}

	v := viper.New()
	setDefaults(v)

	file, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	appConfig = &cfg
	usedFile = file
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate checks field constraints and reports every violation.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToLower(strings.TrimSpace(cfg.Logging.Profile))
	cfg.Tagger.Platform = strings.ToLower(strings.TrimSpace(cfg.Tagger.Platform))
	cfg.Tagger.Python = strings.TrimSpace(cfg.Tagger.Python)
	cfg.Tagger.Script = strings.TrimSpace(cfg.Tagger.Script)
	cfg.Jobs.Dir = strings.TrimSpace(cfg.Jobs.Dir)
}

func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}

// resolveConfigFile returns the explicit file, else the first existing
// user config file, else "".
func resolveConfigFile() (string, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return configFile, nil
	}
	for _, p := range getUserConfigPaths() {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// getUserConfigPaths lists candidate config files in search order.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}

	var dirs []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, appIdentity.BinaryName))
	}
	if ucd, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(ucd, appIdentity.BinaryName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", appIdentity.BinaryName))
	}

	seen := make(map[string]bool)
	paths := make([]string, 0, len(dirs)*2)
	for _, d := range dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			p := filepath.Join(d, appIdentity.ConfigName+ext)
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// getEnvSpecs lists env bindings, sorted by name.
func getEnvSpecs() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	specs := make([]EnvSpec, 0, len(envSuffixes))
	for suffix, path := range envSuffixes {
		specs = append(specs, EnvSpec{Name: appIdentity.EnvPrefix + suffix, Path: path})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}
