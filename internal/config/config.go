// Package config loads and validates supsrc's configuration document.
// The document is a TOML file mirroring the global/circuit-breaker/
// repositories hierarchy described by the daemon's external interface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath is the environment variable that selects the config file
// when the --config-path flag is not supplied.
const EnvConfigPath = "SUPSRC_CONF"

// Config is the root configuration document for the daemon.
type Config struct {
	Global       GlobalConfig            `toml:"global"`
	Repositories map[string]RepoSettings `toml:"repositories"`
}

// GlobalConfig holds process-wide tuning values.
type GlobalConfig struct {
	LogLevel                  string        `toml:"log_level"`
	EventBufferingEnabled     bool          `toml:"event_buffering_enabled"`
	EventBufferWindowMS       int           `toml:"event_buffer_window_ms"`
	EventGroupingModeTUI      string        `toml:"event_grouping_mode_tui"`      // off, simple, smart
	EventGroupingModeHeadless string        `toml:"event_grouping_mode_headless"` // off, simple, smart
	LargeFileThresholdBytes   int64         `toml:"large_file_threshold_bytes"`
	LastChangeThresholdHours  float64       `toml:"last_change_threshold_hours"`
	CircuitBreaker            BreakerConfig `toml:"circuit_breaker"`

	// ExtraIgnoreGlobs are doublestar patterns (relative to a repository
	// root, e.g. "**/*.generated.go") consulted by the watcher in
	// addition to .gitignore, for noise .gitignore doesn't name.
	ExtraIgnoreGlobs []string `toml:"extra_ignore_globs"`

	// RepoDiscoveryGlobs are doublestar patterns (e.g.
	// "~/code/*/.git") expanded at startup and on every hot reload to
	// auto-register working trees the document doesn't name explicitly.
	// A discovered path already present under `repositories` (by path)
	// is left alone; otherwise it's added with the manual rule so it
	// only ever autosaves on an explicit trigger until an operator
	// opts it into a real rule.
	RepoDiscoveryGlobs []string `toml:"repo_discovery_globs"`
}

// BreakerConfig configures the circuit breaker's three detectors.
type BreakerConfig struct {
	BulkChangeThreshold           int  `toml:"bulk_change_threshold"` // 0 disables
	BulkChangeWindowMS            int  `toml:"bulk_change_window_ms"`
	BulkChangeAutoPause           bool `toml:"bulk_change_auto_pause"`
	BranchChangeDetectionEnabled  bool `toml:"branch_change_detection_enabled"`
	BranchChangeWarningEnabled    bool `toml:"branch_change_warning_enabled"`
	BranchWithBulkChangeError     bool `toml:"branch_with_bulk_change_error"`
	BranchWithBulkChangeThreshold int  `toml:"branch_with_bulk_change_threshold"`
	AutoResumeAfterBulkPauseSecs  int  `toml:"auto_resume_after_bulk_pause_seconds"` // 0 disables
	RequireManualAcknowledgment   bool `toml:"require_manual_acknowledgment"`
}

// RepoSettings is the immutable per-repository configuration section,
// `repositories.<repo_id>` in the document.
type RepoSettings struct {
	Path       string         `toml:"path"`
	Enabled    bool           `toml:"enabled"`
	Rule       RuleSettings   `toml:"rule"`
	Repository EngineSettings `toml:"repository"`
	LLM        *LLMSettings   `toml:"llm"`
}

// RuleSettings is the tagged-variant rule configuration as written in
// TOML: `type` selects which of `period`/`count` applies.
type RuleSettings struct {
	Type   string `toml:"type"` // inactivity, save_count, manual
	Period string `toml:"period"`
	Count  uint   `toml:"count"`
}

// PeriodDuration parses the rule's duration literal (e.g. "30s").
func (r RuleSettings) PeriodDuration() (time.Duration, error) {
	if r.Period == "" {
		return 0, fmt.Errorf("rule type %q requires a period", r.Type)
	}
	d, err := time.ParseDuration(r.Period)
	if err != nil {
		return 0, fmt.Errorf("parsing rule period %q: %w", r.Period, err)
	}
	return d, nil
}

// EngineSettings configures the Git engine for one repository.
type EngineSettings struct {
	Type                  string `toml:"type"` // "git"
	AutoPush              bool   `toml:"auto_push"`
	Branch                string `toml:"branch"`
	CommitMessageTemplate string `toml:"commit_message_template"`
	Remote                string `toml:"remote"`
}

// LLMSettings configures the optional LLM/test-runner hook.
type LLMSettings struct {
	Enabled               bool   `toml:"enabled"`
	Provider              string `toml:"provider"`
	ReviewChanges         bool   `toml:"review_changes"`
	GenerateCommitMessage bool   `toml:"generate_commit_message"`
	RunTests              bool   `toml:"run_tests"`
	TestCommand           string `toml:"test_command"`
	TestTimeoutSeconds    int    `toml:"test_timeout_seconds"`
}

// ResolveConfigPath applies the documented precedence: an explicit flag
// value wins, otherwise SUPSRC_CONF, otherwise the default user location.
func ResolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".config", "supsrc", "config.toml"), nil
}

// Load reads and decodes the config file at path. The returned Config is
// not validated - call Validate() separately so callers can choose how to
// react to semantic errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form, creating parent directories as
// needed. Used by tests fixturing a config on disk.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encoding config to TOML: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory. Paths that
// don't start with ~ are returned unchanged.
func ExpandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
