// Package config loads the claude-watch user configuration from
// ~/.claude-watch/config.toml. A missing file yields defaults; a malformed
// file yields defaults plus an error the caller may surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// UserConfigFileName is the TOML config file for user preferences.
const UserConfigFileName = "config.toml"

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "CLAUDE_WATCH_CONFIG"

// Config represents user-facing configuration in TOML format.
type Config struct {
	// Claude defines Claude Code integration settings
	Claude ClaudeSettings `toml:"claude"`

	// Status defines status classification settings
	Status StatusSettings `toml:"status"`

	// History defines historical session settings
	History HistorySettings `toml:"history"`

	// Refresh defines refresh loop settings for watch mode
	Refresh RefreshSettings `toml:"refresh"`

	// Journal defines status-transition journal settings
	Journal JournalSettings `toml:"journal"`

	// Logs defines debug log settings
	Logs LogSettings `toml:"logs"`
}

// ClaudeSettings defines how Claude Code is located and invoked.
type ClaudeSettings struct {
	// ConfigDir is the Claude config directory. CLAUDE_CONFIG_DIR wins.
	// Default: ~/.claude
	ConfigDir string `toml:"config_dir"`

	// Command is the claude binary or alias used for resume
	Command string `toml:"command"`

	// ProcessName is the executable name matched in the process table
	ProcessName string `toml:"process_name"`
}

// StatusSettings tunes status classification.
type StatusSettings struct {
	// QuietThresholdSecs is the minimum silence before a session counts
	// as Idle rather than Waiting
	QuietThresholdSecs int `toml:"quiet_threshold_secs"`

	// TailBytes bounds how much of a session log is read per refresh
	TailBytes int `toml:"tail_bytes"`
}

// HistorySettings bounds the historical session view.
type HistorySettings struct {
	// Limit is the number of most-recent historical entries shown
	Limit int `toml:"limit"`
}

// RefreshSettings controls watch-mode refresh cadence.
type RefreshSettings struct {
	// IntervalSecs is the periodic refresh interval
	IntervalSecs int `toml:"interval_secs"`
}

// JournalSettings controls the transition journal.
type JournalSettings struct {
	Enabled bool `toml:"enabled"`

	// Path overrides the journal location (default ~/.claude-watch/journal.db)
	Path string `toml:"path"`
}

// LogSettings controls debug logging.
type LogSettings struct {
	// Dir is the log directory (default ~/.claude-watch when debug is on)
	Dir string `toml:"dir"`

	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Claude: ClaudeSettings{
			Command:     "claude",
			ProcessName: "claude",
		},
		Status: StatusSettings{
			QuietThresholdSecs: 3,
			TailBytes:          64 * 1024,
		},
		History: HistorySettings{Limit: 20},
		Refresh: RefreshSettings{IntervalSecs: 2},
		Journal: JournalSettings{Enabled: true},
		Logs:    LogSettings{Level: "info"},
	}
}

// BaseDir returns the claude-watch data directory (~/.claude-watch).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, ".claude-watch"), nil
}

// Path returns the config file location, honoring CLAUDE_WATCH_CONFIG.
func Path() (string, error) {
	if env := os.Getenv(EnvConfigPath); env != "" {
		return ExpandTilde(env), nil
	}
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// Load reads the config file, applying defaults for missing values.
// A missing file is not an error. A malformed file returns defaults
// alongside the parse error so the caller can warn and keep going.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a specific config file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults backfills zero values that would break the read path.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Claude.Command == "" {
		cfg.Claude.Command = def.Claude.Command
	}
	if cfg.Claude.ProcessName == "" {
		cfg.Claude.ProcessName = def.Claude.ProcessName
	}
	if cfg.Status.QuietThresholdSecs <= 0 {
		cfg.Status.QuietThresholdSecs = def.Status.QuietThresholdSecs
	}
	if cfg.Status.TailBytes <= 0 {
		cfg.Status.TailBytes = def.Status.TailBytes
	}
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = def.History.Limit
	}
	if cfg.Refresh.IntervalSecs <= 0 {
		cfg.Refresh.IntervalSecs = def.Refresh.IntervalSecs
	}
	if cfg.Logs.Level == "" {
		cfg.Logs.Level = def.Logs.Level
	}
}

// ClaudeConfigDir returns the Claude config directory.
// Priority: CLAUDE_CONFIG_DIR env var, [claude].config_dir, ~/.claude.
func (c *Config) ClaudeConfigDir() string {
	if envDir := os.Getenv("CLAUDE_CONFIG_DIR"); envDir != "" {
		return ExpandTilde(envDir)
	}
	if c.Claude.ConfigDir != "" {
		return ExpandTilde(c.Claude.ConfigDir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude")
}

// ProjectsDir returns the Claude per-project log root.
func (c *Config) ProjectsDir() string {
	return filepath.Join(c.ClaudeConfigDir(), "projects")
}

// QuietThreshold returns the quiet threshold as a duration.
func (c *Config) QuietThreshold() time.Duration {
	return time.Duration(c.Status.QuietThresholdSecs) * time.Second
}

// RefreshInterval returns the watch-mode refresh interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSecs) * time.Second
}

// JournalPath returns the transition journal location.
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return ExpandTilde(c.Journal.Path), nil
	}
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// ExpandTilde expands a leading ~/ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
