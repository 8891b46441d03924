// Package config loads muxpilot's user configuration from
// ~/.muxpilot/config.toml. A missing file yields defaults; a malformed
// file is an error surfaced to the caller.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file inside the muxpilot directory.
const FileName = "config.toml"

// Config is the user-facing configuration.
type Config struct {
	// Agent is the command name of the supervised CLI agent, matched
	// against process trees and pane foreground commands.
	// Default: "claude"
	Agent string `toml:"agent"`

	// Mode scopes which matchers are eligible: "act", "plan", or "all".
	// Default: "act"
	Mode string `toml:"mode"`

	// SocketPath overrides the tmux server socket (-S). Empty uses the
	// default server.
	SocketPath string `toml:"socket_path"`

	// Log defines structured logging settings.
	Log LogSettings `toml:"log"`

	// Automation defines poll cadence and matcher sources.
	Automation AutomationSettings `toml:"automation"`

	// Events defines where emitted events are published.
	Events EventSettings `toml:"events"`

	// Worktree defines git worktree placement for new sessions.
	Worktree WorktreeSettings `toml:"worktree"`
}

// LogSettings controls the rotating debug log.
type LogSettings struct {
	// Debug enables debug-level logging to <dir>/muxpilot.log.
	Debug bool `toml:"debug"`

	// Dir overrides the log directory. Empty means <muxpilot dir>/logs.
	Dir string `toml:"dir"`
}

// AutomationSettings controls the polling engine.
type AutomationSettings struct {
	// IntervalMS is the idle poll cadence in milliseconds. Default: 2000.
	IntervalMS int `toml:"interval_ms"`

	// FastIntervalMS is the cadence while panes are new. Default: 1000.
	FastIntervalMS int `toml:"fast_interval_ms"`

	// MatchersFile points at a TOML file of [[matcher]] definitions.
	// Empty means <muxpilot dir>/matchers.toml, falling back to the
	// built-in set when that file is absent.
	MatchersFile string `toml:"matchers_file"`
}

// EventSettings controls the event broker and WebSocket bridge.
type EventSettings struct {
	// Socket is the unix socket the broker listens on.
	// Default: <muxpilot dir>/events.sock
	Socket string `toml:"socket"`

	// Listen is the WebSocket bridge address. Default: 127.0.0.1:7340
	Listen string `toml:"listen"`

	// IngestDir is a directory watched for externally dropped hook event
	// files. Empty disables ingestion.
	IngestDir string `toml:"ingest_dir"`
}

// WorktreeSettings contains git worktree preferences.
type WorktreeSettings struct {
	// Location: "sibling" (next to repo), "subdirectory" (inside
	// .worktrees/), or a custom base path.
	Location string `toml:"location"`

	// AutoCleanup removes the worktree when its session is killed.
	AutoCleanup bool `toml:"auto_cleanup"`
}

// Dir returns the muxpilot state directory, honoring $MUXPILOT_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("MUXPILOT_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".muxpilot"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config file at path, applying defaults for anything
// unset. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from the default location.
func LoadDefault() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	if c.Agent == "" {
		c.Agent = "claude"
	}
	if c.Mode == "" {
		c.Mode = "act"
	}
	if c.Automation.IntervalMS <= 0 {
		c.Automation.IntervalMS = 2000
	}
	if c.Automation.FastIntervalMS <= 0 {
		c.Automation.FastIntervalMS = 1000
	}
	if c.Events.Listen == "" {
		c.Events.Listen = "127.0.0.1:7340"
	}
	if c.Worktree.Location == "" {
		c.Worktree.Location = "sibling"
	}
	c.Log.Dir = ExpandTilde(c.Log.Dir)
	c.Automation.MatchersFile = ExpandTilde(c.Automation.MatchersFile)
	c.Events.Socket = ExpandTilde(c.Events.Socket)
	c.Events.IngestDir = ExpandTilde(c.Events.IngestDir)
}

func (c *Config) validate() error {
	switch c.Mode {
	case "act", "plan", "all":
	default:
		return fmt.Errorf("invalid mode %q (want act, plan, or all)", c.Mode)
	}
	return nil
}

// Interval returns the idle poll cadence as a duration.
func (a AutomationSettings) Interval() time.Duration {
	return time.Duration(a.IntervalMS) * time.Millisecond
}

// FastInterval returns the fast poll cadence as a duration.
func (a AutomationSettings) FastInterval() time.Duration {
	return time.Duration(a.FastIntervalMS) * time.Millisecond
}

// EventSocket resolves the broker socket path, defaulting under Dir.
func (c *Config) EventSocket() (string, error) {
	if c.Events.Socket != "" {
		return c.Events.Socket, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.sock"), nil
}

// MatchersPath resolves the matcher definitions file, defaulting under
// Dir. The file may not exist; callers fall back to built-ins.
func (c *Config) MatchersPath() (string, error) {
	if c.Automation.MatchersFile != "" {
		return c.Automation.MatchersFile, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "matchers.toml"), nil
}

// LogDir resolves the log directory, defaulting under Dir.
func (c *Config) LogDir() (string, error) {
	if c.Log.Dir != "" {
		return c.Log.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// Save writes the config atomically (tmp file, fsync, rename).
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# muxpilot configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if f, err := os.Open(tmp); err == nil {
		_ = f.Sync()
		f.Close()
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize config: %w", err)
	}
	return nil
}

// ExpandTilde expands a leading ~/ against the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
