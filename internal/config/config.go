// internal/config/config.go
//
// This package handles configuration and the .gantry directory structure.
// Every project that hosts gantry gets a .gantry/ folder created in its
// root, holding the config file, the plugin directory, and the logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// GantryDir is the name of the directory we create in each project.
	GantryDir = ".gantry"

	configFileName = "config.yaml"
	// PluginsDirName is the watched plugin directory under .gantry.
	PluginsDirName = "plugins"
	// LogsDirName holds the runtime log files under .gantry.
	LogsDirName = "logs"
)

const defaultConfigYAML = `# gantry runtime configuration
version: 1

plugins:
  # Directory watched for plugin manifests (*.yaml) and interpreted Go
  # plugin files (*.go), relative to .gantry unless absolute.
  dir: plugins
  pattern: "*.{yaml,yml,go}"
  # Quiet period (milliseconds) after the last write before a plugin file
  # is loaded.
  settle_ms: 500

loop:
  # Tick cadence in milliseconds.
  interval_ms: 1000

log:
  level: info
  # Leave empty to log to stderr; otherwise a file name under .gantry/logs.
  file: ""
`

// PluginsConfig controls plugin discovery and hot reload.
type PluginsConfig struct {
	Dir      string `yaml:"dir"`
	Pattern  string `yaml:"pattern"`
	SettleMS int    `yaml:"settle_ms"`
}

// LoopConfig controls the tick loop.
type LoopConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the loaded runtime configuration plus the resolved project
// paths.
type Config struct {
	Version int           `yaml:"version"`
	Plugins PluginsConfig `yaml:"plugins"`
	Loop    LoopConfig    `yaml:"loop"`
	Log     LogConfig     `yaml:"log"`

	ProjectDir       string `yaml:"-"`
	GantryProjectDir string `yaml:"-"`
}

// InitGantryDir creates the .gantry directory structure (config file,
// plugin directory, logs directory) if it does not exist yet.
func InitGantryDir(projectDir string) error {
	gantryDir := filepath.Join(projectDir, GantryDir)
	for _, dir := range []string{gantryDir, filepath.Join(gantryDir, PluginsDirName), filepath.Join(gantryDir, LogsDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	configPath := filepath.Join(gantryDir, configFileName)
	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: stat %s: %w", configPath, err)
		}
		if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); err != nil {
			return fmt.Errorf("config: write default config: %w", err)
		}
	}
	return nil
}

// NewConfig loads .gantry/config.yaml under projectDir, applying defaults
// for anything the file leaves out.
func NewConfig(projectDir string) (*Config, error) {
	absolute, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := defaults()
	cfg.ProjectDir = absolute
	cfg.GantryProjectDir = filepath.Join(absolute, GantryDir)

	configPath := filepath.Join(cfg.GantryProjectDir, configFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", configPath, err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), cfg); err != nil {
		// The embedded default config must parse; anything else is a
		// build defect.
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

func (c *Config) normalize() {
	c.Plugins.Dir = strings.TrimSpace(c.Plugins.Dir)
	c.Plugins.Pattern = strings.TrimSpace(c.Plugins.Pattern)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.File = strings.TrimSpace(c.Log.File)
	fallback := defaults()
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = fallback.Plugins.Dir
	}
	if c.Plugins.Pattern == "" {
		c.Plugins.Pattern = fallback.Plugins.Pattern
	}
	if c.Plugins.SettleMS <= 0 {
		c.Plugins.SettleMS = fallback.Plugins.SettleMS
	}
	if c.Loop.IntervalMS <= 0 {
		c.Loop.IntervalMS = fallback.Loop.IntervalMS
	}
	if c.Log.Level == "" {
		c.Log.Level = fallback.Log.Level
	}
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// PluginDir returns the absolute plugin directory path.
func (c *Config) PluginDir() string {
	if filepath.IsAbs(c.Plugins.Dir) {
		return c.Plugins.Dir
	}
	return filepath.Join(c.GantryProjectDir, c.Plugins.Dir)
}

// SettleWindow returns the plugin settle window as a duration.
func (c *Config) SettleWindow() time.Duration {
	return time.Duration(c.Plugins.SettleMS) * time.Millisecond
}

// TickInterval returns the loop cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Loop.IntervalMS) * time.Millisecond
}
