// CLAUDE:SUMMARY Loads shotdiff configuration from YAML or TOML, parses raw durations, applies defaults and validates.
// Package config handles shotdiff configuration files. YAML and TOML are
// supported, selected by file extension.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level shotdiff configuration.
type Config struct {
	// Repo is the git working tree the preview server runs in.
	Repo     string `yaml:"repo" toml:"repo"`
	Baseline string `yaml:"baseline" toml:"baseline"`
	Feature  string `yaml:"feature" toml:"feature"`

	// Relative paths are resolved against Repo.
	ScreenshotsDir string `yaml:"screenshots_dir" toml:"screenshots_dir"`
	ReportsDir     string `yaml:"reports_dir" toml:"reports_dir"`
	Database       string `yaml:"database" toml:"database"`

	// Threshold is the per-pixel colour distance tolerance (0, 1].
	Threshold float64 `yaml:"threshold" toml:"threshold"`

	Capture  CaptureConfig  `yaml:"capture" toml:"capture"`
	Explorer ExplorerConfig `yaml:"explorer" toml:"explorer"`
	Browser  BrowserConfig  `yaml:"browser" toml:"browser"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// CaptureConfig controls the capture scheduler and retry policy.
type CaptureConfig struct {
	Workers int `yaml:"workers" toml:"workers"` // 0 = ceil(NumCPU/3)

	FirstTimeout    time.Duration `yaml:"-" toml:"-"`
	RawFirstTimeout string        `yaml:"first_timeout" toml:"first_timeout"`
	RetryTimeout    time.Duration `yaml:"-" toml:"-"`
	RawRetryTimeout string        `yaml:"retry_timeout" toml:"retry_timeout"`

	MaxRetries *int `yaml:"max_retries,omitempty" toml:"max_retries,omitempty"`
	// Clean wipes the screenshot root before a run.
	Clean *bool `yaml:"clean,omitempty" toml:"clean,omitempty"`
}

// ExplorerConfig controls the component explorer server.
type ExplorerConfig struct {
	Type    string   `yaml:"type" toml:"type"` // storybook
	Command []string `yaml:"command" toml:"command"`
	Dir     string   `yaml:"dir" toml:"dir"` // default: repo
	// Version skips version detection from server output.
	Version string `yaml:"version" toml:"version"`

	StartupTimeout    time.Duration `yaml:"-" toml:"-"`
	RawStartupTimeout string        `yaml:"startup_timeout" toml:"startup_timeout"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote" toml:"remote"`
	Bin              string   `yaml:"bin" toml:"bin"`
	Stealth          bool     `yaml:"stealth" toml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking" toml:"resource_blocking"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug | info | warn | error
	Format string `yaml:"format" toml:"format"` // text | json
	File   string `yaml:"file" toml:"file"`
}

// Load reads a configuration file. Files ending in .toml are parsed as
// TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("parse config: unsupported extension %q", filepath.Ext(path))
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	if err := cfg.Finalize(); err != nil {
		panic("config: defaults do not validate: " + err.Error())
	}
	return &cfg
}

// Finalize parses raw durations, fills defaults and validates. Call it
// again after overriding fields (command-line flags).
func (c *Config) Finalize() error {
	if err := c.setDefaults(); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func parseDuration(key string, raw *string, def string, dst *time.Duration) error {
	if *raw == "" {
		*raw = def
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("parse %s %q: %w", key, *raw, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", key, *raw)
	}
	*dst = d
	return nil
}

func (c *Config) setDefaults() error {
	if c.Repo == "" {
		c.Repo = "."
	}
	if c.Baseline == "" {
		c.Baseline = "main"
	}
	if c.ScreenshotsDir == "" {
		c.ScreenshotsDir = "node_modules/.cache/shotdiff/screenshots"
	}
	if c.ReportsDir == "" {
		c.ReportsDir = "node_modules/.cache/shotdiff/reports"
	}
	if c.Database == "" {
		c.Database = "node_modules/.cache/shotdiff/shotdiff.db"
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.1
	}

	if err := parseDuration("capture.first_timeout", &c.Capture.RawFirstTimeout, "30s", &c.Capture.FirstTimeout); err != nil {
		return err
	}
	if err := parseDuration("capture.retry_timeout", &c.Capture.RawRetryTimeout, "60s", &c.Capture.RetryTimeout); err != nil {
		return err
	}
	if c.Capture.MaxRetries == nil {
		three := 3
		c.Capture.MaxRetries = &three
	}
	if c.Capture.Clean == nil {
		defaultTrue := true
		c.Capture.Clean = &defaultTrue
	}

	if c.Explorer.Type == "" {
		c.Explorer.Type = "storybook"
	}
	if err := parseDuration("explorer.startup_timeout", &c.Explorer.RawStartupTimeout, "3m", &c.Explorer.StartupTimeout); err != nil {
		return err
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return nil
}

func (c *Config) validate() error {
	if c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %g", c.Threshold)
	}
	if c.Capture.Workers < 0 {
		return fmt.Errorf("capture.workers must not be negative, got %d", c.Capture.Workers)
	}
	if *c.Capture.MaxRetries < 0 {
		return fmt.Errorf("capture.max_retries must not be negative, got %d", *c.Capture.MaxRetries)
	}
	switch c.Explorer.Type {
	case "storybook":
	default:
		return fmt.Errorf("invalid explorer.type %q (storybook)", c.Explorer.Type)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (text|json)", c.Log.Format)
	}
	if c.Feature != "" && c.Feature == c.Baseline {
		return fmt.Errorf("feature and baseline are both %q", c.Feature)
	}
	return nil
}

// Level parses Log.Level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q (debug|info|warn|error)", c.Log.Level)
	}
	return lvl, nil
}

// Path resolves p against Repo unless it is absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Repo, p)
}

// ExplorerDir is the working directory of the explorer server.
func (c *Config) ExplorerDir() string {
	if c.Explorer.Dir == "" {
		return c.Repo
	}
	return c.Path(c.Explorer.Dir)
}

// Clean reports whether the screenshot root is wiped before a run.
func (c *Config) Clean() bool { return c.Capture.Clean == nil || *c.Capture.Clean }

// Retries returns Capture.MaxRetries.
func (c *Config) Retries() int {
	if c.Capture.MaxRetries == nil {
		return 3
	}
	return *c.Capture.MaxRetries
}
