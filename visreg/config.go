package visreg

import (
	"github.com/hazyhaar/shotdiff/visreg/internal/config"
	"github.com/hazyhaar/shotdiff/visreg/internal/shots"
)

// Config is the top-level shotdiff configuration. Re-exported from internal.
type Config = config.Config

// CaptureConfig controls the capture scheduler and retry policy.
type CaptureConfig = config.CaptureConfig

// ExplorerConfig controls the component explorer server.
type ExplorerConfig = config.ExplorerConfig

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// LogConfig controls logging.
type LogConfig = config.LogConfig

// LoadConfigFile reads a YAML or TOML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}

func layoutFor(cfg *Config) shots.Layout {
	return shots.Layout{
		Screenshots: cfg.Path(cfg.ScreenshotsDir),
		Reports:     cfg.Path(cfg.ReportsDir),
	}
}
