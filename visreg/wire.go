// CLAUDE:SUMMARY Assembles the production branch runner: git CLI, Storybook launcher, rod browser and capture policy from Config.
package visreg

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/shotdiff/visreg/internal/browser"
	"github.com/hazyhaar/shotdiff/visreg/internal/capture"
	"github.com/hazyhaar/shotdiff/visreg/internal/explorer"
	"github.com/hazyhaar/shotdiff/visreg/internal/gitref"
	"github.com/hazyhaar/shotdiff/visreg/internal/procs"
	"github.com/hazyhaar/shotdiff/visreg/internal/runner"
)

// ProcessRegistry tracks spawned preview servers. Re-exported from internal
// so the command can kill them on signals and panics.
type ProcessRegistry = procs.Registry

// NewProcessRegistry creates an empty registry.
func NewProcessRegistry(logger *slog.Logger) *ProcessRegistry {
	return procs.NewRegistry(logger)
}

func policyFor(cfg *Config) capture.Policy {
	return capture.Policy{
		FirstTimeout: cfg.Capture.FirstTimeout,
		RetryTimeout: cfg.Capture.RetryTimeout,
		MaxRetries:   cfg.Retries(),
	}
}

func workersFor(cfg *Config) int {
	if cfg.Capture.Workers > 0 {
		return cfg.Capture.Workers
	}
	return capture.DefaultWorkers()
}

// resolverFor returns the dialect selector for the configured explorer type.
func resolverFor(cfg *Config) (runner.Resolver, error) {
	switch cfg.Explorer.Type {
	case "storybook":
		return func(version string) (explorer.Explorer, error) {
			sb, err := explorer.NewStorybook(version)
			if err != nil {
				return nil, err
			}
			return sb, nil
		}, nil
	default:
		return nil, fmt.Errorf("visreg: unknown explorer type %q", cfg.Explorer.Type)
	}
}

// newCoordinator builds the production branch runner.
func newCoordinator(cfg *Config, git *gitref.Client, reg *procs.Registry, logger *slog.Logger) (*runner.Coordinator, error) {
	resolve, err := resolverFor(cfg)
	if err != nil {
		return nil, err
	}
	launcher := explorer.NewLauncher(explorer.LaunchConfig{
		Command:        cfg.Explorer.Command,
		Dir:            cfg.ExplorerDir(),
		Version:        cfg.Explorer.Version,
		StartupTimeout: cfg.Explorer.StartupTimeout,
		Registry:       reg,
		Logger:         logger,
	})
	return runner.New(runner.Config{
		Git:      git,
		Launcher: launcher,
		Resolve:  resolve,
		NewBrowser: func() runner.Browser {
			return browser.NewManager(browser.Config{
				RemoteURL:        cfg.Browser.Remote,
				Bin:              cfg.Browser.Bin,
				Stealth:          cfg.Browser.Stealth,
				ResourceBlocking: cfg.Browser.ResourceBlocking,
				Logger:           logger,
			})
		},
		Layout:  layoutFor(cfg),
		Policy:  policyFor(cfg),
		Workers: workersFor(cfg),
		Logger:  logger,
	}), nil
}
