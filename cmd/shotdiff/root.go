package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/shotdiff/internal/logging"
	"github.com/hazyhaar/shotdiff/visreg"
)

// app is the state shared by every command: the finalized configuration,
// the logger and the registry of spawned servers.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	repo       string

	cfg      *visreg.Config
	logger   *slog.Logger
	closeLog func() error
	registry *visreg.ProcessRegistry
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shotdiff",
		Short: "Visual regression testing for component catalogs",
		Long: `shotdiff captures a screenshot of every Storybook component on a baseline
and a feature git ref, diffs them pixel by pixel and reports what was added,
deleted or changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text, json")
	cmd.PersistentFlags().StringVar(&a.repo, "repo", "", "repository root (default from config, else .)")

	cmd.AddCommand(newRunCommand(a))
	cmd.AddCommand(newCompareCommand(a))
	cmd.AddCommand(newHistoryCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newMCPCommand(a))
	return cmd
}

// setup loads the configuration, applies the global flags and builds the
// logger. Subcommands apply their own flags and call finalize.
func (a *app) setup() error {
	cfg := visreg.DefaultConfig()
	if a.configPath != "" {
		loaded, err := visreg.LoadConfigFile(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.repo != "" {
		cfg.Repo = a.repo
	}
	if err := cfg.Finalize(); err != nil {
		return err
	}
	a.cfg = cfg

	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	opts := logging.Options{Level: lvl, Format: cfg.Log.Format}
	if cfg.Log.File != "" {
		opts.File = cfg.Path(cfg.Log.File)
	}
	logger, closeLog, err := logging.Setup(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger = logger
	a.closeLog = closeLog
	a.registry = visreg.NewProcessRegistry(logger)
	return nil
}

// finalize validates the configuration after command flags were applied.
func (a *app) finalize() error {
	return a.cfg.Finalize()
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

// shutdown kills every spawned server and flushes the log file. Safe to
// call more than once.
func (a *app) shutdown() {
	if a.registry != nil {
		a.registry.KillAll()
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "shotdiff: close log: %v\n", err)
		}
		a.closeLog = nil
	}
}

func (a *app) openLedger() (*visreg.Ledger, error) {
	return visreg.OpenLedger(a.cfg.Path(a.cfg.Database))
}
