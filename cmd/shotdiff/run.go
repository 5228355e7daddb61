package main

import (
	"github.com/spf13/cobra"

	"github.com/hazyhaar/shotdiff/visreg"
)

type runOptions struct {
	baseline     string
	feature      string
	threshold    float64
	workers      int
	maxRetries   int
	noClean      bool
	noLedger     bool
	remote       string
	failOnChange bool
}

func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [feature]",
		Short: "Capture baseline and feature refs and report visual changes",
		Long: `Check out the baseline ref, start the component explorer, capture every
component, then do the same for the feature ref. Screenshots of components
present on both refs are compared; the changeset is written as HTML, JSON and
Markdown reports and recorded in the run ledger.

Example:
  shotdiff run --feature my-branch
  shotdiff run my-branch --baseline develop --threshold 0.05 --workers 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.feature = args[0]
			}
			return runPipeline(cmd, a, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseline, "baseline", "", "baseline ref (default from config, else main)")
	f.StringVar(&opts.feature, "feature", "", "feature ref to compare against the baseline")
	f.Float64Var(&opts.threshold, "threshold", 0, "per-pixel sensitivity in (0,1], lower is stricter")
	f.IntVar(&opts.workers, "workers", 0, "capture workers (default about a third of the CPUs)")
	f.IntVar(&opts.maxRetries, "max-retries", -1, "navigation retries per component")
	f.BoolVar(&opts.noClean, "no-clean", false, "keep screenshots of previous runs")
	f.BoolVar(&opts.noLedger, "no-ledger", false, "do not record the run in the ledger")
	f.StringVar(&opts.remote, "remote", "", "connect to a running Chrome DevTools endpoint instead of launching one")
	f.BoolVar(&opts.failOnChange, "fail-on-change", false, "exit with status 2 when anything was added, deleted or changed")
	return cmd
}

func (o *runOptions) apply(cfg *visreg.Config) {
	if o.baseline != "" {
		cfg.Baseline = o.baseline
	}
	if o.feature != "" {
		cfg.Feature = o.feature
	}
	if o.threshold != 0 {
		cfg.Threshold = o.threshold
	}
	if o.workers != 0 {
		cfg.Capture.Workers = o.workers
	}
	if o.maxRetries >= 0 {
		cfg.Capture.MaxRetries = &o.maxRetries
	}
	if o.noClean {
		clean := false
		cfg.Capture.Clean = &clean
	}
	if o.remote != "" {
		cfg.Browser.Remote = o.remote
	}
}

func runPipeline(cmd *cobra.Command, a *app, opts *runOptions) error {
	opts.apply(a.cfg)
	if err := a.finalize(); err != nil {
		return err
	}

	popts := []visreg.Option{visreg.WithRegistry(a.registry)}
	if !opts.noLedger {
		ledger, err := a.openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()
		popts = append(popts, visreg.WithLedger(ledger))
	}

	p, err := visreg.New(a.cfg, a.logger, popts...)
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := visreg.PrintSummary(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	cmd.Printf("report: %s\n", p.ReportPath(res.RunID, "html"))

	if opts.failOnChange && res.Counts.HasRegressions() {
		return &exitError{code: 2, msg: "visual changes detected"}
	}
	return nil
}
