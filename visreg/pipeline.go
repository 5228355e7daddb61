// CLAUDE:SUMMARY Pipeline driver: captures baseline then feature, classifies IDs, diffs retained components, records the ledger, writes reports.
// Package visreg is the visual regression pipeline: it captures every
// component of a baseline and a feature git ref, diffs the screenshots and
// reports what changed.
package visreg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/shotdiff/idgen"
	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
	"github.com/hazyhaar/shotdiff/visreg/internal/gitref"
	"github.com/hazyhaar/shotdiff/visreg/internal/report"
	"github.com/hazyhaar/shotdiff/visreg/internal/runner"
	"github.com/hazyhaar/shotdiff/visreg/internal/shots"
	"github.com/hazyhaar/shotdiff/visreg/internal/store"
)

// Re-exported result types.
type (
	BranchRun = runner.BranchRun
	Entry     = changeset.Entry
	Status    = changeset.Status
	Counts    = changeset.Counts
)

// Changeset statuses.
const (
	StatusOK      = changeset.StatusOK
	StatusAdded   = changeset.StatusAdded
	StatusDeleted = changeset.StatusDeleted
	StatusChanged = changeset.StatusChanged
)

// BranchRunner captures one ref.
type BranchRunner interface {
	Run(ctx context.Context, branch string) (*runner.BranchRun, error)
}

// Git reports and restores the checked-out ref.
type Git interface {
	Current(ctx context.Context) (string, error)
	Checkout(ctx context.Context, ref string) error
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID      string
	Threshold  float64
	Baseline   *BranchRun
	Feature    *BranchRun
	Entries    []Entry
	Counts     Counts
	StartedAt  time.Time
	FinishedAt time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunner replaces the branch runner (git + explorer + browser).
func WithRunner(r BranchRunner) Option { return func(p *Pipeline) { p.runner = r } }

// WithGit replaces the git client used to restore the original ref.
func WithGit(g Git) Option { return func(p *Pipeline) { p.git = g } }

// WithLedger records runs in the ledger.
func WithLedger(l *Ledger) Option { return func(p *Pipeline) { p.store = l } }

// WithRegistry tracks spawned servers in reg instead of a private registry.
func WithRegistry(reg *ProcessRegistry) Option { return func(p *Pipeline) { p.registry = reg } }

// WithRunID overrides the run identifier generator.
func WithRunID(gen func() string) Option { return func(p *Pipeline) { p.newID = gen } }

// Pipeline drives one baseline/feature comparison.
type Pipeline struct {
	cfg      *Config
	logger   *slog.Logger
	layout   shots.Layout
	runner   BranchRunner
	git      Git
	store    *store.Store
	registry *ProcessRegistry
	newID    func() string
}

// New creates a Pipeline. Without WithRunner the production runner is
// assembled from cfg.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		layout: layoutFor(cfg),
		newID:  idgen.New,
	}
	for _, o := range opts {
		o(p)
	}

	if p.runner == nil || p.git == nil {
		git := gitref.New(cfg.Repo, logger)
		if p.git == nil {
			p.git = git
		}
		if p.runner == nil {
			if p.registry == nil {
				p.registry = NewProcessRegistry(logger)
			}
			coord, err := newCoordinator(cfg, git, p.registry, logger)
			if err != nil {
				return nil, err
			}
			p.runner = coord
		}
	}
	return p, nil
}

// Run captures both refs, compares them and writes the reports. The Result
// is returned even on error, filled as far as the run got.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.cfg.Feature == "" {
		return nil, ErrNoFeature
	}
	res := &Result{
		RunID:     p.newID(),
		Threshold: p.cfg.Threshold,
		StartedAt: time.Now(),
	}
	log := p.logger.With("run", res.RunID)

	if p.store != nil {
		err := p.store.CreateRun(ctx, &store.Run{
			ID:             res.RunID,
			BaselineBranch: p.cfg.Baseline,
			FeatureBranch:  p.cfg.Feature,
			Threshold:      p.cfg.Threshold,
			StartedAt:      res.StartedAt.UnixMilli(),
		})
		if err != nil {
			return res, fmt.Errorf("visreg: %w", err)
		}
	}

	err := p.run(ctx, res, log)
	res.FinishedAt = time.Now()

	if p.store != nil {
		if ferr := p.store.FinishRun(context.WithoutCancel(ctx), res.RunID, err); ferr != nil {
			log.Error("visreg: finish run", "error", ferr)
			if err == nil {
				err = fmt.Errorf("visreg: %w", ferr)
			}
		}
	}
	if err != nil {
		log.Error("visreg: run failed", "error", err, "elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
		return res, err
	}
	log.Info("visreg: run finished",
		"changed", res.Counts.Changed,
		"added", res.Counts.Added,
		"deleted", res.Counts.Deleted,
		"ok", res.Counts.OK,
		"elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, res *Result, log *slog.Logger) error {
	if p.cfg.Clean() {
		if err := p.layout.Clean(); err != nil {
			return fmt.Errorf("visreg: %w", err)
		}
	}

	orig, err := p.git.Current(ctx)
	if err != nil {
		log.Warn("visreg: cannot determine current ref, it will not be restored", "error", err)
	} else {
		defer func() {
			if err := p.git.Checkout(context.WithoutCancel(ctx), orig); err != nil {
				log.Warn("visreg: restore ref", "ref", orig, "error", err)
			}
		}()
	}

	base, err := p.capture(ctx, res.RunID, store.SideBaseline, p.cfg.Baseline)
	res.Baseline = base
	if err != nil {
		return err
	}
	feat, err := p.capture(ctx, res.RunID, store.SideFeature, p.cfg.Feature)
	res.Feature = feat
	if err != nil {
		return err
	}

	if base.Commit == feat.Commit {
		log.Warn("visreg: baseline and feature resolve to the same commit", "commit", base.Commit)
	}

	entries := changeset.Diff(base.IDs(), feat.IDs())
	if err := p.compare(ctx, res.RunID, base.Commit, feat.Commit, entries, log); err != nil {
		return err
	}
	res.Entries = entries
	res.Counts = changeset.Count(entries)

	if p.store != nil {
		if err := p.store.RecordChanges(ctx, res.RunID, entries); err != nil {
			return fmt.Errorf("visreg: %w", err)
		}
	}

	if err := report.WriteFiles(p.layout, reportData(res, time.Now())); err != nil {
		return fmt.Errorf("visreg: %w", err)
	}
	log.Info("visreg: reports written", "html", p.layout.Report(res.RunID, "html"))
	return nil
}

func (p *Pipeline) capture(ctx context.Context, runID string, side store.Side, branch string) (*BranchRun, error) {
	br, err := p.runner.Run(ctx, branch)
	if err != nil {
		return br, fmt.Errorf("visreg: %s %s: %w", side, branch, err)
	}
	if len(br.Unprocessed) > 0 {
		p.logger.Warn("visreg: components not captured",
			"run", runID, "side", side, "count", len(br.Unprocessed), "ids", br.Unprocessed)
	}
	if p.store == nil {
		return br, nil
	}

	rec := &store.BranchRun{
		RunID:       runID,
		Side:        side,
		Branch:      br.Branch,
		Commit:      br.Commit,
		Version:     br.Version,
		Discovered:  len(br.Discovered),
		Unprocessed: br.Unprocessed,
		StartedAt:   br.Started.UnixMilli(),
		FinishedAt:  br.Finished.UnixMilli(),
	}
	for _, o := range br.Outcomes {
		rec.Captures = append(rec.Captures, store.Capture{ComponentID: o.ID, Attempts: o.Attempts, Degraded: o.Degraded})
	}
	if err := p.store.RecordBranchRun(ctx, rec); err != nil {
		return br, fmt.Errorf("visreg: %w", err)
	}
	return br, nil
}

// compare diffs every ok candidate in place. A failed comparison is
// recorded on the entry and never aborts the run.
func (p *Pipeline) compare(ctx context.Context, runID, baseCommit, featCommit string, entries []Entry, log *slog.Logger) error {
	engine := imgdiff.NewEngine(imgdiff.WithThreshold(p.cfg.Threshold))

	var g errgroup.Group
	g.SetLimit(workersFor(p.cfg))
	for i := range entries {
		if entries[i].Status != changeset.StatusOK {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e := &entries[i]
			r, err := engine.CompareFiles(p.layout.Shot(baseCommit, e.ID), p.layout.Shot(featCommit, e.ID))
			if err != nil {
				log.Warn("visreg: compare failed", "id", e.ID, "error", err)
				e.Error = err.Error()
				return nil
			}
			e.PixelDiff = r.Diff
			e.Status = changeset.StatusFor(r.Diff)
			if !r.Changed() {
				return nil
			}
			if err := imgdiff.WritePNG(p.layout.Diff(runID, e.ID), r.Image); err != nil {
				log.Warn("visreg: write diff image", "id", e.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("visreg: compare: %w", err)
	}
	return nil
}

func reportData(res *Result, now time.Time) report.Data {
	d := report.Data{
		RunID:       res.RunID,
		Threshold:   res.Threshold,
		GeneratedAt: now,
		Entries:     res.Entries,
	}
	if res.Baseline != nil {
		d.Baseline = report.Side{Branch: res.Baseline.Branch, Commit: res.Baseline.Commit}
	}
	if res.Feature != nil {
		d.Feature = report.Side{Branch: res.Feature.Branch, Commit: res.Feature.Commit}
	}
	return d
}

// ReportPath returns where the report of runID with extension ext is written.
func (p *Pipeline) ReportPath(runID, ext string) string {
	return p.layout.Report(runID, ext)
}

// PrintSummary writes the terminal summary table of res.
func PrintSummary(w io.Writer, res *Result) error {
	return report.Summary(w, reportData(res, res.FinishedAt))
}
