// CLAUDE:SUMMARY Captures one branch: checkout, launch the preview server, discover components, run the capture scheduler, tear down.
// Package runner captures every component of one git ref.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/shotdiff/visreg/internal/capture"
	"github.com/hazyhaar/shotdiff/visreg/internal/explorer"
	"github.com/hazyhaar/shotdiff/visreg/internal/shots"
)

// Checkout switches the working tree between refs.
type Checkout interface {
	Checkout(ctx context.Context, ref string) error
	Resolve(ctx context.Context, ref string) (string, error)
}

// Browser is the browser shared by the workers of one branch run.
type Browser interface {
	Start(ctx context.Context) error
	OpenPage(ctx context.Context) (explorer.Page, error)
	Close() error
}

// Resolver selects the Explorer dialect for a detected server version.
type Resolver func(version string) (explorer.Explorer, error)

// BranchRun is the result of capturing one ref. It is immutable once
// returned by Coordinator.Run.
type BranchRun struct {
	Branch  string `json:"branch"`
	Commit  string `json:"commit"`
	Version string `json:"version"`
	// Discovered is every ID the explorer listed, in catalog order.
	Discovered  []string          `json:"discovered"`
	Outcomes    []capture.Outcome `json:"outcomes"`
	Unprocessed []string          `json:"unprocessed,omitempty"`
	Started     time.Time         `json:"started"`
	Finished    time.Time         `json:"finished"`
}

// IDs returns the processed IDs in discovery order.
func (r *BranchRun) IDs() []string {
	done := make(map[string]struct{}, len(r.Outcomes))
	for _, o := range r.Outcomes {
		done[o.ID] = struct{}{}
	}
	ids := make([]string, 0, len(done))
	for _, id := range r.Discovered {
		if _, ok := done[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Elapsed is the wall time of the run.
func (r *BranchRun) Elapsed() time.Duration { return r.Finished.Sub(r.Started) }

// Config configures a Coordinator.
type Config struct {
	Git        Checkout
	Launcher   explorer.Launcher
	Resolve    Resolver
	NewBrowser func() Browser
	Layout     shots.Layout
	Policy     capture.Policy
	Workers    int
	Logger     *slog.Logger
}

// Coordinator runs the capture of one branch at a time.
type Coordinator struct {
	cfg Config
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{cfg: cfg}
}

// Run checks out branch and captures every component it serves into
// {screenshots}/{commit}/. The preview server and the browser are always
// torn down before Run returns. On error the partial BranchRun is
// returned with it.
func (c *Coordinator) Run(ctx context.Context, branch string) (*BranchRun, error) {
	log := c.cfg.Logger.With("branch", branch)
	run := &BranchRun{Branch: branch, Started: time.Now()}
	defer func() { run.Finished = time.Now() }()

	if err := c.cfg.Git.Checkout(ctx, branch); err != nil {
		return run, fmt.Errorf("runner: checkout %s: %w", branch, err)
	}
	commit, err := c.cfg.Git.Resolve(ctx, branch)
	if err != nil {
		return run, fmt.Errorf("runner: resolve %s: %w", branch, err)
	}
	run.Commit = commit

	dir := c.cfg.Layout.Commit(commit)
	if err := dir.Prepare(); err != nil {
		return run, fmt.Errorf("runner: %s: %w", branch, err)
	}

	srv, err := c.cfg.Launcher.Start(ctx)
	if err != nil {
		return run, fmt.Errorf("runner: %s: launch explorer: %w", branch, err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			log.Warn("runner: stop explorer", "error", err)
		}
	}()
	run.Version = srv.Version

	exp, err := c.cfg.Resolve(srv.Version)
	if err != nil {
		return run, fmt.Errorf("runner: %s: %w", branch, err)
	}

	b := c.cfg.NewBrowser()
	if err := b.Start(ctx); err != nil {
		b.Close()
		return run, fmt.Errorf("runner: %s: %w", branch, err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("runner: close browser", "error", err)
		}
	}()

	ids, err := c.discover(ctx, b, exp, srv.URL)
	if err != nil {
		return run, fmt.Errorf("runner: %s: %w", branch, err)
	}
	run.Discovered = ids
	log.Info("runner: components discovered", "commit", commit, "version", srv.Version, "count", len(ids))

	sched := capture.NewScheduler(capture.Config{
		Opener:   b,
		Explorer: exp,
		BaseURL:  srv.URL,
		Saver:    dir,
		Policy:   c.cfg.Policy,
		Workers:  c.cfg.Workers,
		Logger:   c.cfg.Logger,
	})
	res, err := sched.Run(ctx, ids)
	if res != nil {
		run.Outcomes = res.Outcomes
		run.Unprocessed = res.Unprocessed
	}
	log.Info("runner: branch captured",
		"commit", commit,
		"processed", len(run.Outcomes),
		"unprocessed", len(run.Unprocessed),
		"elapsed", time.Since(run.Started).Round(time.Millisecond))
	if err != nil {
		return run, fmt.Errorf("runner: %s: %w", branch, err)
	}
	return run, nil
}

func (c *Coordinator) discover(ctx context.Context, b Browser, exp explorer.Explorer, baseURL string) ([]string, error) {
	page, err := b.OpenPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery page: %w", err)
	}
	defer page.Close()

	ids, err := exp.ListComponentIDs(ctx, page, baseURL)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return ids, nil
}
