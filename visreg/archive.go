// CLAUDE:SUMMARY Read side of the ledger: run history, changesets, branch runs and image paths for the CLI, HTTP and MCP surfaces.
package visreg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/shotdiff/visreg/internal/report"
	"github.com/hazyhaar/shotdiff/visreg/internal/shots"
	"github.com/hazyhaar/shotdiff/visreg/internal/store"
)

// Ledger is the SQLite run ledger.
type Ledger = store.Store

// RunRecord is one ledger run with its per-status counts.
type RunRecord = store.Run

// BranchRecord is one ledger branch run with its captures.
type BranchRecord = store.BranchRun

// OpenLedger opens (or creates) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	return store.Open(path)
}

// Archive answers questions about past runs.
type Archive struct {
	ledger *Ledger
	layout shots.Layout
	logger *slog.Logger
}

// NewArchive creates an Archive over ledger; cfg locates the image trees.
func NewArchive(ledger *Ledger, cfg *Config, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{ledger: ledger, layout: layoutFor(cfg), logger: logger}
}

// Runs lists the most recent runs first.
func (a *Archive) Runs(ctx context.Context, limit int) ([]*RunRecord, error) {
	if a.ledger == nil {
		return nil, ErrNoLedger
	}
	return a.ledger.ListRuns(ctx, limit)
}

// Run returns one run or ErrRunNotFound.
func (a *Archive) Run(ctx context.Context, runID string) (*RunRecord, error) {
	if a.ledger == nil {
		return nil, ErrNoLedger
	}
	r, err := a.ledger.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

// Changes returns the changeset of a run, optionally filtered by status.
func (a *Archive) Changes(ctx context.Context, runID string, status Status) ([]Entry, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if _, err := a.Run(ctx, runID); err != nil {
		return nil, err
	}
	entries, err := a.ledger.Changes(ctx, runID, status)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// BranchRuns returns both captured sides of a run, baseline first.
func (a *Archive) BranchRuns(ctx context.Context, runID string) ([]*BranchRecord, error) {
	if _, err := a.Run(ctx, runID); err != nil {
		return nil, err
	}
	return a.ledger.BranchRuns(ctx, runID)
}

// ReportData rebuilds the report of a finished run from the ledger.
func (a *Archive) ReportData(ctx context.Context, runID string) (report.Data, error) {
	r, err := a.Run(ctx, runID)
	if err != nil {
		return report.Data{}, err
	}
	entries, err := a.ledger.Changes(ctx, runID, "")
	if err != nil {
		return report.Data{}, err
	}
	at := r.FinishedAt
	if at == 0 {
		at = r.StartedAt
	}
	return report.Data{
		RunID:       r.ID,
		Baseline:    report.Side{Branch: r.BaselineBranch, Commit: r.BaselineCommit},
		Feature:     report.Side{Branch: r.FeatureBranch, Commit: r.FeatureCommit},
		Threshold:   r.Threshold,
		GeneratedAt: time.UnixMilli(at),
		Entries:     entries,
	}, nil
}

// ShotPath returns the screenshot of component id at commit. Both segments
// are validated so a caller cannot escape the screenshot root.
func (a *Archive) ShotPath(commit, id string) (string, error) {
	if err := shots.ValidSegment(commit); err != nil {
		return "", err
	}
	if err := shots.ValidSegment(id); err != nil {
		return "", err
	}
	return a.layout.Shot(commit, id), nil
}

// DiffPath returns the diff image of component id in run runID.
func (a *Archive) DiffPath(runID, id string) (string, error) {
	if err := shots.ValidSegment(runID); err != nil {
		return "", err
	}
	if err := shots.ValidSegment(id); err != nil {
		return "", err
	}
	return a.layout.Diff(runID, id), nil
}
