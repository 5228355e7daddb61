// CLAUDE:SUMMARY Ledger CRUD: create/finish runs, record branch runs with captures and changesets, list history with per-status counts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/shotdiff/dbopen"
	"github.com/hazyhaar/shotdiff/idgen"
	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID             string           `json:"id"`
	BaselineBranch string           `json:"baseline_branch"`
	BaselineCommit string           `json:"baseline_commit,omitempty"`
	FeatureBranch  string           `json:"feature_branch"`
	FeatureCommit  string           `json:"feature_commit,omitempty"`
	Threshold      float64          `json:"threshold"`
	Status         string           `json:"status"` // "running", "done", "failed"
	Error          string           `json:"error,omitempty"`
	StartedAt      int64            `json:"started_at"`
	FinishedAt     int64            `json:"finished_at,omitempty"`
	Counts         changeset.Counts `json:"counts"`
}

// Side identifies which branch of a run a BranchRun captured.
type Side string

const (
	SideBaseline Side = "baseline"
	SideFeature  Side = "feature"
)

// Capture is one processed component of a branch run.
type Capture struct {
	ComponentID string `json:"component_id"`
	Attempts    int    `json:"attempts"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// BranchRun is the ledger record of one side of a run.
type BranchRun struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Side        Side      `json:"side"`
	Branch      string    `json:"branch"`
	Commit      string    `json:"commit"`
	Version     string    `json:"version,omitempty"`
	Discovered  int       `json:"discovered"`
	Unprocessed []string  `json:"unprocessed,omitempty"`
	StartedAt   int64     `json:"started_at"`
	FinishedAt  int64     `json:"finished_at"`
	Captures    []Capture `json:"captures,omitempty"`
}

// CreateRun inserts r with status running.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixMilli()
	}
	r.Status = StatusRunning
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, baseline_branch, feature_branch, threshold, status, started_at)
		VALUES (?,?,?,?,?,?)`,
		r.ID, r.BaselineBranch, r.FeatureBranch, r.Threshold, r.Status, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// RecordBranchRun stores one side of a run with its captures and copies
// the commit onto the run row.
func (s *Store) RecordBranchRun(ctx context.Context, br *BranchRun) error {
	if br.ID == "" {
		br.ID = idgen.UUIDv7()()
	}
	unprocessed, err := json.Marshal(nonNil(br.Unprocessed))
	if err != nil {
		return fmt.Errorf("store: encode unprocessed: %w", err)
	}

	commitCol := "baseline_commit"
	if br.Side == SideFeature {
		commitCol = "feature_commit"
	}

	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branch_runs
				(id, run_id, side, branch, commit_hash, version, discovered, unprocessed, started_at, finished_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			br.ID, br.RunID, string(br.Side), br.Branch, br.Commit, br.Version,
			br.Discovered, string(unprocessed), br.StartedAt, br.FinishedAt,
		); err != nil {
			return err
		}
		for _, c := range br.Captures {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO captures (branch_run_id, component_id, attempts, degraded)
				VALUES (?,?,?,?)`,
				br.ID, c.ComponentID, c.Attempts, boolInt(c.Degraded),
			); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE runs SET `+commitCol+` = ? WHERE id = ?`, br.Commit, br.RunID)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: record %s run: %w", br.Side, err)
	}
	return nil
}

// RecordChanges replaces the changeset of a run.
func (s *Store) RecordChanges(ctx context.Context, runID string, entries []changeset.Entry) error {
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM changes WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for i, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO changes (run_id, position, component_id, status, pixel_diff, error)
				VALUES (?,?,?,?,?,?)`,
				runID, i, e.ID, string(e.Status), e.PixelDiff, e.Error,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: record changes: %w", err)
	}
	return nil
}

// FinishRun marks a run done, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusDone, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, time.Now().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	return nil
}

const runColumns = `
	r.id, r.baseline_branch, r.baseline_commit, r.feature_branch, r.feature_commit,
	r.threshold, r.status, r.error, r.started_at, r.finished_at,
	COALESCE(SUM(c.status = 'ok'), 0), COALESCE(SUM(c.status = 'added'), 0),
	COALESCE(SUM(c.status = 'deleted'), 0), COALESCE(SUM(c.status = 'changed'), 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	r := &Run{}
	err := row.Scan(
		&r.ID, &r.BaselineBranch, &r.BaselineCommit, &r.FeatureBranch, &r.FeatureCommit,
		&r.Threshold, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt,
		&r.Counts.OK, &r.Counts.Added, &r.Counts.Deleted, &r.Counts.Changed,
	)
	return r, err
}

// GetRun returns a run by ID, or nil if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.DB.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r LEFT JOIN changes c ON c.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r LEFT JOIN changes c ON c.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Changes returns the changeset of a run in changeset order, optionally
// filtered by status (empty = all).
func (s *Store) Changes(ctx context.Context, runID string, status changeset.Status) ([]changeset.Entry, error) {
	query := `SELECT component_id, status, pixel_diff, error FROM changes WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY position`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}
	defer rows.Close()

	var entries []changeset.Entry
	for rows.Next() {
		var e changeset.Entry
		var st string
		if err := rows.Scan(&e.ID, &st, &e.PixelDiff, &e.Error); err != nil {
			return nil, fmt.Errorf("store: scan change: %w", err)
		}
		e.Status = changeset.Status(st)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BranchRuns returns both sides of a run, baseline first, with captures.
func (s *Store) BranchRuns(ctx context.Context, runID string) ([]*BranchRun, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, run_id, side, branch, commit_hash, version, discovered, unprocessed, started_at, finished_at
		FROM branch_runs WHERE run_id = ?
		ORDER BY CASE side WHEN 'baseline' THEN 0 ELSE 1 END`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: branch runs: %w", err)
	}
	var out []*BranchRun
	for rows.Next() {
		br := &BranchRun{}
		var side, unprocessed string
		if err := rows.Scan(&br.ID, &br.RunID, &side, &br.Branch, &br.Commit, &br.Version,
			&br.Discovered, &unprocessed, &br.StartedAt, &br.FinishedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan branch run: %w", err)
		}
		br.Side = Side(side)
		if err := json.Unmarshal([]byte(unprocessed), &br.Unprocessed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: decode unprocessed: %w", err)
		}
		out = append(out, br)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Captures are loaded after the cursor is closed: the test database
	// has a single connection.
	for _, br := range out {
		if br.Captures, err = s.captures(ctx, br.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) captures(ctx context.Context, branchRunID string) ([]Capture, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT component_id, attempts, degraded FROM captures
		WHERE branch_run_id = ? ORDER BY rowid`, branchRunID)
	if err != nil {
		return nil, fmt.Errorf("store: captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var degraded int
		if err := rows.Scan(&c.ComponentID, &c.Attempts, &degraded); err != nil {
			return nil, fmt.Errorf("store: scan capture: %w", err)
		}
		c.Degraded = degraded != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
