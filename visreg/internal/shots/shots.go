// Package shots owns the on-disk layout of screenshots and diff artifacts:
//
//	{screenshots}/{commit}/{component}.png
//	{reports}/{run}/{component}.png
//	{reports}/{run}.{html,json,md}
//
// Directories are partitioned by commit and component, so concurrent workers
// never write the same file.
package shots

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidID is returned for IDs that cannot be used as a file name.
var ErrInvalidID = errors.New("shots: invalid path segment")

// ValidSegment checks that s is usable as a single path element.
func ValidSegment(s string) error {
	if s == "" || s == "." || s == ".." ||
		strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return nil
}

// Layout resolves artifact paths under the screenshot and report roots.
type Layout struct {
	Screenshots string
	Reports     string
}

// Shot is the screenshot path for a component at a commit.
func (l Layout) Shot(commit, id string) string {
	return filepath.Join(l.Screenshots, commit, id+".png")
}

// Diff is the diff artifact path for a component within a run.
func (l Layout) Diff(runID, id string) string {
	return filepath.Join(l.Reports, runID, id+".png")
}

// DiffDir is the per-run diff artifact directory.
func (l Layout) DiffDir(runID string) string {
	return filepath.Join(l.Reports, runID)
}

// Report is the path of a run report with the given extension ("html", "json", "md").
func (l Layout) Report(runID, ext string) string {
	return filepath.Join(l.Reports, runID+"."+ext)
}

// Clean removes every stored screenshot.
func (l Layout) Clean() error {
	if err := os.RemoveAll(l.Screenshots); err != nil {
		return fmt.Errorf("shots: clean: %w", err)
	}
	return nil
}

// Commit returns the screenshot directory of one commit.
func (l Layout) Commit(commit string) *Dir {
	return &Dir{layout: l, commit: commit}
}

// Dir stores screenshots of one branch state.
type Dir struct {
	layout Layout
	commit string
}

// Path returns the screenshot path for id.
func (d *Dir) Path(id string) string { return d.layout.Shot(d.commit, id) }

// Prepare creates the directory.
func (d *Dir) Prepare() error {
	if err := ValidSegment(d.commit); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(d.layout.Screenshots, d.commit), 0o755); err != nil {
		return fmt.Errorf("shots: mkdir: %w", err)
	}
	return nil
}

// Save writes png for id. The file is written to a temporary name and
// renamed so readers never observe a partial screenshot.
func (d *Dir) Save(ctx context.Context, id string, png []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidSegment(id); err != nil {
		return err
	}
	dst := d.Path(id)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".shot-*")
	if err != nil {
		return fmt.Errorf("shots: create temp: %w", err)
	}
	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("shots: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("shots: close %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("shots: rename %s: %w", id, err)
	}
	return nil
}
