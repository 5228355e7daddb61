// CLAUDE:SUMMARY Renders a run's changeset as HTML (side-by-side images), JSON, Markdown (PR comments) and a terminal table.
// Package report renders the changeset of a run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
	"github.com/hazyhaar/shotdiff/visreg/internal/shots"
)

// Side names one compared ref.
type Side struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

// Short is the branch with an abbreviated commit.
func (s Side) Short() string {
	c := s.Commit
	if len(c) > 8 {
		c = c[:8]
	}
	if c == "" {
		return s.Branch
	}
	return s.Branch + "@" + c
}

// Data is everything a report shows.
type Data struct {
	RunID       string
	Baseline    Side
	Feature     Side
	Threshold   float64
	GeneratedAt time.Time
	Entries     []changeset.Entry
}

// Counts tallies the entries.
func (d Data) Counts() changeset.Counts { return changeset.Count(d.Entries) }

// Links resolves image URLs for the HTML report.
type Links struct {
	Shot func(commit, id string) string
	Diff func(id string) string
}

// FileLinks links images relative to a report written by WriteFiles.
func FileLinks(l shots.Layout, runID string) Links {
	rel := func(path string) string {
		r, err := filepath.Rel(l.Reports, path)
		if err != nil {
			return filepath.ToSlash(path)
		}
		return filepath.ToSlash(r)
	}
	return Links{
		Shot: func(commit, id string) string { return rel(l.Shot(commit, id)) },
		Diff: func(id string) string { return rel(l.Diff(runID, id)) },
	}
}

// WriteFiles writes {reports}/{run}.html, .json and .md.
func WriteFiles(l shots.Layout, d Data) error {
	if err := os.MkdirAll(l.Reports, 0o755); err != nil {
		return fmt.Errorf("report: mkdir: %w", err)
	}

	write := func(ext string, render func(f *os.File) error) error {
		path := l.Report(d.RunID, ext)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("report: create %s: %w", path, err)
		}
		if err := render(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("report: close %s: %w", path, err)
		}
		return nil
	}

	if err := write("html", func(f *os.File) error { return RenderHTML(f, d, FileLinks(l, d.RunID)) }); err != nil {
		return err
	}
	if err := write("json", func(f *os.File) error { return WriteJSON(f, d) }); err != nil {
		return err
	}
	return write("md", func(f *os.File) error {
		md, err := Markdown(d)
		if err != nil {
			return err
		}
		_, err = f.WriteString(md)
		return err
	})
}
