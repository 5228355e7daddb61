package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"

	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
)

//go:embed templates/report.html.tmpl
var reportHTML string

var reportTmpl = template.Must(template.New("report").Parse(reportHTML))

type htmlRow struct {
	changeset.Entry
	BaselineImg string
	FeatureImg  string
	DiffImg     string
}

type htmlPage struct {
	Data
	Counts changeset.Counts
	Rows   []htmlRow
}

// RenderHTML writes a standalone page with baseline, feature and diff
// images side by side for every component.
func RenderHTML(w io.Writer, d Data, links Links) error {
	page := htmlPage{Data: d, Counts: d.Counts()}
	for _, e := range d.Entries {
		row := htmlRow{Entry: e}
		if e.Status != changeset.StatusAdded && links.Shot != nil {
			row.BaselineImg = links.Shot(d.Baseline.Commit, e.ID)
		}
		if e.Status != changeset.StatusDeleted && links.Shot != nil {
			row.FeatureImg = links.Shot(d.Feature.Commit, e.ID)
		}
		if e.Status == changeset.StatusChanged && links.Diff != nil {
			row.DiffImg = links.Diff(e.ID)
		}
		page.Rows = append(page.Rows, row)
	}
	if err := reportTmpl.Execute(w, page); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}
	return nil
}
