package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
)

// The Markdown report is rendered as a small HTML fragment and converted,
// so the HTML and Markdown outputs share escaping rules.
var summaryTmpl = template.Must(template.New("summary").Parse(`
<h2>Visual changes: {{.Feature.Short}} vs {{.Baseline.Short}}</h2>
<p>Run <code>{{.RunID}}</code>, threshold {{.Threshold}}.</p>
<table>
<thead><tr><th>Status</th><th>Components</th></tr></thead>
<tbody>
<tr><td>changed</td><td>{{.Counts.Changed}}</td></tr>
<tr><td>added</td><td>{{.Counts.Added}}</td></tr>
<tr><td>deleted</td><td>{{.Counts.Deleted}}</td></tr>
<tr><td>unchanged</td><td>{{.Counts.OK}}</td></tr>
</tbody>
</table>
{{- if .Notable}}
<h3>Components</h3>
<table>
<thead><tr><th>Component</th><th>Status</th><th>Pixels</th><th>Note</th></tr></thead>
<tbody>
{{- range .Notable}}
<tr><td><code>{{.ID}}</code></td><td>{{.Status}}</td><td>{{.PixelDiff}}</td><td>{{.Error}}</td></tr>
{{- end}}
</tbody>
</table>
{{- else}}
<p>No visual changes.</p>
{{- end}}
`))

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders a summary suited to a pull request comment: counts and
// every entry that is not a clean ok.
func Markdown(d Data) (string, error) {
	var notable []changeset.Entry
	for _, e := range d.Entries {
		if e.Status != changeset.StatusOK || e.Error != "" {
			notable = append(notable, e)
		}
	}

	var buf bytes.Buffer
	err := summaryTmpl.Execute(&buf, struct {
		Data
		Counts  changeset.Counts
		Notable []changeset.Entry
	}{d, d.Counts(), notable})
	if err != nil {
		return "", fmt.Errorf("report: markdown template: %w", err)
	}

	md, err := mdConverter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("report: markdown: %w", err)
	}
	return md + "\n", nil
}
