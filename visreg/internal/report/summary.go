package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
)

// Summary prints a terminal table of the run. Colours follow the
// capabilities of w.
func Summary(w io.Writer, d Data) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	colours := map[changeset.Status]lipgloss.Style{
		changeset.StatusOK:      cell.Foreground(lipgloss.Color("2")),
		changeset.StatusChanged: cell.Foreground(lipgloss.Color("1")),
		changeset.StatusAdded:   cell.Foreground(lipgloss.Color("4")),
		changeset.StatusDeleted: cell.Foreground(lipgloss.Color("3")),
	}

	c := d.Counts()
	title := r.NewStyle().Bold(true).Render(
		fmt.Sprintf("%s vs %s", d.Feature.Short(), d.Baseline.Short()))
	fmt.Fprintf(w, "%s  run %s\n", title, d.RunID)

	rows := make([][]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		if e.Status == changeset.StatusOK && e.Error == "" {
			continue
		}
		px := ""
		if e.PixelDiff > 0 {
			px = strconv.Itoa(e.PixelDiff)
		}
		rows = append(rows, []string{e.ID, string(e.Status), px, e.Error})
	}

	if len(rows) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(r.NewStyle().Foreground(lipgloss.Color("8"))).
			Headers("COMPONENT", "STATUS", "PIXELS", "NOTE").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return header
				}
				if col == 1 {
					return colours[changeset.Status(rows[row][1])]
				}
				return cell
			})
		fmt.Fprintln(w, t.String())
	}

	_, err := fmt.Fprintf(w, "%d changed, %d added, %d deleted, %d unchanged\n",
		c.Changed, c.Added, c.Deleted, c.OK)
	return err
}
