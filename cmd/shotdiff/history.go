package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/shotdiff/visreg"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := visreg.NewArchive(ledger, a.cfg, a.logger).Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				if runs == nil {
					runs = []*visreg.RunRecord{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				cmd.Println("No runs recorded.")
				return nil
			}

			r := lipgloss.NewRenderer(cmd.OutOrStdout())
			t := table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(r.NewStyle().Foreground(lipgloss.Color("8"))).
				Headers("RUN", "STARTED", "BASELINE", "FEATURE", "STATUS", "CHANGED", "ADDED", "DELETED", "OK")
			for _, run := range runs {
				t.Row(
					run.ID,
					time.UnixMilli(run.StartedAt).Format("2006-01-02 15:04"),
					ref(run.BaselineBranch, run.BaselineCommit),
					ref(run.FeatureBranch, run.FeatureCommit),
					run.Status,
					strconv.Itoa(run.Counts.Changed),
					strconv.Itoa(run.Counts.Added),
					strconv.Itoa(run.Counts.Deleted),
					strconv.Itoa(run.Counts.OK),
				)
			}
			cmd.Println(t.Render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

func ref(branch, commit string) string {
	if len(commit) > 8 {
		commit = commit[:8]
	}
	if commit == "" {
		return branch
	}
	return branch + "@" + commit
}
