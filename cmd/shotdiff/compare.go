package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/shotdiff/visreg"
)

func newCompareCommand(a *app) *cobra.Command {
	var (
		threshold float64
		out       string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "compare <baseline.png> <feature.png>",
		Short: "Diff two screenshots",
		Long: `Compare two PNG files the way a run compares component screenshots.
Images of different sizes are padded with white to the larger bounds first.

Example:
  shotdiff compare old.png new.png --out diff.png`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := visreg.CompareFiles(args[0], args[1], threshold, out)
			if err != nil {
				return err
			}
			a.log().Debug("shotdiff: compared", "pixels", res.PixelDiff, "threshold", res.Threshold)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			cmd.Printf("%s: %d pixels differ\n", res.Status, res.PixelDiff)
			if res.DiffPath != "" {
				cmd.Printf("diff: %s\n", res.DiffPath)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "per-pixel sensitivity in (0,1], lower is stricter (default 0.1)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the diff image here when the screenshots differ")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
