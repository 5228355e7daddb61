package visreg

import (
	"fmt"

	"github.com/hazyhaar/shotdiff/imgdiff"
)

// CompareResult is the outcome of comparing two screenshot files.
type CompareResult struct {
	Baseline  string  `json:"baseline"`
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
	PixelDiff int     `json:"pixel_diff"`
	Status    Status  `json:"status"`
	DiffPath  string  `json:"diff_path,omitempty"`
}

// CompareFiles compares two PNG files outside of a run. threshold <= 0
// selects the default. When diffOut is set and the images differ, the diff
// image is written there.
func CompareFiles(baseline, feature string, threshold float64, diffOut string) (*CompareResult, error) {
	if threshold <= 0 {
		threshold = imgdiff.DefaultThreshold
	}
	if threshold > 1 {
		return nil, fmt.Errorf("visreg: threshold %v out of range (0,1]", threshold)
	}
	r, err := imgdiff.NewEngine(imgdiff.WithThreshold(threshold)).CompareFiles(baseline, feature)
	if err != nil {
		return nil, err
	}

	out := &CompareResult{
		Baseline:  baseline,
		Feature:   feature,
		Threshold: threshold,
		PixelDiff: r.Diff,
		Status:    StatusOK,
	}
	if r.Changed() {
		out.Status = StatusChanged
		if diffOut != "" {
			if err := imgdiff.WritePNG(diffOut, r.Image); err != nil {
				return out, err
			}
			out.DiffPath = diffOut
		}
	}
	return out, nil
}
