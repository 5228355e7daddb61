package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
)

type document struct {
	RunID       string            `json:"run_id"`
	Baseline    Side              `json:"baseline"`
	Feature     Side              `json:"feature"`
	Threshold   float64           `json:"threshold"`
	GeneratedAt time.Time         `json:"generated_at"`
	Counts      changeset.Counts  `json:"counts"`
	Entries     []changeset.Entry `json:"entries"`
}

// WriteJSON writes the machine-readable changeset.
func WriteJSON(w io.Writer, d Data) error {
	entries := d.Entries
	if entries == nil {
		entries = []changeset.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(document{
		RunID:       d.RunID,
		Baseline:    d.Baseline,
		Feature:     d.Feature,
		Threshold:   d.Threshold,
		GeneratedAt: d.GeneratedAt.UTC(),
		Counts:      d.Counts(),
		Entries:     entries,
	})
	if err != nil {
		return fmt.Errorf("report: json: %w", err)
	}
	return nil
}
