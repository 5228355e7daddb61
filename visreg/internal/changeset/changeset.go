// Package changeset classifies components between a baseline and a feature
// branch run.
package changeset

// Status is the outcome for one component.
type Status string

const (
	StatusOK      Status = "ok"
	StatusAdded   Status = "added"
	StatusDeleted Status = "deleted"
	StatusChanged Status = "changed"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusAdded, StatusDeleted, StatusChanged:
		return true
	}
	return false
}

// Entry is one component's line in the changeset. Error is set when the
// pixel comparison failed; the status then keeps its set-membership value.
type Entry struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	PixelDiff int    `json:"pixel_diff,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Diff classifies IDs by set membership: baseline IDs present in feature are
// ok candidates, the rest deleted; feature-only IDs are added. Baseline order
// comes first, then added IDs in feature order. Each ID appears once even if
// an input repeats it.
func Diff(baseline, feature []string) []Entry {
	inFeature := make(map[string]struct{}, len(feature))
	for _, id := range feature {
		inFeature[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(baseline)+len(feature))
	entries := make([]Entry, 0, len(baseline)+len(feature))

	for _, id := range baseline {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		st := StatusDeleted
		if _, ok := inFeature[id]; ok {
			st = StatusOK
		}
		entries = append(entries, Entry{ID: id, Status: st})
	}

	for _, id := range feature {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, Entry{ID: id, Status: StatusAdded})
	}
	return entries
}

// StatusFor maps a pixel difference count to ok or changed.
func StatusFor(pixelDiff int) Status {
	if pixelDiff > 0 {
		return StatusChanged
	}
	return StatusOK
}

// Counts tallies entries per status.
type Counts struct {
	OK      int `json:"ok"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Changed int `json:"changed"`
}

// Count tallies entries per status.
func Count(entries []Entry) Counts {
	var c Counts
	for _, e := range entries {
		switch e.Status {
		case StatusOK:
			c.OK++
		case StatusAdded:
			c.Added++
		case StatusDeleted:
			c.Deleted++
		case StatusChanged:
			c.Changed++
		}
	}
	return c
}

// HasRegressions reports whether anything other than ok is present.
func (c Counts) HasRegressions() bool {
	return c.Added+c.Deleted+c.Changed > 0
}

// Filter returns the entries with the given status, in order.
func Filter(entries []Entry, st Status) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}
