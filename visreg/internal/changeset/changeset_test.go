package changeset

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_Scenario(t *testing.T) {
	entries := Diff([]string{"a", "b", "c"}, []string{"b", "c", "d"})
	assert.Equal(t, []Entry{
		{ID: "a", Status: StatusDeleted},
		{ID: "b", Status: StatusOK},
		{ID: "c", Status: StatusOK},
		{ID: "d", Status: StatusAdded},
	}, entries)
}

func TestDiff_SetProperties(t *testing.T) {
	// WHY: every id of A∪B appears exactly once, classified by membership.
	rng := rand.New(rand.NewPCG(1, 2))
	universe := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	for round := 0; round < 200; round++ {
		var A, B []string
		inA := map[string]bool{}
		inB := map[string]bool{}
		for _, id := range universe {
			if rng.IntN(2) == 0 {
				A = append(A, id)
				inA[id] = true
			}
			if rng.IntN(2) == 0 {
				B = append(B, id)
				inB[id] = true
			}
		}
		rng.Shuffle(len(A), func(i, j int) { A[i], A[j] = A[j], A[i] })
		rng.Shuffle(len(B), func(i, j int) { B[i], B[j] = B[j], B[i] })

		entries := Diff(A, B)
		got := map[string]Status{}
		for _, e := range entries {
			_, dup := got[e.ID]
			require.False(t, dup, "duplicate id %q", e.ID)
			got[e.ID] = e.Status
		}

		var union []string
		for _, id := range universe {
			if inA[id] || inB[id] {
				union = append(union, id)
			}
		}
		var keys []string
		for id := range got {
			keys = append(keys, id)
		}
		sort.Strings(keys)
		require.Equal(t, union, keys)

		for id, st := range got {
			switch {
			case inA[id] && inB[id]:
				assert.Equal(t, StatusOK, st, id)
			case inA[id]:
				assert.Equal(t, StatusDeleted, st, id)
			default:
				assert.Equal(t, StatusAdded, st, id)
			}
		}
	}
}

func TestDiff_DuplicateInputs(t *testing.T) {
	entries := Diff([]string{"a", "a", "b"}, []string{"b", "c", "c"})
	assert.Equal(t, []Entry{
		{ID: "a", Status: StatusDeleted},
		{ID: "b", Status: StatusOK},
		{ID: "c", Status: StatusAdded},
	}, entries)
}

func TestDiff_Empty(t *testing.T) {
	assert.Empty(t, Diff(nil, nil))
	assert.Equal(t, []Entry{{ID: "x", Status: StatusAdded}}, Diff(nil, []string{"x"}))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusOK, StatusFor(0))
	assert.Equal(t, StatusChanged, StatusFor(1))
}

func TestCount(t *testing.T) {
	entries := []Entry{
		{ID: "a", Status: StatusDeleted},
		{ID: "b", Status: StatusOK},
		{ID: "c", Status: StatusChanged},
		{ID: "d", Status: StatusAdded},
		{ID: "e", Status: StatusOK},
	}
	c := Count(entries)
	assert.Equal(t, Counts{OK: 2, Added: 1, Deleted: 1, Changed: 1}, c)
	assert.True(t, c.HasRegressions())
	assert.False(t, Counts{OK: 3}.HasRegressions())
	assert.Len(t, Filter(entries, StatusOK), 2)
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusChanged.Valid())
	assert.False(t, Status("moved").Valid())
}
