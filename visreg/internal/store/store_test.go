package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/shotdiff/dbopen"
	"github.com/hazyhaar/shotdiff/visreg/internal/changeset"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func seedRun(t *testing.T, s *Store, id string, startedAt int64) *Run {
	t.Helper()
	r := &Run{ID: id, BaselineBranch: "main", FeatureBranch: "feature", Threshold: 0.1, StartedAt: startedAt}
	if err := s.CreateRun(context.Background(), r); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return r
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", 1000)

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != StatusRunning {
		t.Fatalf("get: got %+v, want running run", got)
	}

	for _, side := range []struct {
		side   Side
		branch string
		commit string
	}{
		{SideBaseline, "main", "c0ffee"},
		{SideFeature, "feature", "beef42"},
	} {
		br := &BranchRun{
			RunID: "run-1", Side: side.side, Branch: side.branch, Commit: side.commit,
			Version: "7.6.17", Discovered: 3, Unprocessed: []string{"slow"},
			StartedAt: 1000, FinishedAt: 2000,
			Captures: []Capture{{ComponentID: "a", Attempts: 1}, {ComponentID: "b", Attempts: 4, Degraded: true}},
		}
		if err := s.RecordBranchRun(ctx, br); err != nil {
			t.Fatalf("record %s: %v", side.side, err)
		}
		if br.ID == "" {
			t.Errorf("record %s: ID not assigned", side.side)
		}
	}

	entries := []changeset.Entry{
		{ID: "b", Status: changeset.StatusOK},
		{ID: "c", Status: changeset.StatusChanged, PixelDiff: 42},
		{ID: "a", Status: changeset.StatusDeleted},
		{ID: "d", Status: changeset.StatusAdded},
		{ID: "e", Status: changeset.StatusOK, Error: "decode feature: unexpected EOF"},
	}
	if err := s.RecordChanges(ctx, "run-1", entries); err != nil {
		t.Fatalf("record changes: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", nil); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDone || got.FinishedAt == 0 {
		t.Errorf("Status: got %q finished_at=%d, want done", got.Status, got.FinishedAt)
	}
	if got.BaselineCommit != "c0ffee" || got.FeatureCommit != "beef42" {
		t.Errorf("commits: got %q/%q", got.BaselineCommit, got.FeatureCommit)
	}
	want := changeset.Counts{OK: 2, Added: 1, Deleted: 1, Changed: 1}
	if got.Counts != want {
		t.Errorf("Counts: got %+v, want %+v", got.Counts, want)
	}

	all, err := s.Changes(ctx, "run-1", "")
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(all) != len(entries) {
		t.Fatalf("changes: got %d entries, want %d", len(all), len(entries))
	}
	for i := range entries {
		if all[i] != entries[i] {
			t.Errorf("changes[%d]: got %+v, want %+v", i, all[i], entries[i])
		}
	}

	changed, err := s.Changes(ctx, "run-1", changeset.StatusChanged)
	if err != nil {
		t.Fatalf("changes filtered: %v", err)
	}
	if len(changed) != 1 || changed[0].ID != "c" || changed[0].PixelDiff != 42 {
		t.Errorf("changed: got %+v", changed)
	}

	brs, err := s.BranchRuns(ctx, "run-1")
	if err != nil {
		t.Fatalf("branch runs: %v", err)
	}
	if len(brs) != 2 || brs[0].Side != SideBaseline || brs[1].Side != SideFeature {
		t.Fatalf("branch runs: got %+v", brs)
	}
	if len(brs[1].Captures) != 2 || !brs[1].Captures[1].Degraded || brs[1].Captures[1].Attempts != 4 {
		t.Errorf("captures: got %+v", brs[1].Captures)
	}
	if len(brs[0].Unprocessed) != 1 || brs[0].Unprocessed[0] != "slow" {
		t.Errorf("unprocessed: got %v", brs[0].Unprocessed)
	}
}

func TestRecordChanges_Replaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", 1000)

	first := []changeset.Entry{{ID: "a", Status: changeset.StatusOK}, {ID: "b", Status: changeset.StatusOK}}
	if err := s.RecordChanges(ctx, "run-1", first); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := []changeset.Entry{{ID: "a", Status: changeset.StatusChanged, PixelDiff: 3}}
	if err := s.RecordChanges(ctx, "run-1", second); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	got, err := s.Changes(ctx, "run-1", "")
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(got) != 1 || got[0] != second[0] {
		t.Errorf("changes: got %+v, want %+v", got, second)
	}
}

func TestFinishRun_Failed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", 1000)

	if err := s.FinishRun(ctx, "run-1", errors.New("explorer: server startup timed out")); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "explorer: server startup timed out" {
		t.Errorf("got status=%q error=%q", got.Status, got.Error)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-a", 1000)
	seedRun(t, s, "run-b", 3000)
	seedRun(t, s, "run-c", 2000)

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-c" {
		t.Errorf("list: got %v", ids(runs))
	}

	runs, err = s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list default: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("list default: got %d runs, want 3", len(runs))
	}
}

func TestGetRun_Missing(t *testing.T) {
	s := testStore(t)
	got, err := s.GetRun(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("GetRun(missing): got %+v, %v; want nil, nil", got, err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shotdiff.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	seedRun(t, s, "run-1", 1000)

	// Reopening applies the schema idempotently.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetRun(context.Background(), "run-1")
	if err != nil || got == nil {
		t.Fatalf("reopen get: %+v, %v", got, err)
	}
}

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
