package visreg

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/shotdiff/imgdiff"
	"github.com/hazyhaar/shotdiff/visreg/internal/capture"
	"github.com/hazyhaar/shotdiff/visreg/internal/runner"
	"github.com/hazyhaar/shotdiff/visreg/internal/store"
)

var quiet = slog.New(slog.DiscardHandler)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func withSquare(w, h int) image.Image {
	img := solid(w, h, color.White).(*image.RGBA)
	draw.Draw(img, image.Rect(4, 4, 12, 12), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	return img
}

// fakeBranch is what the fake runner captures for one ref.
type fakeBranch struct {
	commit string
	shots  map[string]image.Image
	order  []string
	err    error
}

// fakeRunner writes screenshots the way the coordinator would.
type fakeRunner struct {
	root     string
	branches map[string]fakeBranch
	calls    []string
}

func (f *fakeRunner) Run(_ context.Context, branch string) (*runner.BranchRun, error) {
	f.calls = append(f.calls, branch)
	b, ok := f.branches[branch]
	if !ok {
		return nil, errors.New("unknown ref")
	}
	if b.err != nil {
		return &runner.BranchRun{Branch: branch, Commit: b.commit}, b.err
	}
	br := &runner.BranchRun{
		Branch:     branch,
		Commit:     b.commit,
		Version:    "7.6.17",
		Discovered: b.order,
		Started:    time.Now(),
	}
	for _, id := range b.order {
		path := filepath.Join(f.root, b.commit, id+".png")
		if err := imgdiff.WritePNG(path, b.shots[id]); err != nil {
			return nil, err
		}
		br.Outcomes = append(br.Outcomes, capture.Outcome{ID: id, Attempts: 1})
	}
	br.Finished = time.Now()
	return br, nil
}

type fakeGit struct {
	current   string
	checkouts []string
}

func (g *fakeGit) Current(context.Context) (string, error) { return g.current, nil }

func (g *fakeGit) Checkout(_ context.Context, ref string) error {
	g.checkouts = append(g.checkouts, ref)
	return nil
}

type fixture struct {
	cfg    *Config
	runner *fakeRunner
	git    *fakeGit
	ledger *Ledger
}

// newFixture sets up baseline {a,b,c} and feature {b,c,d} where b is
// unchanged and c gains a red square.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Repo = t.TempDir()
	cfg.Feature = "feature"
	cfg.Capture.Workers = 2

	white := solid(20, 20, color.White)
	fr := &fakeRunner{
		root: cfg.Path(cfg.ScreenshotsDir),
		branches: map[string]fakeBranch{
			"main": {
				commit: "c0ffee01",
				order:  []string{"a", "b", "c"},
				shots:  map[string]image.Image{"a": white, "b": white, "c": white},
			},
			"feature": {
				commit: "feed0002",
				order:  []string{"b", "c", "d"},
				shots:  map[string]image.Image{"b": white, "c": withSquare(20, 20), "d": white},
			},
		},
	}

	ledger, err := OpenLedger(cfg.Path(cfg.Database))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	return &fixture{cfg: cfg, runner: fr, git: &fakeGit{current: "topic"}, ledger: ledger}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(f.cfg, quiet,
		WithRunner(f.runner),
		WithGit(f.git),
		WithLedger(f.ledger),
		WithRunID(func() string { return "run1" }),
	)
	require.NoError(t, err)
	return p
}

func (f *fixture) run(t *testing.T) *Result {
	t.Helper()
	res, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestPipeline_Scenario(t *testing.T) {
	f := newFixture(t)
	res := f.run(t)

	require.Len(t, res.Entries, 4)
	byID := map[string]Entry{}
	for _, e := range res.Entries {
		byID[e.ID] = e
	}
	assert.Equal(t, StatusDeleted, byID["a"].Status)
	assert.Equal(t, StatusOK, byID["b"].Status)
	assert.Zero(t, byID["b"].PixelDiff)
	assert.Equal(t, StatusChanged, byID["c"].Status)
	assert.Positive(t, byID["c"].PixelDiff)
	assert.Equal(t, StatusAdded, byID["d"].Status)
	assert.Equal(t, Counts{OK: 1, Added: 1, Deleted: 1, Changed: 1}, res.Counts)

	assert.Equal(t, []string{"main", "feature"}, f.runner.calls)
	assert.Equal(t, []string{"topic"}, f.git.checkouts, "original ref restored")

	layout := layoutFor(f.cfg)
	assert.FileExists(t, layout.Diff("run1", "c"))
	assert.NoFileExists(t, layout.Diff("run1", "b"))
	for _, ext := range []string{"html", "json", "md"} {
		assert.FileExists(t, layout.Report("run1", ext))
	}
}

func TestPipeline_Ledger(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	ctx := context.Background()

	run, err := f.ledger.GetRun(ctx, "run1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, store.StatusDone, run.Status)
	assert.Equal(t, "c0ffee01", run.BaselineCommit)
	assert.Equal(t, "feed0002", run.FeatureCommit)
	assert.Equal(t, Counts{OK: 1, Added: 1, Deleted: 1, Changed: 1}, run.Counts)

	brs, err := f.ledger.BranchRuns(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, brs, 2)
	assert.Equal(t, store.SideBaseline, brs[0].Side)
	assert.Len(t, brs[0].Captures, 3)
	assert.Equal(t, 3, brs[1].Discovered)
}

func TestPipeline_PaddingAloneIsNoChange(t *testing.T) {
	f := newFixture(t)
	f.runner.branches["main"] = fakeBranch{
		commit: "c0ffee01",
		order:  []string{"x"},
		shots:  map[string]image.Image{"x": solid(100, 200, color.White)},
	}
	f.runner.branches["feature"] = fakeBranch{
		commit: "feed0002",
		order:  []string{"x"},
		shots:  map[string]image.Image{"x": solid(120, 180, color.White)},
	}

	res := f.run(t)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, StatusOK, res.Entries[0].Status)
	assert.Empty(t, res.Entries[0].Error)
}

func TestPipeline_CorruptScreenshotKeepsStatus(t *testing.T) {
	f := newFixture(t)
	res := f.run(t)
	require.Equal(t, StatusOK, res.Entries[1].Status)

	// Corrupt b on the feature side and compare again without recapturing.
	p := f.pipeline(t)
	layout := layoutFor(f.cfg)
	require.NoError(t, os.WriteFile(layout.Shot("feed0002", "b"), []byte("not a png"), 0o644))

	entries := []Entry{{ID: "b", Status: StatusOK}}
	require.NoError(t, p.compare(context.Background(), "run2", "c0ffee01", "feed0002", entries, quiet))
	assert.Equal(t, StatusOK, entries[0].Status)
	assert.NotEmpty(t, entries[0].Error)
}

func TestPipeline_BranchFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t)
	fb := f.runner.branches["feature"]
	fb.err = errors.New("explorer: server exited before reporting its port")
	f.runner.branches["feature"] = fb

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"topic"}, f.git.checkouts)

	run, err := f.ledger.GetRun(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "server exited")
}

func TestPipeline_NoFeature(t *testing.T) {
	f := newFixture(t)
	f.cfg.Feature = ""
	_, err := f.pipeline(t).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoFeature)
	assert.Empty(t, f.runner.calls)
}

func TestPipeline_WithoutLedger(t *testing.T) {
	f := newFixture(t)
	p, err := New(f.cfg, quiet, WithRunner(f.runner), WithGit(f.git))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Changed)
	assert.FileExists(t, p.ReportPath(res.RunID, "json"))
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.png")
	feat := filepath.Join(dir, "feat.png")
	require.NoError(t, imgdiff.WritePNG(base, solid(20, 20, color.White)))
	require.NoError(t, imgdiff.WritePNG(feat, withSquare(20, 20)))

	out := filepath.Join(dir, "out", "diff.png")
	res, err := CompareFiles(base, feat, 0, out)
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, res.Status)
	assert.Positive(t, res.PixelDiff)
	assert.Equal(t, imgdiff.DefaultThreshold, res.Threshold)
	assert.FileExists(t, out)

	res, err = CompareFiles(base, base, 0.05, "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.DiffPath)

	_, err = CompareFiles(base, feat, 2, "")
	assert.Error(t, err)
}
