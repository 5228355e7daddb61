package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/shotdiff/visreg/internal/explorer"
)

var errNav = errors.New("navigation timeout")

type fakePage struct {
	current string
	shotErr map[string]error
	closed  bool
}

func (p *fakePage) Navigate(context.Context, string) error { return nil }
func (p *fakePage) WaitElement(context.Context, string) error { return nil }
func (p *fakePage) WaitTrue(context.Context, string, ...any) error { return nil }
func (p *fakePage) Eval(context.Context, string, any, ...any) error { return nil }
func (p *fakePage) Press(context.Context, ...input.Key) error { return nil }
func (p *fakePage) SetViewport(context.Context, int, int) error { return nil }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	if err := p.shotErr[p.current]; err != nil {
		return nil, err
	}
	return []byte("png:" + p.current), nil
}

// fakeExplorer fails navigation a configured number of times per ID.
type fakeExplorer struct {
	mu       sync.Mutex
	failures map[string]int
	timeouts map[string][]time.Duration
	unstable map[string]bool
	panicOn  string
}

func newFakeExplorer() *fakeExplorer {
	return &fakeExplorer{
		failures: map[string]int{},
		timeouts: map[string][]time.Duration{},
		unstable: map[string]bool{},
	}
}

func (e *fakeExplorer) ListComponentIDs(context.Context, explorer.Page, string) ([]string, error) {
	return nil, nil
}

func (e *fakeExplorer) GoToComponent(_ context.Context, page explorer.Page, _, id string, timeout time.Duration) error {
	if id == e.panicOn {
		panic("renderer crashed on " + id)
	}
	page.(*fakePage).current = id
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeouts[id] = append(e.timeouts[id], timeout)
	if e.failures[id] > 0 {
		e.failures[id]--
		return errNav
	}
	return nil
}

func (e *fakeExplorer) FitViewport(context.Context, explorer.Page) error { return nil }

func (e *fakeExplorer) AwaitReady(_ context.Context, page explorer.Page) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unstable[page.(*fakePage).current] {
		return errors.New("still loading")
	}
	return nil
}

type fakeSaver struct {
	mu     sync.Mutex
	files  map[string][]byte
	writes map[string]int
	err    error
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{files: map[string][]byte{}, writes: map[string]int{}}
}

func (s *fakeSaver) Save(_ context.Context, id string, png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.files[id] = png
	s.writes[id]++
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	pages   []*fakePage
	err     error
	shotErr map[string]error
}

func (o *fakeOpener) OpenPage(context.Context) (explorer.Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	p := &fakePage{shotErr: o.shotErr}
	o.pages = append(o.pages, p)
	return p, nil
}

var testPolicy = Policy{FirstTimeout: time.Second, RetryTimeout: 2 * time.Second, MaxRetries: 3}

func newTestScheduler(exp *fakeExplorer, saver *fakeSaver, opener *fakeOpener, workers int) *Scheduler {
	return NewScheduler(Config{
		Opener:   opener,
		Explorer: exp,
		BaseURL:  "http://localhost:6006",
		Saver:    saver,
		Policy:   testPolicy,
		Workers:  workers,
	})
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func TestWorker_RetryThenSuccess(t *testing.T) {
	for k := 0; k <= testPolicy.MaxRetries; k++ {
		t.Run(fmt.Sprintf("failures=%d", k), func(t *testing.T) {
			exp := newFakeExplorer()
			exp.failures["button--primary"] = k
			saver := newFakeSaver()

			res, err := newTestScheduler(exp, saver, &fakeOpener{}, 1).Run(context.Background(), []string{"button--primary"})
			require.NoError(t, err)

			require.Len(t, res.Outcomes, 1)
			assert.Equal(t, Outcome{ID: "button--primary", Attempts: k + 1}, res.Outcomes[0])
			assert.Empty(t, res.Unprocessed)
			assert.Equal(t, 1, saver.writes["button--primary"], "exactly one file")

			// WHY: the first attempt gets the short timeout, every retry the long one.
			want := []time.Duration{time.Second}
			for range k {
				want = append(want, 2*time.Second)
			}
			assert.Equal(t, want, exp.timeouts["button--primary"])
		})
	}
}

func TestWorker_RetriesExhausted(t *testing.T) {
	for _, failures := range []int{testPolicy.MaxRetries + 1, 50} {
		exp := newFakeExplorer()
		exp.failures["card"] = failures
		saver := newFakeSaver()

		res, err := newTestScheduler(exp, saver, &fakeOpener{}, 1).Run(context.Background(), []string{"card", "next"})
		require.NoError(t, err)

		require.Len(t, res.Outcomes, 2)
		assert.Equal(t, Outcome{ID: "card", Attempts: testPolicy.MaxRetries + 1, Degraded: true}, res.Outcomes[0])
		assert.Equal(t, Outcome{ID: "next", Attempts: 1}, res.Outcomes[1])
		assert.Equal(t, 1, saver.writes["card"])
		assert.Len(t, exp.timeouts["card"], testPolicy.MaxRetries+1)
	}
}

func TestWorker_UnstableCapturedDegraded(t *testing.T) {
	exp := newFakeExplorer()
	exp.unstable["spinner"] = true
	saver := newFakeSaver()

	res, err := newTestScheduler(exp, saver, &fakeOpener{}, 1).Run(context.Background(), []string{"spinner"})
	require.NoError(t, err)
	assert.Equal(t, []Outcome{{ID: "spinner", Attempts: 1, Degraded: true}}, res.Outcomes)
	assert.Equal(t, []byte("png:spinner"), saver.files["spinner"])
}

func TestWorker_ScreenshotFailureLeavesUnprocessed(t *testing.T) {
	exp := newFakeExplorer()
	saver := newFakeSaver()
	opener := &fakeOpener{shotErr: map[string]error{"b": errors.New("target closed")}}

	res, err := newTestScheduler(exp, saver, opener, 1).Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, res.Processed())
	assert.Equal(t, []string{"b"}, res.Unprocessed)
	assert.NotContains(t, saver.files, "b")
}

func TestScheduler_StoreWriteAborts(t *testing.T) {
	saver := newFakeSaver()
	saver.err = errors.New("disk full")

	res, err := newTestScheduler(newFakeExplorer(), saver, &fakeOpener{}, 2).Run(context.Background(), ids("c", 4))
	require.ErrorIs(t, err, ErrStoreWrite)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, res.Outcomes)
	assert.Len(t, res.Unprocessed, 4)
}

func TestScheduler_AllProcessed(t *testing.T) {
	exp := newFakeExplorer()
	saver := newFakeSaver()
	opener := &fakeOpener{}
	all := ids("story-", 10)

	res, err := newTestScheduler(exp, saver, opener, 3).Run(context.Background(), all)
	require.NoError(t, err)

	assert.Equal(t, all, res.Processed(), "worker order then slice order is input order")
	assert.Empty(t, res.Unprocessed)
	assert.Len(t, opener.pages, 3)
	for _, id := range all {
		assert.Equal(t, 1, saver.writes[id], id)
		assert.Equal(t, []byte("png:"+id), saver.files[id])
	}
	for _, p := range opener.pages {
		assert.True(t, p.closed, "every page is closed")
	}
}

func TestScheduler_NoPagesForNoWork(t *testing.T) {
	opener := &fakeOpener{}
	res, err := newTestScheduler(newFakeExplorer(), newFakeSaver(), opener, 4).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, opener.pages)

	// Two IDs over four workers opens two pages, not four.
	_, err = newTestScheduler(newFakeExplorer(), newFakeSaver(), opener, 4).Run(context.Background(), ids("x", 2))
	require.NoError(t, err)
	assert.Len(t, opener.pages, 2)
}

func TestScheduler_PanicIsolated(t *testing.T) {
	exp := newFakeExplorer()
	exp.panicOn = "a2"
	saver := newFakeSaver()
	all := append(ids("a", 4), ids("b", 4)...)

	res, err := newTestScheduler(exp, saver, &fakeOpener{}, 2).Run(context.Background(), all)
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "b1", "b2", "b3", "b4"}, res.Processed())
	assert.Equal(t, []string{"a2", "a3", "a4"}, res.Unprocessed)
}

func TestScheduler_OpenPageFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("browser gone")}

	res, err := newTestScheduler(newFakeExplorer(), newFakeSaver(), opener, 2).Run(context.Background(), ids("c", 3))
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, ids("c", 3), res.Unprocessed)
}

func TestScheduler_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestScheduler(newFakeExplorer(), newFakeSaver(), &fakeOpener{}, 2).Run(ctx, ids("c", 3))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ids("c", 3), res.Unprocessed)
}

func TestPartition(t *testing.T) {
	for n := 0; n <= 40; n++ {
		for w := 1; w <= 12; w++ {
			spans := Partition(n, w)
			size := (n + w - 1) / w

			assert.LessOrEqual(t, len(spans), w, "n=%d w=%d", n, w)
			next := 0
			for _, sp := range spans {
				assert.Equal(t, next, sp.Start, "contiguous n=%d w=%d", n, w)
				assert.Greater(t, sp.End, sp.Start, "non-empty n=%d w=%d", n, w)
				assert.LessOrEqual(t, sp.End-sp.Start, size)
				next = sp.End
			}
			assert.Equal(t, n, next, "covers all n=%d w=%d", n, w)
		}
	}

	assert.Equal(t, []Span{{0, 4}, {4, 8}, {8, 10}}, Partition(10, 3))
	assert.Equal(t, []Span{{0, 3}}, Partition(3, 0))
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}

func TestPolicyNormalized(t *testing.T) {
	assert.Equal(t, DefaultPolicy().FirstTimeout, Policy{}.normalized().FirstTimeout)
	assert.Equal(t, 0, Policy{MaxRetries: -2}.normalized().MaxRetries)
}
