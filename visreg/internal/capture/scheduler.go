package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/shotdiff/visreg/internal/explorer"
)

// Opener opens one browser page per worker.
type Opener interface {
	OpenPage(ctx context.Context) (explorer.Page, error)
}

// Config configures a Scheduler.
type Config struct {
	Opener   Opener
	Explorer explorer.Explorer
	BaseURL  string
	Saver    Saver
	Policy   Policy
	// Workers is the number of concurrent pages. Default: DefaultWorkers().
	Workers int
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
	c.Policy = c.Policy.normalized()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// DefaultWorkers is a third of the logical CPUs, rounded up.
func DefaultWorkers() int {
	return max(1, (runtime.NumCPU()+2)/3)
}

// Span is a half-open index range [Start, End).
type Span struct {
	Start, End int
}

// Partition splits n items into contiguous spans of ceil(n/workers) items,
// the last possibly shorter. No span is empty.
func Partition(n, workers int) []Span {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	spans := make([]Span, 0, workers)
	for start := 0; start < n; start += size {
		spans = append(spans, Span{Start: start, End: min(start+size, n)})
	}
	return spans
}

// Result aggregates every worker's outcome.
type Result struct {
	// Outcomes in worker order, then capture order.
	Outcomes []Outcome
	// Unprocessed IDs in input order: components a worker never reached
	// because it failed, or whose screenshot could not be taken.
	Unprocessed []string
}

// Processed returns the IDs of Outcomes.
func (r *Result) Processed() []string {
	ids := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		ids[i] = o.ID
	}
	return ids
}

// Scheduler runs Workers concurrently over a component list.
type Scheduler struct {
	cfg Config
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{cfg: cfg}
}

// Run captures every id and waits for all workers. A failing worker does
// not stop its siblings; its remaining IDs end up in Unprocessed. The
// returned error is non-nil only for ErrStoreWrite or cancellation, and
// the partial Result is returned alongside it.
func (s *Scheduler) Run(ctx context.Context, ids []string) (*Result, error) {
	spans := Partition(len(ids), s.cfg.Workers)
	workers := make([]*Worker, len(spans))

	s.cfg.Logger.Info("capture: starting", "components", len(ids), "workers", len(spans))

	var g errgroup.Group
	for i, sp := range spans {
		w := &Worker{
			index:    i,
			explorer: s.cfg.Explorer,
			baseURL:  s.cfg.BaseURL,
			saver:    s.cfg.Saver,
			policy:   s.cfg.Policy,
			logger:   s.cfg.Logger,
		}
		workers[i] = w
		g.Go(func() error {
			return s.runWorker(ctx, w, ids[sp.Start:sp.End])
		})
	}
	err := g.Wait()

	res := &Result{}
	for i, sp := range spans {
		done := workers[i].Outcomes()
		res.Outcomes = append(res.Outcomes, done...)
		seen := make(map[string]struct{}, len(done))
		for _, o := range done {
			seen[o.ID] = struct{}{}
		}
		for _, id := range ids[sp.Start:sp.End] {
			if _, ok := seen[id]; !ok {
				res.Unprocessed = append(res.Unprocessed, id)
			}
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err == nil {
		err = ctxErr
	}
	return res, err
}

// runWorker opens the worker's page and runs it, converting every failure
// except ErrStoreWrite and cancellation into unprocessed IDs.
func (s *Scheduler) runWorker(ctx context.Context, w *Worker, ids []string) (err error) {
	log := s.cfg.Logger.With("worker", w.index)
	defer func() {
		if r := recover(); r != nil {
			log.Error("capture: worker panic", "panic", fmt.Sprint(r), "captured", len(w.done), "assigned", len(ids))
			err = nil
		}
	}()

	page, err := s.cfg.Opener.OpenPage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("capture: open page", "error", err, "assigned", len(ids))
		return nil
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Debug("capture: close page", "error", cerr)
		}
	}()
	w.page = page

	if err := w.Run(ctx, ids); err != nil {
		if errors.Is(err, ErrStoreWrite) || ctx.Err() != nil {
			return err
		}
		log.Error("capture: worker failed", "error", err)
	}
	log.Debug("capture: worker done", "captured", len(w.done), "assigned", len(ids))
	return nil
}
