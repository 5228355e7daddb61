// CLAUDE:SUMMARY Per-page capture loop: navigate, stabilize and screenshot each assigned component with escalating retries.
// Package capture screenshots components concurrently: a Scheduler splits
// the component list across Workers, each driving its own browser page.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/shotdiff/visreg/internal/explorer"
)

// ErrStoreWrite wraps a failure to persist a screenshot. It aborts the run.
var ErrStoreWrite = errors.New("capture: store write failed")

// Policy is the per-component retry policy.
type Policy struct {
	// FirstTimeout bounds the first navigation attempt. Default: 30s.
	FirstTimeout time.Duration
	// RetryTimeout bounds every later attempt. Default: 60s.
	RetryTimeout time.Duration
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
}

// DefaultPolicy returns 30s / 60s / 3 retries.
func DefaultPolicy() Policy {
	return Policy{FirstTimeout: 30 * time.Second, RetryTimeout: 60 * time.Second, MaxRetries: 3}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.FirstTimeout <= 0 {
		p.FirstTimeout = d.FirstTimeout
	}
	if p.RetryTimeout <= 0 {
		p.RetryTimeout = d.RetryTimeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Saver persists one screenshot per component ID.
type Saver interface {
	Save(ctx context.Context, id string, png []byte) error
}

// Outcome describes one processed component.
type Outcome struct {
	ID string `json:"id"`
	// Attempts is the number of navigation attempts (retries + 1).
	Attempts int `json:"attempts"`
	// Degraded is set when the screenshot was taken without a successful
	// navigation or stabilization.
	Degraded bool `json:"degraded,omitempty"`
}

// Worker captures a slice of components on one page, strictly in order.
type Worker struct {
	index    int
	page     explorer.Page
	explorer explorer.Explorer
	baseURL  string
	saver    Saver
	policy   Policy
	logger   *slog.Logger

	done []Outcome
}

// Outcomes returns the components processed so far, in capture order.
func (w *Worker) Outcomes() []Outcome { return w.done }

// Run captures ids in order. A component whose screenshot cannot be taken
// is skipped; only ErrStoreWrite and context errors stop the loop.
func (w *Worker) Run(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := w.capture(ctx, id)
		switch {
		case err == nil:
			w.done = append(w.done, out)
		case errors.Is(err, ErrStoreWrite), ctx.Err() != nil:
			return err
		default:
			w.logger.Warn("capture: screenshot failed", "worker", w.index, "id", id, "error", err)
		}
	}
	return nil
}

func (w *Worker) capture(ctx context.Context, id string) (Outcome, error) {
	log := w.logger.With("worker", w.index, "id", id)
	out := Outcome{ID: id, Attempts: 1}

	timeout := w.policy.FirstTimeout
	for retries := 0; ; retries++ {
		out.Attempts = retries + 1
		err := w.explorer.GoToComponent(ctx, w.page, w.baseURL, id, timeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if retries >= w.policy.MaxRetries {
			log.Warn("capture: retries exhausted, capturing as is", "attempts", out.Attempts, "error", err)
			out.Degraded = true
			break
		}
		timeout = w.policy.RetryTimeout
		log.Info("capture: retrying", "attempt", out.Attempts+1, "timeout", timeout, "error", err)
	}

	if !out.Degraded {
		if err := w.stabilize(ctx); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			log.Warn("capture: not stable, capturing as is", "error", err)
			out.Degraded = true
		}
	}

	png, err := w.page.Screenshot(ctx)
	if err != nil {
		return out, fmt.Errorf("capture: screenshot %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if err := w.saver.Save(ctx, id, png); err != nil {
		return out, fmt.Errorf("%w: %s: %w", ErrStoreWrite, id, err)
	}
	log.Debug("capture: saved", "attempts", out.Attempts, "degraded", out.Degraded, "bytes", len(png))
	return out, nil
}

func (w *Worker) stabilize(ctx context.Context) error {
	if err := w.explorer.FitViewport(ctx, w.page); err != nil {
		return err
	}
	return w.explorer.AwaitReady(ctx, w.page)
}
