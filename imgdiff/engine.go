// CLAUDE:SUMMARY Pixel comparison engine over pixelmatch with a byte-identical fast path and PNG file helpers.
// Package imgdiff compares screenshots. Dimension reconciliation happens
// here; the per-pixel perceptual comparison is delegated to pixelmatch.
package imgdiff

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/orisano/pixelmatch"
	"golang.org/x/crypto/blake2b"
)

// DefaultThreshold is the per-pixel perceptual sensitivity used when none is
// configured. Lower is more sensitive.
const DefaultThreshold = 0.1

// ErrSizeMismatch is returned by Compare when the images were not reconciled.
var ErrSizeMismatch = errors.New("imgdiff: image dimensions differ")

// Result is the outcome of one comparison.
type Result struct {
	// Diff is the number of pixels pixelmatch reported as different.
	Diff int
	// Image marks the differing pixels. Nil when Diff is zero.
	Image image.Image
}

// Changed reports whether any pixel differs.
func (r Result) Changed() bool { return r.Diff > 0 }

// Engine compares image pairs at a fixed threshold. Safe for concurrent use.
type Engine struct {
	threshold float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the pixelmatch threshold. Values <= 0 keep the default.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// NewEngine creates an Engine with DefaultThreshold unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{threshold: DefaultThreshold}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Threshold returns the configured threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Compare counts differing pixels between two images of identical size.
// Callers with images of different sizes run Reconcile first.
func (e *Engine) Compare(baseline, feature image.Image) (res Result, err error) {
	bb, fb := baseline.Bounds(), feature.Bounds()
	if bb.Dx() != fb.Dx() || bb.Dy() != fb.Dy() {
		return Result{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, bb.Dx(), bb.Dy(), fb.Dx(), fb.Dy())
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fmt.Errorf("imgdiff: pixelmatch panic: %v", r)
		}
	}()

	var out image.Image
	n, err := pixelmatch.MatchPixel(baseline, feature,
		pixelmatch.Threshold(e.threshold),
		pixelmatch.WriteTo(&out))
	if err != nil {
		return Result{}, fmt.Errorf("imgdiff: match: %w", err)
	}

	res = Result{Diff: n}
	if n > 0 {
		res.Image = out
	}
	return res, nil
}

// CompareFiles compares two PNG files. Byte-identical files short-circuit
// to a zero diff without decoding.
func (e *Engine) CompareFiles(baselinePath, featurePath string) (Result, error) {
	a, err := os.ReadFile(baselinePath)
	if err != nil {
		return Result{}, fmt.Errorf("imgdiff: read baseline: %w", err)
	}
	b, err := os.ReadFile(featurePath)
	if err != nil {
		return Result{}, fmt.Errorf("imgdiff: read feature: %w", err)
	}
	if blake2b.Sum256(a) == blake2b.Sum256(b) {
		return Result{}, nil
	}

	ia, err := png.Decode(bytes.NewReader(a))
	if err != nil {
		return Result{}, fmt.Errorf("imgdiff: decode %s: %w", baselinePath, err)
	}
	ib, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return Result{}, fmt.Errorf("imgdiff: decode %s: %w", featurePath, err)
	}

	ra, rb := Reconcile(ia, ib)
	return e.Compare(ra, rb)
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("imgdiff: mkdir: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("imgdiff: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("imgdiff: write %s: %w", path, err)
	}
	return nil
}
