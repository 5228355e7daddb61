package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// freezeCSS stops everything that would make two screenshots of the same
// component differ.
const freezeCSS = `*, *::before, *::after {
	animation: none !important;
	transition: none !important;
	caret-color: transparent !important;
}`

// Tab is one Chrome page owned by a single capture worker.
type Tab struct {
	page   *rod.Page
	router *rod.HijackRouter
	logger *slog.Logger
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

// WaitElement waits until selector matches.
func (t *Tab) WaitElement(ctx context.Context, selector string) error {
	if _, err := t.page.Context(ctx).Element(selector); err != nil {
		return fmt.Errorf("browser: wait %s: %w", selector, err)
	}
	return nil
}

// WaitTrue polls js until it returns a truthy value.
func (t *Tab) WaitTrue(ctx context.Context, js string, args ...any) error {
	if err := t.page.Context(ctx).Wait(rod.Eval(js, args...)); err != nil {
		return fmt.Errorf("browser: wait condition: %w", err)
	}
	return nil
}

// Eval runs js, awaiting a returned promise, and decodes its value into out.
func (t *Tab) Eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return fmt.Errorf("browser: eval result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("browser: decode eval result: %w", err)
	}
	return nil
}

// Press holds every key but the last, types the last, then releases.
func (t *Tab) Press(ctx context.Context, keys ...input.Key) error {
	if len(keys) == 0 {
		return nil
	}
	ka := t.page.Context(ctx).KeyActions()
	if len(keys) > 1 {
		ka = ka.Press(keys[:len(keys)-1]...)
	}
	if err := ka.Type(keys[len(keys)-1]).Do(); err != nil {
		return fmt.Errorf("browser: press: %w", err)
	}
	return nil
}

// SetViewport resizes the layout viewport at a device scale factor of 1.
func (t *Tab) SetViewport(ctx context.Context, width, height int) error {
	err := t.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("browser: viewport: %w", err)
	}
	return nil
}

// Screenshot captures the full page as PNG with animations disabled.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	p := t.page.Context(ctx)
	if err := p.AddStyleTag("", freezeCSS); err != nil {
		t.logger.Debug("browser: freeze styles", "error", err)
	}
	png, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return png, nil
}

// Close stops request interception and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			t.logger.Debug("browser: stop router", "error", err)
		}
	}
	return t.page.Close()
}
