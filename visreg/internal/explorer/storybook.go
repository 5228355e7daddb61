package explorer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
)

// Storybook drives the Storybook manager UI and its isolated story iframe.
// Version 6 renders stories into #root and puts the href on the sidebar
// node itself; version 7 and later use #storybook-root and a nested link.
type Storybook struct {
	version    string
	root       string
	nestedLink bool
}

// NewStorybook returns the dialect for the given Storybook version.
func NewStorybook(version string) (*Storybook, error) {
	major, err := MajorVersion(version)
	if err != nil {
		return nil, err
	}
	switch {
	case major < 6:
		return nil, fmt.Errorf("%w: storybook %s", ErrUnsupportedVersion, version)
	case major == 6:
		return &Storybook{version: version, root: "#root"}, nil
	default:
		return &Storybook{version: version, root: "#storybook-root", nestedLink: true}, nil
	}
}

var _ Explorer = (*Storybook)(nil)

// Version returns the Storybook version this dialect was built for.
func (s *Storybook) Version() string { return s.version }

// Root returns the CSS selector of the story root element.
func (s *Storybook) Root() string { return s.root }

const storyHrefsJS = `(nested) => Array.from(document.querySelectorAll('[data-nodetype="story"]'))
	.map((n) => {
		const el = nested ? n.querySelector('a') : n;
		return el ? el.getAttribute('href') : null;
	})
	.filter((h) => h !== null)`

// ListComponentIDs opens the manager UI, expands the whole sidebar and
// collects one ID per story link.
func (s *Storybook) ListComponentIDs(ctx context.Context, page Page, baseURL string) ([]string, error) {
	if err := page.Navigate(ctx, baseURL); err != nil {
		return nil, fmt.Errorf("explorer: open %s: %w", baseURL, err)
	}
	if err := page.WaitElement(ctx, `[data-nodetype="component"]`); err != nil {
		return nil, fmt.Errorf("explorer: wait sidebar: %w", err)
	}
	// Ctrl+Shift+ArrowDown expands every sidebar group.
	if err := page.Press(ctx, input.ControlLeft, input.ShiftLeft, input.ArrowDown); err != nil {
		return nil, fmt.Errorf("explorer: expand sidebar: %w", err)
	}

	var hrefs []string
	if err := page.Eval(ctx, storyHrefsJS, &hrefs, s.nestedLink); err != nil {
		return nil, fmt.Errorf("explorer: collect stories: %w", err)
	}
	return StoryIDs(hrefs), nil
}

// StoryIDs maps sidebar hrefs to story IDs (their last path segment),
// dropping empties and duplicates while keeping order.
func StoryIDs(hrefs []string) []string {
	ids := make([]string, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, h := range hrefs {
		h = strings.TrimRight(h, "/")
		id := h[strings.LastIndex(h, "/")+1:]
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// ComponentURL is the isolated story page of id.
func ComponentURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/iframe.html?viewMode=story&id=" + url.QueryEscape(id)
}

// GoToComponent navigates to the story and waits for its root element.
func (s *Storybook) GoToComponent(ctx context.Context, page Page, baseURL, id string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	target := ComponentURL(baseURL, id)
	if err := page.Navigate(ctx, target); err != nil {
		return fmt.Errorf("explorer: open %s: %w", id, err)
	}
	if err := page.WaitElement(ctx, s.root); err != nil {
		return fmt.Errorf("explorer: wait %s in %s: %w", s.root, id, err)
	}
	return nil
}

type box struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

const bodyBoxJS = `() => {
	const r = document.body.getBoundingClientRect();
	return { width: Math.ceil(r.width), height: Math.ceil(r.height) };
}`

// FitViewport sizes the viewport to the body's bounding box.
func (s *Storybook) FitViewport(ctx context.Context, page Page) error {
	var b box
	if err := page.Eval(ctx, bodyBoxJS, &b); err != nil {
		return fmt.Errorf("explorer: measure body: %w", err)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return nil
	}
	if err := page.SetViewport(ctx, b.Width, b.Height); err != nil {
		return fmt.Errorf("explorer: set viewport %dx%d: %w", b.Width, b.Height, err)
	}
	return nil
}

const renderedJS = `(root) => {
	const el = document.querySelector(root);
	return !!el && el.children.length > 0 &&
		el.children[0].textContent.indexOf('Loading...') === -1;
}`

const imagesSettledJS = `() => Promise.all(Array.from(document.querySelectorAll('img')).map((img) => {
	if (img.complete) return true;
	return new Promise((resolve) => {
		img.addEventListener('load', () => resolve(true));
		img.addEventListener('error', () => resolve(false));
	});
})).then(() => true)`

// AwaitReady waits for the story to replace its loading placeholder and for
// every image to finish loading or fail.
func (s *Storybook) AwaitReady(ctx context.Context, page Page) error {
	if err := page.WaitTrue(ctx, renderedJS, s.root); err != nil {
		return fmt.Errorf("explorer: wait rendered: %w", err)
	}
	if err := page.Eval(ctx, imagesSettledJS, nil); err != nil {
		return fmt.Errorf("explorer: wait images: %w", err)
	}
	return nil
}
