// CLAUDE:SUMMARY Component explorer abstraction: launcher, server handle, generic page automation and the per-tool Explorer dialect.
// Package explorer abstracts the component preview tool (Storybook) behind
// three capabilities: launching its dev server, listing the components it
// serves, and bringing one component's page to a ready state.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/input"
)

var (
	// ErrStartupTimeout is returned when the server did not report its port in time.
	ErrStartupTimeout = errors.New("explorer: server startup timed out")
	// ErrServerExited is returned when the server process exited before it was ready.
	ErrServerExited = errors.New("explorer: server exited before ready")
	// ErrUnsupportedVersion is returned for explorer versions without a dialect.
	ErrUnsupportedVersion = errors.New("explorer: unsupported version")
)

// Page is the browser automation surface an Explorer needs. The browser
// package implements it on top of go-rod; tests use fakes.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// WaitElement blocks until selector matches an element.
	WaitElement(ctx context.Context, selector string) error
	// WaitTrue polls the JS function js until it returns true.
	WaitTrue(ctx context.Context, js string, args ...any) error
	// Eval runs the JS function js, awaits a returned promise and decodes the
	// result into out (which may be nil).
	Eval(ctx context.Context, js string, out any, args ...any) error
	// Press holds every key but the last and types the last one.
	Press(ctx context.Context, keys ...input.Key) error
	// SetViewport resizes the page viewport.
	SetViewport(ctx context.Context, width, height int) error
	// Screenshot captures a full-page PNG with animations disabled.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Explorer is one preview tool dialect.
type Explorer interface {
	// ListComponentIDs returns the component IDs served at baseURL in
	// catalog order.
	ListComponentIDs(ctx context.Context, page Page, baseURL string) ([]string, error)
	// GoToComponent opens the isolated page of id and waits for its root
	// element, giving up after timeout.
	GoToComponent(ctx context.Context, page Page, baseURL, id string, timeout time.Duration) error
	// FitViewport resizes the viewport to the rendered component.
	FitViewport(ctx context.Context, page Page) error
	// AwaitReady blocks until the component has rendered and its images settled.
	AwaitReady(ctx context.Context, page Page) error
}

// Launcher starts a preview server for the working tree.
type Launcher interface {
	Start(ctx context.Context) (*Server, error)
}

// Server is a running preview server.
type Server struct {
	Port    int
	Version string
	URL     string

	stop func() error
}

// NewServer returns a handle for a server listening on localhost:port.
// stop may be nil.
func NewServer(port int, version string, stop func() error) *Server {
	return &Server{
		Port:    port,
		Version: version,
		URL:     fmt.Sprintf("http://localhost:%d", port),
		stop:    stop,
	}
}

// Stop terminates the server process. Safe to call more than once.
func (s *Server) Stop() error {
	if s == nil || s.stop == nil {
		return nil
	}
	stop := s.stop
	s.stop = nil
	return stop()
}
