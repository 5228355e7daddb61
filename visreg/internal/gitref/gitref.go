// Package gitref is a thin wrapper over the git CLI for switching the
// working tree between the refs being compared.
package gitref

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Client runs git in one repository.
type Client struct {
	dir    string
	logger *slog.Logger
}

// New returns a Client for the repository at dir.
func New(dir string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{dir: dir, logger: logger}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir

	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), " \t\r\n")
	if err != nil {
		return output, fmt.Errorf("gitref: git %s: %s: %w", strings.Join(args, " "), output, err)
	}
	return output, nil
}

// Resolve returns the full commit hash ref points to.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "-") {
		return "", fmt.Errorf("gitref: invalid ref %q", ref)
	}
	return c.run(ctx, "rev-parse", "--verify", ref+"^{commit}")
}

// Checkout switches the working tree to ref.
func (c *Client) Checkout(ctx context.Context, ref string) error {
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("gitref: invalid ref %q", ref)
	}
	if _, err := c.run(ctx, "checkout", "--quiet", ref); err != nil {
		return err
	}
	c.logger.Info("gitref: checked out", "ref", ref)
	return nil
}

// Current returns the checked-out branch name, or the commit hash when
// HEAD is detached.
func (c *Client) Current(ctx context.Context) (string, error) {
	name, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if name != "HEAD" {
		return name, nil
	}
	return c.run(ctx, "rev-parse", "HEAD")
}
