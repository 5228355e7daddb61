// CLAUDE:SUMMARY CLI entry point for shotdiff: signal handling, child-process cleanup and exit codes around the cobra command tree.
// Command shotdiff captures every component of a Storybook catalog on two
// git refs and reports the visual differences.
//
// Usage:
//
//	shotdiff run --feature my-branch          # capture main and my-branch, diff, report
//	shotdiff compare a.png b.png --out d.png  # diff two screenshots
//	shotdiff history                          # list recorded runs
//	shotdiff serve --addr :8086               # browse runs and images
//	shotdiff mcp                              # MCP tools over stdio
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(execute())
}

func execute() (code int) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a := &app{}
	defer func() {
		if r := recover(); r != nil {
			a.shutdown()
			fmt.Fprintf(os.Stderr, "shotdiff: panic: %v\n", r)
			code = 1
		}
	}()
	defer a.shutdown()

	err := newRootCommand(a).ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if ctx.Err() != nil {
		a.log().Info("shotdiff: interrupted")
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "shotdiff: %v\n", err)
	return 1
}

// exitError carries a specific exit status out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
