package explorer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/hazyhaar/shotdiff/visreg/internal/procs"
)

// DefaultCommand starts the Storybook dev server of an npm project.
var DefaultCommand = []string{"npm", "run", "storybook", "dev", "--", "--ci", "--no-open", "--disable-telemetry"}

// LaunchConfig configures a ProcessLauncher.
type LaunchConfig struct {
	// Command and arguments. Default: DefaultCommand.
	Command []string
	// Dir is the working directory, normally the repository root.
	Dir string
	// Version skips version detection; the server is ready as soon as its
	// port is known.
	Version string
	// StartupTimeout bounds the wait for port and version. Default: 3m.
	StartupTimeout time.Duration
	// StopGrace is how long Stop waits after SIGTERM before SIGKILL. Default: 5s.
	StopGrace time.Duration

	Registry *procs.Registry
	Logger   *slog.Logger
}

func (c *LaunchConfig) defaults() {
	if len(c.Command) == 0 {
		c.Command = DefaultCommand
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 3 * time.Minute
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Registry == nil {
		c.Registry = procs.NewRegistry(c.Logger)
	}
}

// ProcessLauncher runs the preview server as a child process and learns
// its port and version from its output.
type ProcessLauncher struct {
	cfg LaunchConfig
}

// NewLauncher creates a ProcessLauncher.
func NewLauncher(cfg LaunchConfig) *ProcessLauncher {
	cfg.defaults()
	return &ProcessLauncher{cfg: cfg}
}

type serverInfo struct {
	port    int
	version string
}

// Start spawns the server and blocks until it reports port and version,
// the process exits, StartupTimeout elapses or ctx is cancelled. On any
// failure the process group is killed.
func (l *ProcessLauncher) Start(ctx context.Context) (*Server, error) {
	log := l.cfg.Logger

	cmd := exec.Command(l.cfg.Command[0], l.cfg.Command[1:]...)
	cmd.Dir = l.cfg.Dir
	cmd.Env = append(os.Environ(), "CI=true")

	// The child writes to a plain pipe so Wait does not block on output
	// still held by grandchildren.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("explorer: pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	proc, err := l.cfg.Registry.Start(cmd)
	pw.Close()
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("explorer: start: %w", err)
	}
	log.Info("explorer: server starting", "pid", proc.Pid(), "cmd", l.cfg.Command, "dir", l.cfg.Dir)

	ready := make(chan serverInfo, 1)
	go l.watch(pr, ready)

	stop := func() error {
		log.Info("explorer: stopping server", "pid", proc.Pid())
		return proc.Stop(l.cfg.StopGrace)
	}

	timer := time.NewTimer(l.cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case info := <-ready:
		log.Info("explorer: server ready", "port", info.port, "version", info.version)
		return NewServer(info.port, info.version, stop), nil
	case <-proc.Done():
		stop()
		return nil, fmt.Errorf("%w: %v", ErrServerExited, proc.Err())
	case <-timer.C:
		stop()
		return nil, fmt.Errorf("%w after %s", ErrStartupTimeout, l.cfg.StartupTimeout)
	case <-ctx.Done():
		stop()
		return nil, ctx.Err()
	}
}

// watch scans server output until EOF, reporting readiness once.
func (l *ProcessLauncher) watch(r *os.File, ready chan<- serverInfo) {
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	info := serverInfo{version: l.cfg.Version}
	sent := false
	for sc.Scan() {
		line := ansi.Strip(sc.Text())
		l.cfg.Logger.Debug("explorer: output", "line", line)
		if sent {
			continue
		}
		if info.port == 0 {
			if p, ok := ParsePort(line); ok {
				info.port = p
			}
		}
		if info.version == "" {
			if v, ok := ParseVersion(line); ok {
				info.version = v
			}
		}
		if info.port != 0 && info.version != "" {
			ready <- info
			sent = true
		}
	}
}
