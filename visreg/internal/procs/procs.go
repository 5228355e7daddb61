// CLAUDE:SUMMARY Tracks spawned preview-server processes and kills their process groups on stop or shutdown.
// Package procs tracks the child processes shotdiff spawns (preview servers)
// so they can be killed on every exit path, including signals and panics.
package procs

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// Registry tracks running child processes. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	procs  map[*Proc]struct{}
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{procs: make(map[*Proc]struct{}), logger: logger}
}

// Proc is a started, tracked child process.
type Proc struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	reg  *Registry
}

// Start starts cmd in its own process group and tracks it until it exits.
// The caller must not call cmd.Wait; use Done and Err instead.
func (r *Registry) Start(cmd *exec.Cmd) (*Proc, error) {
	setGroup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("procs: start %s: %w", cmd.Path, err)
	}
	p := &Proc{cmd: cmd, done: make(chan struct{}), reg: r}

	r.mu.Lock()
	r.procs[p] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("procs: started", "pid", cmd.Process.Pid, "cmd", cmd.Args)

	go func() {
		p.err = cmd.Wait()
		r.mu.Lock()
		delete(r.procs, p)
		r.mu.Unlock()
		close(p.done)
		r.logger.Debug("procs: exited", "pid", cmd.Process.Pid, "error", p.err)
	}()
	return p, nil
}

// Len returns the number of tracked processes still running.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// KillAll force-kills every tracked process group and waits briefly for the
// processes to be reaped.
func (r *Registry) KillAll() {
	r.mu.Lock()
	live := make([]*Proc, 0, len(r.procs))
	for p := range r.procs {
		live = append(live, p)
	}
	r.mu.Unlock()

	for _, p := range live {
		r.logger.Info("procs: killing", "pid", p.Pid())
		if err := kill(p.cmd.Process); err != nil {
			r.logger.Warn("procs: kill failed", "pid", p.Pid(), "error", err)
		}
	}
	for _, p := range live {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			r.logger.Warn("procs: process not reaped", "pid", p.Pid())
		}
	}
}

// Pid returns the process ID.
func (p *Proc) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited.
func (p *Proc) Done() <-chan struct{} { return p.done }

// Err returns the exit error. Only meaningful after Done is closed.
func (p *Proc) Err() error { return p.err }

// Stop asks the process group to terminate and kills it if it is still
// running after grace.
func (p *Proc) Stop(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := terminate(p.cmd.Process); err != nil {
		p.reg.logger.Debug("procs: terminate failed", "pid", p.Pid(), "error", err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	if err := kill(p.cmd.Process); err != nil {
		return fmt.Errorf("procs: kill %d: %w", p.Pid(), err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("procs: process %d did not exit", p.Pid())
	}
}
