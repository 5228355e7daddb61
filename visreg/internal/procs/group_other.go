//go:build !unix

package procs

import (
	"errors"
	"os"
	"os/exec"
)

func setGroup(*exec.Cmd) {}

func terminate(p *os.Process) error { return kill(p) }

func kill(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
