package buildcheck

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

//go:generate go tool mockgen -destination runner_mock_test.go -package buildcheck . Runner

// ErrNotInstalled is returned by a Runner when the command's executable is not on PATH.
var ErrNotInstalled = errors.New("executable not found")

// Command is one external process invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
}

func (c Command) String() string {
	s := c.Name
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// Runner runs the generator's dry-run build.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes cmd and returns its combined output.
func (ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, ErrNotInstalled)
	}
	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	out, err := c.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("running %s: %w", cmd, err)
	}
	return out, nil
}
