package engine

import (
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/kballard/go-shellquote"
)

// DefaultShell runs commands when no shell is configured.
const DefaultShell = "/bin/sh"

// CommandRunner executes a single command string and reports its exit status.
// A command that ran and exited non-zero is not an error.
type CommandRunner interface {
	Run(ctx context.Context, command string) (int, error)
}

// ShellRunner runs commands with `<shell> -c <command>`.
type ShellRunner struct {
	Shell  string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (s *ShellRunner) shell() string {
	if s.Shell == "" {
		return DefaultShell
	}
	return s.Shell
}

// Run implements CommandRunner.
func (s *ShellRunner) Run(ctx context.Context, command string) (int, error) {
	cmd := exec.CommandContext(ctx, s.shell(), "-c", command)
	cmd.Dir = s.Dir
	cmd.Stdin = s.Stdin
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}

	return 0, nil
}

// Describe returns the full invocation as a shell-quoted string.
func (s *ShellRunner) Describe(command string) string {
	return shellquote.Join(s.shell(), "-c", command)
}
