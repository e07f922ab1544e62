package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellRunner_Run(t *testing.T) {
	var stdout bytes.Buffer
	dir := t.TempDir()

	r := &ShellRunner{Dir: dir, Stdout: &stdout}

	code, err := r.Run(context.Background(), "echo hello && pwd")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, dir, lines[1])
}

func TestShellRunner_ExitCode(t *testing.T) {
	r := &ShellRunner{}

	code, err := r.Run(context.Background(), "exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestShellRunner_MissingShell(t *testing.T) {
	r := &ShellRunner{Shell: "/does/not/exist"}

	code, err := r.Run(context.Background(), "true")
	require.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestShellRunner_Describe(t *testing.T) {
	assert.Equal(t, "/bin/sh -c true", (&ShellRunner{}).Describe("true"))
	assert.Equal(t, "/bin/zsh -c 'echo hi'", (&ShellRunner{Shell: "/bin/zsh"}).Describe("echo hi"))
}
