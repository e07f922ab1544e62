package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/dotapply/internal/core"
)

const hookMarker = "# dotapply pre-commit hook"

type HookCmd struct {
	coreFlags *core.Flags
}

func NewHookCmd(coreFlags *core.Flags) *HookCmd {
	return &HookCmd{coreFlags: coreFlags}
}

func (hc *HookCmd) Register(app *cli.Command) *cli.Command {
	cmds := []*cli.Command{
		{
			Name:  "hook",
			Usage: "manage git hooks for dotapply",
			Commands: []*cli.Command{
				{
					Name:      "install",
					Usage:     "install a git pre-commit hook that validates the configuration",
					ArgsUsage: "[config]",
					Description: `Installs a pre-commit hook that rejects commits leaving the configuration
unresolvable (malformed documents, missing parents, inheritance cycles).

The hook calls 'dotapply --echo <config>' before each commit. If a pre-commit
hook already exists, the dotapply check is appended to it.`,
					Action: func(ctx context.Context, cmd *cli.Command) error {
						return hc.install(cmd.Args().First())
					},
				},
				{
					Name:  "uninstall",
					Usage: "remove the dotapply pre-commit hook",
					Description: `Removes the dotapply section from .git/hooks/pre-commit. The hook file is
deleted when nothing else is left in it.`,
					Action: func(ctx context.Context, cmd *cli.Command) error {
						return hc.uninstall()
					},
				},
			},
		},
	}

	app.Commands = append(app.Commands, cmds...)
	return app
}

func (hc *HookCmd) install(arg string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	gitDir, err := findGitDir(cwd)
	if err != nil {
		return fmt.Errorf("failed to find .git directory: %w", err)
	}

	configPath, err := resolveConfigPath(arg, hc.coreFlags.ConfigFilePath)
	if err != nil {
		return err
	}
	configPath = core.Normalize(configPath, cwd)

	// hooks run from the repository root
	configPath = repoRelative(filepath.Dir(gitDir), configPath)

	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	hookPath := filepath.Join(gitDir, "hooks", "pre-commit")
	installed, err := installHook(hookPath, hookScript(bin, configPath))
	if err != nil {
		return err
	}

	if !installed {
		log.Info().Str("path", hookPath).Msg("dotapply pre-commit hook already installed")
		return nil
	}

	log.Info().Str("path", hookPath).Msg("installed pre-commit hook")
	return nil
}

// repoRelative returns path relative to root when it lies inside root, and
// path unchanged otherwise.
func repoRelative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func (hc *HookCmd) uninstall() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	gitDir, err := findGitDir(cwd)
	if err != nil {
		return fmt.Errorf("failed to find .git directory: %w", err)
	}

	hookPath := filepath.Join(gitDir, "hooks", "pre-commit")
	removed, err := uninstallHook(hookPath)
	if err != nil {
		return err
	}

	if !removed {
		log.Info().Str("path", hookPath).Msg("dotapply hook not found in pre-commit")
		return nil
	}

	log.Info().Str("path", hookPath).Msg("removed dotapply pre-commit hook")
	return nil
}

// hookScript is the section appended to the pre-commit hook: the marker line
// followed by the check itself.
func hookScript(bin, configPath string) string {
	return fmt.Sprintf("%s\n%s >/dev/null || exit 1\n", hookMarker, shellquote.Join(bin, "--echo", configPath))
}

// installHook appends section to the hook at path, creating it when missing.
// It reports false when a dotapply section is already present.
func installHook(path, section string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create hooks directory: %w", err)
	}

	var content string

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if strings.Contains(string(existing), hookMarker) {
			return false, nil
		}
		content = string(existing)
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += "\n" + section
	case errors.Is(err, fs.ErrNotExist):
		content = "#!/bin/sh\n\n" + section
	default:
		return false, fmt.Errorf("failed to read pre-commit hook: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return false, fmt.Errorf("failed to write pre-commit hook: %w", err)
	}

	return true, nil
}

// uninstallHook removes the dotapply section, deleting the hook when only the
// shebang is left.
func uninstallHook(path string) (bool, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pre-commit hook: %w", err)
	}

	if !strings.Contains(string(content), hookMarker) {
		return false, nil
	}

	var kept []string
	skipNext := false
	for _, line := range strings.Split(string(content), "\n") {
		if line == hookMarker {
			skipNext = true
			continue
		}
		if skipNext {
			skipNext = false
			continue
		}
		kept = append(kept, line)
	}

	remaining := strings.TrimSpace(strings.Join(kept, "\n"))
	if remaining == "" || remaining == "#!/bin/sh" {
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("failed to remove pre-commit hook: %w", err)
		}
		return true, nil
	}

	if err := os.WriteFile(path, []byte(remaining+"\n"), 0o755); err != nil {
		return false, fmt.Errorf("failed to write pre-commit hook: %w", err)
	}

	return true, nil
}

// findGitDir walks up from dir looking for a .git directory.
func findGitDir(dir string) (string, error) {
	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return gitDir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("not in a git repository")
		}
		dir = parent
	}
}
