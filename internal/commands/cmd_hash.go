package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/dotapply/internal/core"
	"github.com/hay-kot/dotapply/internal/hashing"
)

type HashCmd struct {
	coreFlags *core.Flags
}

func NewHashCmd(coreFlags *core.Flags) *HashCmd {
	return &HashCmd{coreFlags: coreFlags}
}

func (hc *HashCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "hash",
		Usage:     "print the content digest dotapply compares paths with",
		ArgsUsage: "<path>...",
		Description: `Prints the digest used to decide whether a copy destination already holds the
source content. Directories are hashed recursively with children sorted by name.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return errors.New("at least one path is required")
			}
			return hc.hash(stdout(ctx), afero.NewOsFs(), cmd.Args().Slice())
		},
	})

	return app
}

func (hc *HashCmd) hash(out io.Writer, fsys afero.Fs, paths []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	for _, p := range paths {
		abs := core.Normalize(p, cwd)

		digest, err := hashing.Sum(fsys, abs)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(out, "%s  %s\n", digest, abs); err != nil {
			return err
		}
	}

	return nil
}
