// Package commands contains the CLI commands for the application
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/hay-kot/dotapply/internal/config"
	"github.com/hay-kot/dotapply/internal/core"
	"github.com/hay-kot/dotapply/pkgs/fcrypt"
	"github.com/hay-kot/dotapply/pkgs/printer"
)

// configNames are searched for, in order, under the XDG config directories.
var configNames = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// resolveConfigPath picks the configuration document: the positional argument
// first, then the --config flag, then the XDG config directories.
func resolveConfigPath(arg, flag string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if flag != "" {
		return flag, nil
	}

	for _, name := range configNames {
		path, err := xdg.SearchConfigFile(filepath.Join("dotapply", name))
		if err == nil {
			log.Debug().Str("path", path).Msg("found configuration")
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration given and none found in %s", filepath.Join(xdg.ConfigHome, "dotapply"))
}

func loadConfig(flags *core.Flags, arg string) (*config.Config, error) {
	path, err := resolveConfigPath(arg, flags.ConfigFilePath)
	if err != nil {
		return nil, err
	}

	return config.Load(path)
}

// loadIdentities reads the age identity file. No file configured is not an
// error; vault files will fail to open when they are used.
func loadIdentities(flags *core.Flags) ([]age.Identity, error) {
	if flags.IdentityFile == "" {
		return nil, nil
	}

	path := core.ExpandHome(core.ExpandEnv(flags.IdentityFile))

	ids, err := fcrypt.LoadIdentityFile(afero.NewOsFs(), path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("no identities found in " + path)
	}

	return ids, nil
}

// stdout is the context writer set up in main, or os.Stdout.
func stdout(ctx context.Context) io.Writer {
	if w, ok := printer.WriterFrom(ctx); ok {
		return w
	}
	return os.Stdout
}
