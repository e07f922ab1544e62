package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/dotapply/internal/core"
	"github.com/hay-kot/dotapply/pkgs/cll"
	"github.com/hay-kot/dotapply/pkgs/fcrypt"
)

type EncryptCmd struct {
	coreFlags      *core.Flags
	recipients     []string
	recipientsFile string
}

func NewEncryptCmd(coreFlags *core.Flags) *EncryptCmd {
	return &EncryptCmd{coreFlags: coreFlags}
}

func (ec *EncryptCmd) Register(app *cli.Command) *cli.Command {
	envvars := cll.EnvWithPrefix(core.EnvPrefix)

	cmds := []*cli.Command{
		{
			Name:      "encrypt",
			Usage:     "encrypt all vault vars files in-place",
			ArgsUsage: "[config]",
			Description: `Encrypts every vars file referenced by a render entry with 'vault: true'.

The command will:
- Encrypt <file> for every recipient into <file>.age
- Remove the plaintext once the encrypted file is written
- Skip files that are missing or already encrypted`,
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:        "recipient",
					Aliases:     []string{"r"},
					Usage:       "age public key to encrypt for (repeatable)",
					Sources:     envvars("AGE_RECIPIENTS"),
					Destination: &ec.recipients,
				},
				&cli.StringFlag{
					Name:        "recipients-file",
					Usage:       "file with one age public key per line",
					Sources:     envvars("AGE_RECIPIENTS_FILE"),
					Destination: &ec.recipientsFile,
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return ec.encrypt(afero.NewOsFs(), cmd.Args().First())
			},
		},
		{
			Name:      "decrypt",
			Usage:     "decrypt all vault vars files in-place",
			ArgsUsage: "[config]",
			Description: `Decrypts every <file>.age vault vars file with the identity given by
--identity, restoring <file> and removing the encrypted copy.

This is typically used to edit secrets before encrypting them again.`,
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return ec.decrypt(afero.NewOsFs(), cmd.Args().First())
			},
		},
	}

	app.Commands = append(app.Commands, cmds...)
	return app
}

func (ec *EncryptCmd) encrypt(fsys afero.Fs, arg string) error {
	cfg, err := loadConfig(ec.coreFlags, arg)
	if err != nil {
		return err
	}

	keys := ec.recipients
	if ec.recipientsFile != "" {
		fromFile, err := fcrypt.LoadRecipientsFile(fsys, ec.recipientsFile)
		if err != nil {
			return err
		}
		keys = append(keys, fromFile...)
	}

	if len(keys) == 0 {
		return fmt.Errorf("no age recipients given, use --recipient or %sAGE_RECIPIENTS", core.EnvPrefix)
	}

	recipients, err := fcrypt.LoadPublicKeys(keys)
	if err != nil {
		return err
	}

	files := cfg.VaultFiles()
	if len(files) == 0 {
		log.Info().Msg("no vault files configured")
		return nil
	}

	count := 0
	for _, file := range files {
		plain := fcrypt.PlainPath(file)
		target := fcrypt.EncryptedPath(file)

		if ok, _ := afero.Exists(fsys, plain); !ok {
			log.Debug().Str("file", plain).Msg("plaintext file doesn't exist, skipping")
			continue
		}

		if ok, _ := afero.Exists(fsys, target); ok {
			log.Warn().Str("file", target).Msg("encrypted file already exists, skipping")
			continue
		}

		if _, err := fcrypt.EncryptInPlace(fsys, plain, recipients...); err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", plain, err)
		}

		count++
		log.Info().Str("file", target).Msg("encrypted")
	}

	log.Info().Int("count", count).Msg("encryption complete")
	return nil
}

func (ec *EncryptCmd) decrypt(fsys afero.Fs, arg string) error {
	cfg, err := loadConfig(ec.coreFlags, arg)
	if err != nil {
		return err
	}

	ids, err := loadIdentities(ec.coreFlags)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no age identity given, use --identity or %sAGE_IDENTITY", core.EnvPrefix)
	}

	count := 0
	for _, file := range cfg.VaultFiles() {
		source := fcrypt.EncryptedPath(file)
		plain := fcrypt.PlainPath(file)

		if ok, _ := afero.Exists(fsys, source); !ok {
			log.Debug().Str("file", source).Msg("encrypted file doesn't exist, skipping")
			continue
		}

		if ok, _ := afero.Exists(fsys, plain); ok {
			log.Warn().Str("file", plain).Msg("decrypted file already exists, skipping")
			continue
		}

		if _, err := fcrypt.DecryptInPlace(fsys, source, ids...); err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", source, err)
		}

		count++
		log.Info().Str("file", plain).Msg("decrypted")
	}

	log.Info().Int("count", count).Msg("decryption complete")
	return nil
}
