package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/dotapply/internal/config"
	"github.com/hay-kot/dotapply/internal/core"
	"github.com/hay-kot/dotapply/internal/engine"
	"github.com/hay-kot/dotapply/internal/generator"
	"github.com/hay-kot/dotapply/pkgs/printer"
)

type ApplyFlags struct {
	Echo   bool
	DryRun bool
	Format string
}

// ApplyCmd is the root action: resolve a configuration and apply it.
type ApplyCmd struct {
	coreFlags *core.Flags
	flags     ApplyFlags
}

func NewApplyCmd(coreFlags *core.Flags) *ApplyCmd {
	return &ApplyCmd{coreFlags: coreFlags}
}

func (ac *ApplyCmd) Register(app *cli.Command) *cli.Command {
	app.ArgsUsage = "[config]"
	app.Flags = append(app.Flags,
		&cli.BoolFlag{
			Name:        "echo",
			Usage:       "print the resolved configuration and exit",
			Destination: &ac.flags.Echo,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Aliases:     []string{"n"},
			Usage:       "report every action without touching the filesystem or running commands",
			Destination: &ac.flags.DryRun,
		},
		&cli.StringFlag{
			Name:        "format",
			Usage:       "output format for --echo (json, yaml)",
			Value:       string(config.FormatJSON),
			Destination: &ac.flags.Format,
			Validator: func(s string) error {
				switch config.Format(s) {
				case config.FormatJSON, config.FormatYAML:
					return nil
				default:
					return fmt.Errorf("unsupported format %q", s)
				}
			},
		},
	)
	app.Action = ac.run

	return app
}

func (ac *ApplyCmd) run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ac.apply(ctx, stdout(ctx), cmd.Args().First())
}

func (ac *ApplyCmd) apply(ctx context.Context, out io.Writer, arg string) error {
	cfg, err := loadConfig(ac.coreFlags, arg)
	if err != nil {
		return err
	}

	if ac.flags.Echo {
		return config.Encode(out, cfg, config.Format(ac.flags.Format))
	}

	ids, err := loadIdentities(ac.coreFlags)
	if err != nil {
		return err
	}

	facts := core.Facts()

	renderer := generator.NewEngine(
		generator.WithLogger(log.Logger),
		generator.WithFacts(facts),
		generator.WithIdentities(ids...),
	)

	runner := &engine.ShellRunner{
		Shell:  ac.coreFlags.Shell,
		Dir:    filepath.Dir(cfg.File),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	executor := engine.New(
		engine.WithLogger(log.Logger),
		engine.WithFacts(facts),
		engine.WithRenderer(renderer),
		engine.WithRunner(runner),
	)

	log.Debug().Str("config", cfg.File).Bool("dry-run", ac.flags.DryRun).Msg("applying configuration")

	summary, err := executor.Execute(ctx, cfg, ac.flags.DryRun)
	if summary != nil {
		printSummary(printer.New(out), *summary, ac.flags.DryRun)
	}

	return err
}

func printSummary(p *printer.Printer, s engine.Summary, dryRun bool) {
	title := "Summary"
	if dryRun {
		title = "Summary (dry run)"
	}

	status := func(n int, bad printer.Status) printer.Status {
		if n == 0 {
			return printer.StatusOk
		}
		return bad
	}

	problem := printer.StatusError
	changes := "changes"
	if dryRun {
		problem = printer.StatusWarn
		changes = "planned changes"
	}

	p.LineBreak()
	p.StatusList(title, []printer.StatusListItem{
		{Status: printer.StatusInfo, Label: changes, Detail: strconv.Itoa(s.Changes())},
		{Status: printer.StatusInfo, Label: "created", Detail: strconv.Itoa(s.Created)},
		{Status: printer.StatusInfo, Label: "skipped", Detail: strconv.Itoa(s.Skipped)},
		{Status: printer.StatusInfo, Label: "commands", Detail: strconv.Itoa(s.Commands)},
		{Status: status(s.Conflicts, problem), Label: "conflicts", Detail: strconv.Itoa(s.Conflicts)},
		{Status: status(s.Missing, problem), Label: "missing sources", Detail: strconv.Itoa(s.Missing)},
		{Status: status(s.Failed, problem), Label: "failed", Detail: strconv.Itoa(s.Failed)},
	})
}
