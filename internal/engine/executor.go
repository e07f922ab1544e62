// Package engine applies a resolved configuration to the filesystem. Every
// action is idempotent: a second run over an unchanged tree only skips.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/hay-kot/dotapply/internal/condition"
	"github.com/hay-kot/dotapply/internal/config"
	"github.com/hay-kot/dotapply/internal/core"
	"github.com/hay-kot/dotapply/internal/hashing"
)

const defaultRenderMode os.FileMode = 0o644

// Executor runs the actions of a Config in phase order: directories, copy,
// link, render and finally commands.
type Executor struct {
	fs       afero.Fs
	log      zerolog.Logger
	observer Observer
	renderer Renderer
	runner   CommandRunner
	facts    map[string]any
}

type Option func(*Executor)

func WithFs(fsys afero.Fs) Option {
	return func(e *Executor) { e.fs = fsys }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

func WithRenderer(r Renderer) Option {
	return func(e *Executor) { e.renderer = r }
}

func WithRunner(r CommandRunner) Option {
	return func(e *Executor) { e.runner = r }
}

// WithFacts replaces the environment that `when` conditions are evaluated
// against.
func WithFacts(facts map[string]any) Option {
	return func(e *Executor) { e.facts = facts }
}

func New(opts ...Option) *Executor {
	e := &Executor{
		fs:       afero.NewOsFs(),
		log:      zerolog.Nop(),
		renderer: unavailableRenderer{},
		runner:   &ShellRunner{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.facts == nil {
		e.facts = core.Facts()
	}

	return e
}

// run carries the state of a single Execute call.
type run struct {
	*Executor
	ctx      context.Context
	fs       afero.Fs
	dryRun   bool
	summary  *Summary
	programs map[string]*vm.Program
}

// Execute applies cfg. With dryRun set nothing is written and no command is
// spawned. The actions are carried out against an in-memory layer over the
// filesystem instead, so each decision accounts for the ones before it exactly
// as a real run would.
//
// A conflict or missing source stops a real run and is returned as the error.
// Under dry-run the same problems are reported and execution continues.
// Command failures never stop a run.
func (e *Executor) Execute(ctx context.Context, cfg *config.Config, dryRun bool) (*Summary, error) {
	r := &run{
		Executor: e,
		ctx:      ctx,
		fs:       e.fs,
		dryRun:   dryRun,
		summary:  &Summary{},
		programs: map[string]*vm.Program{},
	}
	if dryRun {
		r.fs = newPlanFs(e.fs)
	}

	e.log.Debug().Str("config", cfg.File).Bool("dry_run", dryRun).Msg("executing")

	for _, dir := range cfg.Directories {
		if err := r.step(r.mkdir(dir)); err != nil {
			return r.summary, err
		}
	}

	phases := []struct {
		entries config.PathOptionMap
		action  func(string, config.Options) Decision
	}{
		{cfg.Copy, r.copy},
		{cfg.Link, r.link},
		{cfg.Render, r.render},
	}

	for _, phase := range phases {
		for src, opts := range phase.entries.All() {
			if err := r.step(phase.action(src, opts)); err != nil {
				return r.summary, err
			}
		}
	}

	for _, cmd := range cfg.Commands {
		if err := r.step(r.command(cmd)); err != nil {
			return r.summary, err
		}
	}

	return r.summary, nil
}

// step reports d and decides whether the run may continue.
func (r *run) step(d Decision) error {
	d.DryRun = r.dryRun
	r.summary.add(d)
	if r.observer != nil {
		r.observer.Observe(d)
	}
	r.logDecision(d)

	if err := r.ctx.Err(); err != nil {
		return err
	}

	switch d.Outcome {
	case OutcomeConflict, OutcomeMissing:
		if r.dryRun {
			return nil
		}
		return d.Err
	case OutcomeFailed:
		if d.Kind == KindCommand || r.dryRun {
			return nil
		}
		return d.Err
	default:
		return nil
	}
}

func (r *run) logDecision(d Decision) {
	var evt *zerolog.Event
	switch d.Outcome {
	case OutcomeConflict, OutcomeMissing, OutcomeFailed:
		if r.dryRun || d.Kind == KindCommand {
			evt = r.log.Warn()
		} else {
			evt = r.log.Error()
		}
	case OutcomeRun:
		if d.ExitCode != 0 {
			evt = r.log.Warn()
		} else {
			evt = r.log.Info()
		}
	default:
		evt = r.log.Info()
	}

	evt = evt.Str("action", string(d.Kind)).Bool("dry_run", d.DryRun)

	if d.Source != "" {
		evt = evt.Str("source", d.Source)
	}
	if d.Target != "" {
		evt = evt.Str("target", d.Target)
	}
	if d.Command != "" {
		evt = evt.Str("command", d.Command)
		if desc, ok := r.runner.(interface{ Describe(string) string }); ok {
			evt = evt.Str("exec", desc.Describe(d.Command))
		}
		if !d.DryRun {
			evt = evt.Int("exit_code", d.ExitCode)
		}
	}
	if d.Reason != "" {
		evt = evt.Str("reason", d.Reason)
	}
	if d.Err != nil {
		evt = evt.Err(d.Err)
	}

	evt.Msg(string(d.Outcome))
}

// when evaluates an entry condition. Programs are compiled once per run.
func (r *run) when(code string) (bool, error) {
	if code == "" {
		return true, nil
	}

	program, ok := r.programs[code]
	if !ok {
		var err error
		program, err = condition.Compile(code)
		if err != nil {
			return false, err
		}
		r.programs[code] = program
	}

	return condition.Eval(program, r.facts)
}

func (r *run) exists(path string) (bool, error) {
	_, err := lstat(r.fs, path)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

// precheck handles the steps shared by copy, link and render: the entry
// condition and the existence of the source. It returns false when d has
// already been decided.
func (r *run) precheck(d *Decision, opts config.Options) bool {
	ok, err := r.when(opts.When)
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("evaluate condition %q: %w", opts.When, err)
		return false
	}
	if !ok {
		d.Outcome = OutcomeSkip
		d.Reason = ReasonCondition
		return false
	}

	if _, err := r.fs.Stat(d.Source); err != nil {
		if isNotExist(err) {
			d.Outcome = OutcomeMissing
			d.Err = &core.MissingSourceError{Path: d.Source}
		} else {
			d.Outcome = OutcomeFailed
			d.Err = fmt.Errorf("stat %s: %w", d.Source, err)
		}
		return false
	}

	return true
}

func (r *run) mkdir(dir string) Decision {
	d := Decision{Kind: KindMkdir, Target: dir}

	info, err := r.fs.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		d.Outcome = OutcomeSkip
		d.Reason = ReasonExists
		return d
	case err == nil:
		d.Outcome = OutcomeConflict
		d.Err = &core.ConflictError{Path: dir, Reason: "exists and is not a directory"}
		return d
	case !isNotExist(err):
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("stat %s: %w", dir, err)
		return d
	}

	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("create directory %s: %w", dir, err)
		return d
	}

	d.Outcome = OutcomeCreate
	return d
}

func (r *run) copy(src string, opts config.Options) Decision {
	d := Decision{Kind: KindCopy, Source: src, Target: opts.Path}
	if !r.precheck(&d, opts) {
		return d
	}

	exists, err := r.exists(opts.Path)
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("stat %s: %w", opts.Path, err)
		return d
	}

	if exists {
		if opts.IgnoreExisting {
			d.Outcome = OutcomeSkip
			d.Reason = ReasonIgnoreExisting
			return d
		}

		equal, err := hashing.Equal(r.fs, src, opts.Path)
		switch {
		case err != nil:
			d.Outcome = OutcomeConflict
			d.Err = &core.ConflictError{Path: opts.Path, Reason: "cannot compare with " + src, Err: err}
		case equal:
			d.Outcome = OutcomeSkip
			d.Reason = ReasonIdentical
		default:
			d.Outcome = OutcomeConflict
			d.Err = &core.ConflictError{Path: opts.Path, Reason: "content differs from " + src}
		}
		return d
	}

	if err := copyPath(r.fs, src, opts.Path); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = err
		return d
	}

	d.Outcome = OutcomeCreate
	return d
}

func (r *run) link(src string, opts config.Options) Decision {
	d := Decision{Kind: KindLink, Source: src, Target: opts.Path}
	if !r.precheck(&d, opts) {
		return d
	}

	info, err := lstat(r.fs, opts.Path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeSymlink != 0 {
			if target, err := readlink(r.fs, opts.Path); err == nil && target == src {
				d.Outcome = OutcomeSkip
				d.Reason = ReasonLinked
				return d
			}
		}
		d.Outcome = OutcomeConflict
		d.Err = &core.ConflictError{Path: opts.Path, Reason: "exists and is not a link to " + src}
		return d
	case !isNotExist(err):
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("stat %s: %w", opts.Path, err)
		return d
	}

	if err := symlink(r.fs, src, opts.Path); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("link %s: %w", opts.Path, err)
		return d
	}

	d.Outcome = OutcomeCreate
	return d
}

func (r *run) render(src string, opts config.Options) Decision {
	d := Decision{Kind: KindRender, Source: src, Target: opts.Path}
	if !r.precheck(&d, opts) {
		return d
	}

	mode := defaultRenderMode
	if opts.Mode != "" {
		m, err := opts.Mode.Perm()
		if err != nil {
			d.Outcome = OutcomeFailed
			d.Err = err
			return d
		}
		mode = m
	}

	exists, err := r.exists(opts.Path)
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("stat %s: %w", opts.Path, err)
		return d
	}

	if exists && opts.IgnoreExisting {
		d.Outcome = OutcomeSkip
		d.Reason = ReasonIgnoreExisting
		return d
	}

	content, err := r.renderer.Render(r.ctx, src, opts)
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("render %s: %w", src, err)
		return d
	}

	if exists {
		current, err := hashing.Sum(r.fs, opts.Path)
		switch {
		case err != nil:
			d.Outcome = OutcomeConflict
			d.Err = &core.ConflictError{Path: opts.Path, Reason: "cannot compare with rendered " + src, Err: err}
		case current == hashing.Bytes(content):
			d.Outcome = OutcomeSkip
			d.Reason = ReasonIdentical
		default:
			d.Outcome = OutcomeConflict
			d.Err = &core.ConflictError{Path: opts.Path, Reason: "content differs from rendered " + src}
		}
		return d
	}

	if err := afero.WriteFile(r.fs, opts.Path, content, mode); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("write %s: %w", opts.Path, err)
		return d
	}
	if err := r.fs.Chmod(opts.Path, mode); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("chmod %s: %w", opts.Path, err)
		return d
	}

	d.Outcome = OutcomeCreate
	return d
}

func (r *run) command(cmd string) Decision {
	d := Decision{Kind: KindCommand, Command: cmd, Outcome: OutcomeRun}
	if r.dryRun {
		return d
	}

	code, err := r.runner.Run(r.ctx, cmd)
	d.ExitCode = code
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("run %q: %w", cmd, err)
	}

	return d
}
