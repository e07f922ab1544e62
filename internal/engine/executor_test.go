package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/dotapply/internal/config"
	"github.com/hay-kot/dotapply/internal/core"
)

type fakeRunner struct {
	calls []string
	code  int
	err   error
}

func (f *fakeRunner) Run(_ context.Context, cmd string) (int, error) {
	f.calls = append(f.calls, cmd)
	return f.code, f.err
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
}

func readFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	return string(data)
}

func staticRenderer(content string) Renderer {
	return RendererFunc(func(context.Context, string, config.Options) ([]byte, error) {
		return []byte(content), nil
	})
}

func newConfig() *config.Config {
	return &config.Config{File: "/cfg/config.json", Extra: config.NewMap()}
}

// seed builds a small dotfiles tree and a config that touches every action kind.
func seed(t *testing.T) (afero.Fs, *config.Config) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/a.txt", "hello")
	writeFile(t, fsys, "/src/tree/x", "x")
	writeFile(t, fsys, "/src/tree/sub/y", "y")
	writeFile(t, fsys, "/src/t.tmpl", "{{ .name }}")
	require.NoError(t, fsys.Chmod("/src/a.txt", 0o755))

	cfg := newConfig()
	cfg.Directories = config.PathList{"/dst"}
	cfg.Copy.Set("/src/a.txt", config.Options{Path: "/dst/a.txt"})
	cfg.Copy.Set("/src/tree", config.Options{Path: "/dst/tree"})
	cfg.Render.Set("/src/t.tmpl", config.Options{Path: "/dst/t", Mode: "600"})
	cfg.Commands = config.CommandList{"echo done"}

	return fsys, cfg
}

// snapshot lists every path under root with its mode and content.
func snapshot(t *testing.T, fsys afero.Fs, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		entry := info.Mode().String()
		if info.Mode().IsRegular() {
			data, err := afero.ReadFile(fsys, path)
			if err != nil {
				return err
			}
			entry += ":" + string(data)
		}
		out[path] = entry
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestExecute_CreatesThenSkips(t *testing.T) {
	fsys, cfg := seed(t)
	runner := &fakeRunner{}

	rec := &Recorder{}
	e := New(WithFs(fsys), WithObserver(rec), WithRenderer(staticRenderer("rendered")), WithRunner(runner))

	summary, err := e.Execute(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeCreate, OutcomeCreate, OutcomeCreate, OutcomeCreate, OutcomeRun}, rec.Outcomes())
	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 1, summary.Commands)

	assert.Equal(t, "hello", readFile(t, fsys, "/dst/a.txt"))
	assert.Equal(t, "y", readFile(t, fsys, "/dst/tree/sub/y"))
	assert.Equal(t, "rendered", readFile(t, fsys, "/dst/t"))

	info, err := fsys.Stat("/dst/a.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	info, err = fsys.Stat("/dst/t")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	rec = &Recorder{}
	e = New(WithFs(fsys), WithObserver(rec), WithRenderer(staticRenderer("rendered")), WithRunner(runner))

	summary, err = e.Execute(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeSkip, OutcomeSkip, OutcomeSkip, OutcomeSkip, OutcomeRun}, rec.Outcomes())
	assert.Equal(t, 4, summary.Skipped)
	assert.Equal(t, []string{"echo done", "echo done"}, runner.calls)
}

func TestExecute_DryRunMatchesRealRun(t *testing.T) {
	dryFs, cfg := seed(t)
	realFs, _ := seed(t)

	before := snapshot(t, dryFs, "/")

	dryRunner := &fakeRunner{}
	dryRec := &Recorder{}
	_, err := New(WithFs(dryFs), WithObserver(dryRec), WithRenderer(staticRenderer("rendered")), WithRunner(dryRunner)).
		Execute(context.Background(), cfg, true)
	require.NoError(t, err)

	realRec := &Recorder{}
	_, err = New(WithFs(realFs), WithObserver(realRec), WithRenderer(staticRenderer("rendered")), WithRunner(&fakeRunner{})).
		Execute(context.Background(), cfg, false)
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(t, dryFs, "/"), "dry run must not touch the filesystem")
	assert.Empty(t, dryRunner.calls, "dry run must not spawn commands")
	assert.Equal(t, realRec.Outcomes(), dryRec.Outcomes())

	for _, d := range dryRec.Decisions {
		assert.True(t, d.DryRun)
	}
}

func TestExecute_CopyConflict(t *testing.T) {
	for _, dryRun := range []bool{false, true} {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "/src/a", "hello")
		writeFile(t, fsys, "/dst/a", "world")

		cfg := newConfig()
		cfg.Copy.Set("/src/a", config.Options{Path: "/dst/a"})

		rec := &Recorder{}
		summary, err := New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, dryRun)

		if dryRun {
			require.NoError(t, err)
		} else {
			var conflict *core.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, "/dst/a", conflict.Path)
		}

		assert.Equal(t, 1, summary.Conflicts)
		assert.Equal(t, []Outcome{OutcomeConflict}, rec.Outcomes())
		assert.Equal(t, "world", readFile(t, fsys, "/dst/a"))
	}
}

func TestExecute_CopyIgnoreExisting(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/a", "hello")
	writeFile(t, fsys, "/dst/a", "world")

	cfg := newConfig()
	cfg.Copy.Set("/src/a", config.Options{Path: "/dst/a", IgnoreExisting: true})

	rec := &Recorder{}
	_, err := New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, false)
	require.NoError(t, err)

	require.Len(t, rec.Decisions, 1)
	assert.Equal(t, OutcomeSkip, rec.Decisions[0].Outcome)
	assert.Equal(t, ReasonIgnoreExisting, rec.Decisions[0].Reason)
	assert.Equal(t, "world", readFile(t, fsys, "/dst/a"))
}

func TestExecute_CopyDoesNotCreateParents(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()

	src := filepath.Join(dir, "a")
	writeFile(t, fsys, src, "hello")

	cfg := newConfig()
	cfg.Copy.Set(src, config.Options{Path: filepath.Join(dir, "missing", "a")})

	rec := &Recorder{}
	_, err := New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, false)
	require.Error(t, err)
	assert.Equal(t, []Outcome{OutcomeFailed}, rec.Outcomes())

	rec = &Recorder{}
	_, err = New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeFailed}, rec.Outcomes())
}

func TestExecute_DryRunSeesEarlierActions(t *testing.T) {
	tests := []struct {
		name  string
		cfg   func(dir string) *config.Config
		want  []Outcome
		fatal bool
	}{
		{
			name: "copies sharing a destination",
			cfg: func(dir string) *config.Config {
				cfg := newConfig()
				cfg.Copy.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/x")})
				cfg.Copy.Set(filepath.Join(dir, "src/b"), config.Options{Path: filepath.Join(dir, "dst/x")})
				return cfg
			},
			want:  []Outcome{OutcomeCreate, OutcomeConflict},
			fatal: true,
		},
		{
			name: "copy into a new directory",
			cfg: func(dir string) *config.Config {
				cfg := newConfig()
				cfg.Directories = config.PathList{filepath.Join(dir, "dst/new")}
				cfg.Copy.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/new/a")})
				return cfg
			},
			want: []Outcome{OutcomeCreate, OutcomeCreate},
		},
		{
			name: "render beneath a copied file",
			cfg: func(dir string) *config.Config {
				cfg := newConfig()
				cfg.Copy.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/x")})
				cfg.Render.Set(filepath.Join(dir, "src/t"), config.Options{Path: filepath.Join(dir, "dst/x/t")})
				return cfg
			},
			want: []Outcome{OutcomeCreate, OutcomeFailed},
		},
		{
			name: "link over a copied file",
			cfg: func(dir string) *config.Config {
				cfg := newConfig()
				cfg.Copy.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/x")})
				cfg.Link.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/x")})
				return cfg
			},
			want:  []Outcome{OutcomeCreate, OutcomeConflict},
			fatal: true,
		},
		{
			name: "links sharing a destination",
			cfg: func(dir string) *config.Config {
				cfg := newConfig()
				cfg.Link.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/l")})
				cfg.Link.Set(filepath.Join(dir, "src/b"), config.Options{Path: filepath.Join(dir, "dst/l")})
				return cfg
			},
			want:  []Outcome{OutcomeCreate, OutcomeConflict},
			fatal: true,
		},
		{
			name: "render through a new link",
			cfg: func(dir string) *config.Config {
				cfg := newConfig()
				cfg.Link.Set(filepath.Join(dir, "src/a"), config.Options{Path: filepath.Join(dir, "dst/l")})
				cfg.Render.Set(filepath.Join(dir, "src/t"), config.Options{Path: filepath.Join(dir, "dst/l")})
				return cfg
			},
			want: []Outcome{OutcomeCreate, OutcomeSkip},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, dryRun := range []bool{true, false} {
				dir := t.TempDir()
				fsys := afero.NewOsFs()
				writeFile(t, fsys, filepath.Join(dir, "src/a"), "a")
				writeFile(t, fsys, filepath.Join(dir, "src/b"), "b")
				writeFile(t, fsys, filepath.Join(dir, "src/t"), "{{ . }}")
				require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "dst"), 0o755))

				before := snapshot(t, fsys, dir)

				rec := &Recorder{}
				_, err := New(WithFs(fsys), WithObserver(rec), WithRenderer(staticRenderer("a"))).
					Execute(context.Background(), tt.cfg(dir), dryRun)

				assert.Equal(t, tt.want, rec.Outcomes(), "dry run: %v", dryRun)
				if dryRun {
					require.NoError(t, err)
					assert.Equal(t, before, snapshot(t, fsys, dir), "dry run must not touch the filesystem")
				} else if tt.fatal {
					var conflict *core.ConflictError
					require.ErrorAs(t, err, &conflict)
				}
			}
		})
	}
}

func TestExecute_MkdirConflict(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/dst/file", "x")

	cfg := newConfig()
	cfg.Directories = config.PathList{"/dst/file", "/dst/next"}

	rec := &Recorder{}
	_, err := New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, false)

	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []Outcome{OutcomeConflict}, rec.Outcomes())

	exists, err := afero.DirExists(fsys, "/dst/next")
	require.NoError(t, err)
	assert.False(t, exists, "run must stop at the conflict")
}

func TestExecute_MissingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/b", "b")

	cfg := newConfig()
	cfg.Copy.Set("/src/a", config.Options{Path: "/dst/a"})
	cfg.Copy.Set("/src/b", config.Options{Path: "/dst/b"})
	cfg.Directories = config.PathList{"/dst"}

	rec := &Recorder{}
	_, err := New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, false)

	var missing *core.MissingSourceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "/src/a", missing.Path)
	assert.Equal(t, []Outcome{OutcomeCreate, OutcomeMissing}, rec.Outcomes())

	rec = &Recorder{}
	summary, err := New(WithFs(afero.NewMemMapFs()), WithObserver(rec)).Execute(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeCreate, OutcomeMissing, OutcomeMissing}, rec.Outcomes())
	assert.Equal(t, 2, summary.Missing)
}

func TestExecute_WhenConditionSkips(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/a", "a")
	writeFile(t, fsys, "/src/b", "b")

	cfg := newConfig()
	cfg.Copy.Set("/src/a", config.Options{Path: "/a", When: `os == "linux"`})
	cfg.Copy.Set("/src/b", config.Options{Path: "/b", When: `os == "plan9"`})

	rec := &Recorder{}
	e := New(WithFs(fsys), WithObserver(rec), WithFacts(map[string]any{"os": "plan9"}))

	_, err := e.Execute(context.Background(), cfg, false)
	require.NoError(t, err)

	require.Len(t, rec.Decisions, 2)
	assert.Equal(t, OutcomeSkip, rec.Decisions[0].Outcome)
	assert.Equal(t, ReasonCondition, rec.Decisions[0].Reason)
	assert.Equal(t, OutcomeCreate, rec.Decisions[1].Outcome)

	exists, err := afero.Exists(fsys, "/a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExecute_RenderUnavailable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/t", "x")

	cfg := newConfig()
	cfg.Render.Set("/src/t", config.Options{Path: "/t"})

	_, err := New(WithFs(fsys)).Execute(context.Background(), cfg, false)
	require.ErrorIs(t, err, core.ErrRenderUnavailable)

	rec := &Recorder{}
	_, err = New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeFailed}, rec.Outcomes())
}

func TestExecute_RenderExistingDestination(t *testing.T) {
	tests := []struct {
		name    string
		current string
		opts    config.Options
		want    Outcome
	}{
		{name: "identical", current: "rendered", opts: config.Options{Path: "/t"}, want: OutcomeSkip},
		{name: "differs", current: "stale", opts: config.Options{Path: "/t"}, want: OutcomeConflict},
		{name: "ignore existing", current: "stale", opts: config.Options{Path: "/t", IgnoreExisting: true}, want: OutcomeSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			writeFile(t, fsys, "/src/t", "{{ . }}")
			writeFile(t, fsys, "/t", tt.current)

			cfg := newConfig()
			cfg.Render.Set("/src/t", tt.opts)

			rec := &Recorder{}
			_, _ = New(WithFs(fsys), WithObserver(rec), WithRenderer(staticRenderer("rendered"))).
				Execute(context.Background(), cfg, false)

			assert.Equal(t, []Outcome{tt.want}, rec.Outcomes())
			assert.Equal(t, tt.current, readFile(t, fsys, "/t"))
		})
	}
}

func TestExecute_Commands(t *testing.T) {
	cfg := newConfig()
	cfg.Commands = config.CommandList{"false", "broken"}

	t.Run("non-zero exit is reported", func(t *testing.T) {
		runner := &fakeRunner{code: 3}
		rec := &Recorder{}

		summary, err := New(WithFs(afero.NewMemMapFs()), WithObserver(rec), WithRunner(runner)).
			Execute(context.Background(), cfg, false)
		require.NoError(t, err)

		assert.Equal(t, []string{"false", "broken"}, runner.calls)
		assert.Equal(t, 2, summary.Commands)
		assert.Equal(t, 3, rec.Decisions[0].ExitCode)
	})

	t.Run("runner errors are not fatal", func(t *testing.T) {
		runner := &fakeRunner{code: -1, err: errors.New("no such shell")}
		rec := &Recorder{}

		summary, err := New(WithFs(afero.NewMemMapFs()), WithObserver(rec), WithRunner(runner)).
			Execute(context.Background(), cfg, false)
		require.NoError(t, err)

		assert.Len(t, runner.calls, 2)
		assert.Equal(t, 2, summary.Failed)
	})

	t.Run("abnormal exit is a warning", func(t *testing.T) {
		var buf bytes.Buffer
		runner := &fakeRunner{code: -1}

		_, err := New(WithFs(afero.NewMemMapFs()), WithLogger(zerolog.New(&buf)), WithRunner(runner)).
			Execute(context.Background(), cfg, false)
		require.NoError(t, err)

		assert.Equal(t, 2, strings.Count(buf.String(), `"level":"warn"`))
		assert.Contains(t, buf.String(), `"exit_code":-1`)
	})

	t.Run("dry run only reports", func(t *testing.T) {
		runner := &fakeRunner{}
		rec := &Recorder{}

		_, err := New(WithFs(afero.NewMemMapFs()), WithObserver(rec), WithRunner(runner)).
			Execute(context.Background(), cfg, true)
		require.NoError(t, err)

		assert.Empty(t, runner.calls)
		assert.Equal(t, []Outcome{OutcomeRun, OutcomeRun}, rec.Outcomes())
	})
}

func TestExecute_ContextCanceled(t *testing.T) {
	cfg := newConfig()
	cfg.Directories = config.PathList{"/a", "/b"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &Recorder{}
	_, err := New(WithFs(afero.NewMemMapFs()), WithObserver(rec)).Execute(ctx, cfg, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rec.Decisions, 1)
}

func TestExecute_Link(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()

	src := filepath.Join(dir, "src")
	writeFile(t, fsys, src, "hello")

	dst := filepath.Join(dir, "dst")

	cfg := newConfig()
	cfg.Link.Set(src, config.Options{Path: dst})

	rec := &Recorder{}
	_, err := New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, false)
	require.NoError(t, err)

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, src, target)

	_, err = New(WithFs(fsys), WithObserver(rec)).Execute(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeCreate, OutcomeSkip}, rec.Outcomes())
	assert.Equal(t, ReasonLinked, rec.Decisions[1].Reason)
}

func TestExecute_LinkConflicts(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, dir, dst string)
	}{
		{
			name: "regular file",
			prepare: func(t *testing.T, _, dst string) {
				require.NoError(t, os.WriteFile(dst, []byte("x"), 0o644))
			},
		},
		{
			name: "foreign symlink",
			prepare: func(t *testing.T, dir, dst string) {
				other := filepath.Join(dir, "other")
				require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
				require.NoError(t, os.Symlink(other, dst))
			},
		},
		{
			name: "dangling symlink",
			prepare: func(t *testing.T, dir, dst string) {
				require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), dst))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "src")
			dst := filepath.Join(dir, "dst")
			require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
			tt.prepare(t, dir, dst)

			cfg := newConfig()
			cfg.Link.Set(src, config.Options{Path: dst})

			_, err := New(WithFs(afero.NewOsFs())).Execute(context.Background(), cfg, false)

			var conflict *core.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, dst, conflict.Path)
		})
	}
}

func TestExecute_LinkUnsupportedFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/a", "a")

	cfg := newConfig()
	cfg.Link.Set("/src/a", config.Options{Path: "/a"})

	_, err := New(WithFs(fsys)).Execute(context.Background(), cfg, false)
	require.ErrorIs(t, err, errNoSymlinks)
}
