// Package generator renders text/template sources for render entries.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"text/template"

	"filippo.io/age"
	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/hay-kot/dotapply/internal/config"
	"github.com/hay-kot/dotapply/internal/core"
	"github.com/hay-kot/dotapply/pkgs/fcrypt"
)

// Engine renders templates with machine facts, vars files and inline vars.
// It never writes to the filesystem.
type Engine struct {
	fs         afero.Fs
	log        zerolog.Logger
	facts      map[string]any
	identities []age.Identity

	// vars files are read once per run
	varsCache map[string]map[string]any
}

type Option func(*Engine)

func WithFs(fsys afero.Fs) Option {
	return func(e *Engine) { e.fs = fsys }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithFacts(facts map[string]any) Option {
	return func(e *Engine) { e.facts = facts }
}

// WithIdentities sets the age identities used to open vault vars files.
func WithIdentities(ids ...age.Identity) Option {
	return func(e *Engine) { e.identities = ids }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		fs:        afero.NewOsFs(),
		log:       zerolog.Nop(),
		varsCache: map[string]map[string]any{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.facts == nil {
		e.facts = core.Facts()
	}

	return e
}

// Render executes the template at src. Variables are merged with later
// sources taking precedence: facts, then the vars file, then inline vars.
// Missing keys are errors.
func (e *Engine) Render(ctx context.Context, src string, opts config.Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(e.fs, src)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", src, err)
	}

	fileVars, err := e.loadVarsFile(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load vars file %s: %w", opts.VarsFile, err)
	}

	t, err := template.New(filepath.Base(src)).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, NewTemplateError(e.fs, src, err)
	}

	vars := MergeMaps(e.facts, fileVars, opts.Vars)

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return nil, NewTemplateError(e.fs, src, err)
	}

	return buf.Bytes(), nil
}

func (e *Engine) loadVarsFile(opts config.Options) (map[string]any, error) {
	if opts.VarsFile == "" {
		return nil, nil
	}

	path := opts.VarsFile
	if opts.Vault {
		path = fcrypt.EncryptedPath(path)
	}

	if vars, ok := e.varsCache[path]; ok {
		return vars, nil
	}

	exists, err := afero.Exists(e.fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		e.log.Warn().Str("path", path).Bool("vault", opts.Vault).Msg("vars file does not exist, skipping")
		e.varsCache[path] = nil
		return nil, nil
	}

	var data []byte
	if opts.Vault {
		if len(e.identities) == 0 {
			return nil, fmt.Errorf("no identity loaded for encrypted file %s", path)
		}
		data, err = fcrypt.ReadEncrypted(e.fs, path, e.identities...)
	} else {
		data, err = afero.ReadFile(e.fs, path)
	}
	if err != nil {
		return nil, err
	}

	vars, err := decodeVars(fcrypt.PlainPath(path), data)
	if err != nil {
		return nil, err
	}

	e.varsCache[path] = vars
	return vars, nil
}

// decodeVars reads YAML for .yaml/.yml files and TOML otherwise.
func decodeVars(path string, data []byte) (map[string]any, error) {
	vars := map[string]any{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, err
		}
	default:
		if _, err := toml.Decode(string(data), &vars); err != nil {
			return nil, err
		}
	}

	return vars, nil
}

// MergeMaps merges multiple maps with later maps taking precedence over earlier ones.
// Returns a new map without modifying the input maps.
func MergeMaps[K comparable, V any](mps ...map[K]V) map[K]V {
	result := make(map[K]V)

	for _, m := range mps {
		maps.Copy(result, m)
	}

	return result
}
